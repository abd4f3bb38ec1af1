package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"gigboard/internal/domain"
	"gigboard/internal/metrics"
)

// Enqueuer 为 asynq.Client 的子集。
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueDispatcher 将职位提醒投递到 asynq 队列，由 worker 进程异步扇出。
type QueueDispatcher struct {
	client Enqueuer
	logger *slog.Logger
}

func NewQueueDispatcher(client Enqueuer, logger *slog.Logger) *QueueDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueDispatcher{client: client, logger: logger}
}

func (d *QueueDispatcher) DispatchJobAlerts(ctx context.Context, job domain.Job) error {
	task, err := NewJobAlertsTask(job.ID, CorrelationIDFromContext(ctx))
	if err != nil {
		return fmt.Errorf("build job alerts task: %w", err)
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue job alerts task: %w", err)
	}
	metrics.TaskEnqueued(TypeJobAlerts)
	d.logger.Info("job alerts task enqueued",
		slog.String("job_id", job.ID),
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue),
	)
	return nil
}
