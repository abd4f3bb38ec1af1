package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"gigboard/internal/domain"
	"gigboard/internal/store"
	"gigboard/internal/tasks"
)

// AlertNotifier 为职位提醒扇出的执行者。
type AlertNotifier interface {
	NotifyJobCreated(ctx context.Context, job domain.Job) (int, error)
}

// JobAlertsHandler 负责消费职位提醒任务。通知按 (用户, 标题) 去重，
// 因此任务重试不会产生重复提醒。
type JobAlertsHandler struct {
	jobs     store.JobRepository
	notifier AlertNotifier
	logger   *slog.Logger
}

// NewJobAlertsHandler 创建任务处理器。
func NewJobAlertsHandler(jobs store.JobRepository, notifier AlertNotifier, logger *slog.Logger) *JobAlertsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobAlertsHandler{jobs: jobs, notifier: notifier, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *JobAlertsHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := tasks.ParseJobAlertsPayload(t)
	if err != nil {
		h.logger.Error("invalid job alerts payload", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("job_id", payload.JobID),
	)

	job, err := h.jobs.Get(ctx, payload.JobID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("job not found, skipping task")
		return nil
	}
	if err != nil {
		log.Error("query job failed", slog.Any("error", err))
		return err
	}

	sent, err := h.notifier.NotifyJobCreated(ctx, *job)
	if err != nil {
		log.Error("job alerts partially failed", slog.Int("sent", sent), slog.Any("error", err))
		return err
	}
	log.Info("job alerts task complete", slog.Int("sent", sent))
	return nil
}
