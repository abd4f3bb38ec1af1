package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeJobAlerts = "job:alerts"
)

// JobAlertsPayload 描述职位提醒扇出所需的最小信息；职位内容由 worker 从存储读取。
type JobAlertsPayload struct {
	JobID         string `json:"job_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewJobAlertsTask 构造一个新的职位提醒任务。
func NewJobAlertsTask(jobID, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(JobAlertsPayload{
		JobID:         jobID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeJobAlerts, payload, asynq.MaxRetry(5)), nil
}

// ParseJobAlertsPayload 解析任务负载。
func ParseJobAlertsPayload(task *asynq.Task) (JobAlertsPayload, error) {
	var p JobAlertsPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode job alerts payload: %w", err)
	}
	if p.JobID == "" {
		return p, fmt.Errorf("job alerts payload missing job id")
	}
	return p, nil
}

type correlationIDKey struct{}

// ContextWithCorrelationID 将 Correlation ID 写入 ctx，以便随任务传递到 worker。
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFromContext 取出 ctx 中的 Correlation ID。
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}
