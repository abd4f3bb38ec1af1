package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigboard/internal/domain"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: "default"}, nil
}

func TestQueueDispatcherEnqueuesJobAlerts(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewQueueDispatcher(enq, nil)
	ctx := ContextWithCorrelationID(context.Background(), "corr-1")

	require.NoError(t, d.DispatchJobAlerts(ctx, domain.Job{ID: "job-1"}))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TypeJobAlerts, enq.tasks[0].Type())

	p, err := ParseJobAlertsPayload(enq.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, "job-1", p.JobID)
	assert.Equal(t, "corr-1", p.CorrelationID)
}

func TestQueueDispatcherPropagatesErrors(t *testing.T) {
	d := NewQueueDispatcher(&fakeEnqueuer{err: errors.New("redis down")}, nil)
	assert.Error(t, d.DispatchJobAlerts(context.Background(), domain.Job{ID: "job-1"}))
}

func TestParseJobAlertsPayloadRejectsEmpty(t *testing.T) {
	_, err := ParseJobAlertsPayload(asynq.NewTask(TypeJobAlerts, []byte(`{}`)))
	assert.Error(t, err)
	_, err = ParseJobAlertsPayload(asynq.NewTask(TypeJobAlerts, []byte(`nope`)))
	assert.Error(t, err)
}
