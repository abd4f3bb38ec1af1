package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigboard/internal/clock"
	"gigboard/internal/domain"
	"gigboard/internal/errcode"
	"gigboard/internal/store"
	"gigboard/internal/store/memory"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []domain.Job
	err  error
}

func (d *recordingDispatcher) DispatchJobAlerts(_ context.Context, job domain.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return d.err
}

var (
	client     = domain.User{ID: "client-1", Username: "acme", Role: domain.RoleClient}
	otherOwner = domain.User{ID: "client-2", Username: "globex", Role: domain.RoleClient}
	freelancer = domain.User{ID: "free-1", Username: "dev", Role: domain.RoleFreelancer}
)

type fixture struct {
	manager    *Manager
	store      *store.Store
	clock      *clock.Fake
	dispatcher *recordingDispatcher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memory.New()
	fake := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	d := &recordingDispatcher{}
	return fixture{
		manager:    NewManager(st.Jobs, d, fake, nil),
		store:      st,
		clock:      fake,
		dispatcher: d,
	}
}

func goJob(ttl int64) JobInput {
	return JobInput{Title: "Platform engineer", Skills: []string{"Go", "Kubernetes"}, TimerDuration: ttl}
}

func (f fixture) apply(t *testing.T, jobID, freelancerID string) {
	t.Helper()
	require.NoError(t, f.store.Applications.Create(context.Background(), domain.Application{
		ID:           uuid.NewString(),
		JobID:        jobID,
		FreelancerID: freelancerID,
		Status:       domain.ApplicationPending,
		SubmittedAt:  f.clock.Now(),
	}))
}

func TestCreateJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.manager.CreateJob(ctx, client, goJob(10))
	require.NoError(t, err)
	assert.Equal(t, domain.JobActive, job.Status)
	assert.Equal(t, "acme", job.ClientName)
	assert.Equal(t, job.CreatedAt.Add(10*time.Second), job.ExpiryTime)
	require.Len(t, f.dispatcher.jobs, 1)
	assert.Equal(t, job.ID, f.dispatcher.jobs[0].ID)
}

func TestCreateJobValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.CreateJob(ctx, freelancer, goJob(10))
	assert.True(t, errcode.Is(err, errcode.Authorization))

	tests := []struct {
		name  string
		in    JobInput
		field string
	}{
		{name: "missing title", in: JobInput{Skills: []string{"Go"}, TimerDuration: 10}, field: "title"},
		{name: "blank skills", in: JobInput{Title: "x", Skills: []string{" "}, TimerDuration: 10}, field: "skills"},
		{name: "missing timer", in: JobInput{Title: "x", Skills: []string{"Go"}}, field: "timerDuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.CreateJob(ctx, client, tt.in)
			var e *errcode.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, errcode.Validation, e.Code)
			assert.Equal(t, tt.field, e.Field)
		})
	}
	assert.Empty(t, f.dispatcher.jobs)
}

func TestCreateJobSurvivesDispatchFailure(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("queue down")

	job, err := f.manager.CreateJob(context.Background(), client, goJob(10))
	require.NoError(t, err)

	_, err = f.manager.GetJob(context.Background(), job.ID)
	assert.NoError(t, err)
}

func TestEditJobPartialPatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.manager.CreateJob(ctx, client, goJob(60))
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)
	title := "Senior platform engineer"
	edited, err := f.manager.EditJob(ctx, client, job.ID, JobPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, edited.Title)
	assert.Equal(t, job.Skills, edited.Skills)
	assert.Equal(t, job.ExpiryTime, edited.ExpiryTime)

	ttl := int64(120)
	edited, err = f.manager.EditJob(ctx, client, job.ID, JobPatch{TimerDuration: &ttl})
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(120*time.Second), edited.ExpiryTime)
	assert.Equal(t, title, edited.Title)

	_, err = f.manager.EditJob(ctx, otherOwner, job.ID, JobPatch{Title: &title})
	assert.True(t, errcode.Is(err, errcode.Authorization))

	_, err = f.manager.EditJob(ctx, client, "missing", JobPatch{Title: &title})
	assert.True(t, errcode.Is(err, errcode.NotFound))

	bad := domain.JobStatus("archived")
	_, err = f.manager.EditJob(ctx, client, job.ID, JobPatch{Status: &bad})
	assert.True(t, errcode.Is(err, errcode.Validation))
}

func TestDeleteJobCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.manager.CreateJob(ctx, client, goJob(60))
	require.NoError(t, err)
	f.apply(t, job.ID, "free-1")
	f.apply(t, job.ID, "free-2")

	_, err = f.manager.DeleteJob(ctx, otherOwner, job.ID)
	assert.True(t, errcode.Is(err, errcode.Authorization))
	apps, err := f.store.Applications.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	deleted, err := f.manager.DeleteJob(ctx, client, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, deleted.ID)

	apps, err = f.store.Applications.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, apps)

	_, err = f.manager.DeleteJob(ctx, client, job.ID)
	assert.True(t, errcode.Is(err, errcode.NotFound))
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	short, err := f.manager.CreateJob(ctx, client, goJob(10))
	require.NoError(t, err)
	f.apply(t, short.ID, "free-1")

	renewing := goJob(10)
	renewing.AutoRenew = true
	renew, err := f.manager.CreateJob(ctx, client, renewing)
	require.NoError(t, err)

	long, err := f.manager.CreateJob(ctx, client, goJob(3600))
	require.NoError(t, err)

	removed, err := f.manager.SweepExpired(ctx, f.clock.Now().Add(10*time.Second))
	require.NoError(t, err)
	assert.Empty(t, removed, "expiry is exclusive")

	f.clock.Advance(11 * time.Second)
	removed, err = f.manager.SweepExpired(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{short.ID}, removed)

	_, err = f.manager.GetJob(ctx, short.ID)
	assert.True(t, errcode.Is(err, errcode.NotFound))
	apps, err := f.store.Applications.ListByJob(ctx, short.ID)
	require.NoError(t, err)
	assert.Empty(t, apps)

	for _, id := range []string{renew.ID, long.ID} {
		_, err := f.manager.GetJob(ctx, id)
		assert.NoError(t, err)
	}

	f.clock.Advance(365 * 24 * time.Hour)
	removed, err = f.manager.SweepExpired(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{long.ID}, removed)
}

func TestIncrementApplyClicks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.manager.CreateJob(ctx, client, goJob(60))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.manager.IncrementApplyClicks(ctx, job.ID)
		}()
	}
	wg.Wait()

	got, err := f.manager.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.ApplyClicks)

	_, err = f.manager.IncrementApplyClicks(ctx, "missing")
	assert.True(t, errcode.Is(err, errcode.NotFound))
}

func TestListJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.manager.CreateJob(ctx, client, goJob(60))
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	second, err := f.manager.CreateJob(ctx, otherOwner, goJob(60))
	require.NoError(t, err)

	all, err := f.manager.ListJobs(ctx, store.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	mine, err := f.manager.ListJobs(ctx, store.JobFilter{ClientID: client.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)

	_, err = f.manager.ListJobs(ctx, store.JobFilter{Status: "bogus"})
	assert.True(t, errcode.Is(err, errcode.Validation))
}
