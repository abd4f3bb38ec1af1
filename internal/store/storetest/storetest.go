// Package storetest 提供仓储实现共用的契约测试。
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigboard/internal/domain"
	"gigboard/internal/store"
)

// Factory 为每个子测试构造一份全新的仓储。
type Factory func(t *testing.T) *store.Store

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Run 依次执行全部契约测试。
func Run(t *testing.T, newStore Factory) {
	t.Run("UserUniqueEmail", func(t *testing.T) { testUserUniqueEmail(t, newStore(t)) })
	t.Run("AlertSubscribers", func(t *testing.T) { testAlertSubscribers(t, newStore(t)) })
	t.Run("JobUpdateKeepsClicks", func(t *testing.T) { testJobUpdateKeepsClicks(t, newStore(t)) })
	t.Run("ApplyClicksConcurrent", func(t *testing.T) { testApplyClicksConcurrent(t, newStore(t)) })
	t.Run("ApplicationUniqueness", func(t *testing.T) { testApplicationUniqueness(t, newStore(t)) })
	t.Run("ApplicationRequiresJob", func(t *testing.T) { testApplicationRequiresJob(t, newStore(t)) })
	t.Run("DeleteCascade", func(t *testing.T) { testDeleteCascade(t, newStore(t)) })
	t.Run("DeleteCascadeGuard", func(t *testing.T) { testDeleteCascadeGuard(t, newStore(t)) })
	t.Run("ListExpired", func(t *testing.T) { testListExpired(t, newStore(t)) })
	t.Run("ApplicationUpdateAtomic", func(t *testing.T) { testApplicationUpdate(t, newStore(t)) })
	t.Run("NotificationDedup", func(t *testing.T) { testNotificationDedup(t, newStore(t)) })
	t.Run("NotificationReadState", func(t *testing.T) { testNotificationReadState(t, newStore(t)) })
	t.Run("InterviewOnePerApplication", func(t *testing.T) { testInterviewUpsert(t, newStore(t)) })
	t.Run("ChatOrdering", func(t *testing.T) { testChatOrdering(t, newStore(t)) })
	t.Run("ChatOpeningOnce", func(t *testing.T) { testChatOpeningOnce(t, newStore(t)) })
	t.Run("ChatMarkRead", func(t *testing.T) { testChatMarkRead(t, newStore(t)) })
	t.Run("SavedJobs", func(t *testing.T) { testSavedJobs(t, newStore(t)) })
	t.Run("Ratings", func(t *testing.T) { testRatings(t, newStore(t)) })
}

func newUser(email string, role domain.Role) domain.User {
	return domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Username:  email,
		Role:      role,
		CreatedAt: base,
	}
}

func newJob(clientID string, created time.Time, ttl time.Duration) domain.Job {
	return domain.Job{
		ID:            uuid.NewString(),
		ClientID:      clientID,
		Title:         "Backend engineer",
		Skills:        []string{"Go", "Kubernetes"},
		TimerDuration: int64(ttl / time.Second),
		CreatedAt:     created,
		ExpiryTime:    created.Add(ttl),
		Status:        domain.JobActive,
	}
}

func newApplication(jobID, freelancerID string) domain.Application {
	return domain.Application{
		ID:           uuid.NewString(),
		JobID:        jobID,
		FreelancerID: freelancerID,
		Resume:       domain.AttachmentRef{Key: "resumes/cv.pdf", Filename: "cv.pdf"},
		Status:       domain.ApplicationPending,
		SubmittedAt:  base,
	}
}

func message(from, to string, at time.Time, content string) domain.ChatMessage {
	return domain.ChatMessage{ID: uuid.NewString(), SenderID: from, ReceiverID: to, Content: content, CreatedAt: at}
}

func testUserUniqueEmail(t *testing.T, s *store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Users.Create(ctx, newUser("a@example.com", domain.RoleClient)))

	dup := newUser("A@example.com", domain.RoleFreelancer)
	dup.Username = "someone-else"
	assert.ErrorIs(t, s.Users.Create(ctx, dup), store.ErrDuplicate)

	got, err := s.Users.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleClient, got.Role)

	_, err = s.Users.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testAlertSubscribers(t *testing.T, s *store.Store) {
	ctx := context.Background()
	on := newUser("on@example.com", domain.RoleFreelancer)
	on.AlertPreferences = domain.AlertPreferences{Enabled: true, Skills: []string{"go", "rust"}}
	empty := newUser("empty@example.com", domain.RoleFreelancer)
	empty.AlertPreferences = domain.AlertPreferences{Enabled: true}
	off := newUser("off@example.com", domain.RoleFreelancer)
	off.AlertPreferences = domain.AlertPreferences{Enabled: false, Skills: []string{"go"}}
	for _, u := range []domain.User{on, empty, off} {
		require.NoError(t, s.Users.Create(ctx, u))
	}

	subs, err := s.Users.ListAlertSubscribers(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, on.ID, subs[0].ID)
	assert.Equal(t, []string{"go", "rust"}, subs[0].AlertPreferences.Skills)
}

func testJobUpdateKeepsClicks(t *testing.T, s *store.Store) {
	ctx := context.Background()
	job := newJob("client", base, time.Hour)
	require.NoError(t, s.Jobs.Create(ctx, job))

	clicks, err := s.Jobs.IncrementApplyClicks(ctx, job.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, clicks)

	job.Title = "Platform engineer"
	job.ApplyClicks = 0
	require.NoError(t, s.Jobs.Update(ctx, job))

	got, err := s.Jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Platform engineer", got.Title)
	assert.EqualValues(t, 1, got.ApplyClicks)
	assert.Equal(t, []string{"Go", "Kubernetes"}, got.Skills)
}

func testApplyClicksConcurrent(t *testing.T, s *store.Store) {
	ctx := context.Background()
	job := newJob("client", base, time.Hour)
	require.NoError(t, s.Jobs.Create(ctx, job))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Jobs.IncrementApplyClicks(ctx, job.ID)
		}()
	}
	wg.Wait()

	got, err := s.Jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.EqualValues(t, workers, got.ApplyClicks)

	_, err = s.Jobs.IncrementApplyClicks(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testApplicationUniqueness(t *testing.T, s *store.Store) {
	ctx := context.Background()
	job := newJob("client", base, time.Hour)
	require.NoError(t, s.Jobs.Create(ctx, job))

	require.NoError(t, s.Applications.Create(ctx, newApplication(job.ID, "f1")))
	assert.ErrorIs(t, s.Applications.Create(ctx, newApplication(job.ID, "f1")), store.ErrDuplicate)
	require.NoError(t, s.Applications.Create(ctx, newApplication(job.ID, "f2")))

	apps, err := s.Applications.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	mine, err := s.Applications.ListByFreelancer(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "cv.pdf", mine[0].Resume.Filename)
}

func testApplicationRequiresJob(t *testing.T, s *store.Store) {
	err := s.Applications.Create(context.Background(), newApplication("missing", "f1"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteCascade(t *testing.T, s *store.Store) {
	ctx := context.Background()
	job := newJob("client", base, time.Hour)
	other := newJob("client", base, time.Hour)
	require.NoError(t, s.Jobs.Create(ctx, job))
	require.NoError(t, s.Jobs.Create(ctx, other))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Applications.Create(ctx, newApplication(job.ID, fmt.Sprintf("f%d", i))))
	}
	survivor := newApplication(other.ID, "f0")
	require.NoError(t, s.Applications.Create(ctx, survivor))
	require.NoError(t, s.SavedJobs.Save(ctx, domain.SavedJob{UserID: "f0", JobID: job.ID, SavedAt: base}))

	deleted, removed, err := s.Jobs.DeleteCascade(ctx, job.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, job.ID, deleted.ID)
	assert.Equal(t, 3, removed)

	_, err = s.Jobs.Get(ctx, job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	orphans, err := s.Applications.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, orphans)
	saved, err := s.SavedJobs.ListByUser(ctx, "f0")
	require.NoError(t, err)
	assert.Empty(t, saved)

	_, err = s.Applications.Get(ctx, survivor.ID)
	assert.NoError(t, err)

	_, _, err = s.Jobs.DeleteCascade(ctx, job.ID, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteCascadeGuard(t *testing.T, s *store.Store) {
	ctx := context.Background()
	job := newJob("client", base, time.Hour)
	require.NoError(t, s.Jobs.Create(ctx, job))
	require.NoError(t, s.Applications.Create(ctx, newApplication(job.ID, "f1")))

	refuse := fmt.Errorf("not expired")
	_, _, err := s.Jobs.DeleteCascade(ctx, job.ID, func(domain.Job) error { return refuse })
	assert.ErrorIs(t, err, refuse)

	_, err = s.Jobs.Get(ctx, job.ID)
	assert.NoError(t, err)
	apps, err := s.Applications.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func testListExpired(t *testing.T, s *store.Store) {
	ctx := context.Background()
	short := newJob("client", base, 10*time.Second)
	renew := newJob("client", base, 10*time.Second)
	renew.AutoRenew = true
	long := newJob("client", base, time.Hour)
	for _, j := range []domain.Job{short, renew, long} {
		require.NoError(t, s.Jobs.Create(ctx, j))
	}

	expired, err := s.Jobs.ListExpired(ctx, base.Add(11*time.Second))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, short.ID, expired[0].ID)

	expired, err = s.Jobs.ListExpired(ctx, base.Add(10*time.Second))
	require.NoError(t, err)
	assert.Empty(t, expired, "expiry is strict: now must be after expiryTime")
}

func testApplicationUpdate(t *testing.T, s *store.Store) {
	ctx := context.Background()
	job := newJob("client", base, time.Hour)
	require.NoError(t, s.Jobs.Create(ctx, job))
	app := newApplication(job.ID, "f1")
	require.NoError(t, s.Applications.Create(ctx, app))

	boom := fmt.Errorf("refused")
	_, err := s.Applications.Update(ctx, app.ID, func(a *domain.Application) error {
		a.Status = domain.ApplicationRejected
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Applications.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationPending, got.Status)

	when := base.Add(48 * time.Hour)
	updated, err := s.Applications.Update(ctx, app.ID, func(a *domain.Application) error {
		a.Status = domain.ApplicationAccepted
		a.InterviewDateTime = &when
		a.InterviewMessage = "bring laptop"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationAccepted, updated.Status)

	got, err = s.Applications.Get(ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, got.InterviewDateTime)
	assert.True(t, got.InterviewDateTime.Equal(when))
	assert.Equal(t, "bring laptop", got.InterviewMessage)

	_, err = s.Applications.Update(ctx, "missing", func(*domain.Application) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testNotificationDedup(t *testing.T, s *store.Store) {
	ctx := context.Background()
	n := domain.Notification{ID: uuid.NewString(), UserID: "u1", Type: domain.NotificationJobAlert, Message: "a", CreatedAt: base, DedupKey: "job-alert:go dev"}
	created, err := s.Notifications.Create(ctx, n)
	require.NoError(t, err)
	assert.True(t, created)

	n.ID = uuid.NewString()
	created, err = s.Notifications.Create(ctx, n)
	require.NoError(t, err)
	assert.False(t, created)

	n.ID = uuid.NewString()
	n.UserID = "u2"
	created, err = s.Notifications.Create(ctx, n)
	require.NoError(t, err)
	assert.True(t, created, "dedup key is scoped per user")

	for i := 0; i < 2; i++ {
		created, err = s.Notifications.Create(ctx, domain.Notification{ID: uuid.NewString(), UserID: "u1", Type: domain.NotificationMessage, CreatedAt: base.Add(time.Duration(i+1) * time.Second)})
		require.NoError(t, err)
		assert.True(t, created, "notifications without dedup key never collide")
	}

	list, err := s.Notifications.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func testNotificationReadState(t *testing.T, s *store.Store) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		n := domain.Notification{ID: uuid.NewString(), UserID: "u1", Type: domain.NotificationMessage, Message: fmt.Sprint(i), CreatedAt: base.Add(time.Duration(i) * time.Second)}
		_, err := s.Notifications.Create(ctx, n)
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	list, err := s.Notifications.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID, "newest first")

	assert.ErrorIs(t, s.Notifications.MarkRead(ctx, "u2", ids[0]), store.ErrNotFound)
	require.NoError(t, s.Notifications.MarkRead(ctx, "u1", ids[0]))

	unread, err := s.Notifications.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	count, err := s.Notifications.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	unread, err = s.Notifications.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func testInterviewUpsert(t *testing.T, s *store.Store) {
	ctx := context.Background()
	iv := domain.Interview{
		ID: uuid.NewString(), ApplicationID: "app1", JobID: "job1", JobTitle: "Go dev",
		FreelancerID: "f1", ClientID: "c1", DateTime: base.Add(time.Hour),
		Message: "first", Status: domain.InterviewScheduled, CreatedAt: base,
	}
	saved, created, err := s.Interviews.SaveForApplication(ctx, iv)
	require.NoError(t, err)
	assert.True(t, created)

	again := iv
	again.ID = uuid.NewString()
	again.DateTime = base.Add(2 * time.Hour)
	again.Message = "moved"
	updated, created, err := s.Interviews.SaveForApplication(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, saved.ID, updated.ID)
	assert.Equal(t, "moved", updated.Message)

	forClient, err := s.Interviews.ListByParticipant(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, forClient, 1)
	assert.True(t, forClient[0].DateTime.Equal(base.Add(2*time.Hour)))

	forFreelancer, err := s.Interviews.ListByParticipant(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, forFreelancer, 1)

	_, err = s.Interviews.GetByApplication(ctx, "other")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testChatOrdering(t *testing.T, s *store.Store) {
	ctx := context.Background()
	// 写入顺序与时间顺序交错。
	offsets := []int{5, 1, 4, 2, 3, 0}
	for _, off := range offsets {
		from, to := "a", "b"
		if off%2 == 1 {
			from, to = "b", "a"
		}
		_, err := s.Messages.Create(ctx, message(from, to, base.Add(time.Duration(off)*time.Second), fmt.Sprint(off)))
		require.NoError(t, err)
	}
	_, err := s.Messages.Create(ctx, message("a", "c", base, "other"))
	require.NoError(t, err)

	history, err := s.Messages.Between(ctx, "b", "a")
	require.NoError(t, err)
	require.Len(t, history, len(offsets))
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i-1].CreatedAt.Before(history[i].CreatedAt), "history must be strictly ascending")
	}

	// 相同时间按写入顺序。
	_, err = s.Messages.Create(ctx, message("a", "d", base, "first"))
	require.NoError(t, err)
	_, err = s.Messages.Create(ctx, message("d", "a", base, "second"))
	require.NoError(t, err)
	tied, err := s.Messages.Between(ctx, "a", "d")
	require.NoError(t, err)
	require.Len(t, tied, 2)
	assert.Equal(t, "first", tied[0].Content)
	assert.Equal(t, "second", tied[1].Content)

	all, err := s.Messages.Involving(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, all, len(offsets)+3)
}

func testChatOpeningOnce(t *testing.T, s *store.Store) {
	ctx := context.Background()
	first := message("c1", "f1", base, "hello")
	second := message("f1", "c1", base.Add(time.Millisecond), "thanks")

	created, ok, err := s.Messages.CreateOpening(ctx, first, second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, created, 2)

	again, ok, err := s.Messages.CreateOpening(ctx, message("f1", "c1", base, "x"), message("c1", "f1", base, "y"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, again)

	history, err := s.Messages.Between(ctx, "c1", "f1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func testChatMarkRead(t *testing.T, s *store.Store) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Messages.Create(ctx, message("b", "a", base.Add(time.Duration(i)*time.Second), "to a"))
		require.NoError(t, err)
	}
	_, err := s.Messages.Create(ctx, message("a", "b", base.Add(5*time.Second), "to b"))
	require.NoError(t, err)

	count, err := s.Messages.MarkRead(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = s.Messages.MarkRead(ctx, "a", "b")
	require.NoError(t, err)
	assert.Zero(t, count)

	history, err := s.Messages.Between(ctx, "a", "b")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.False(t, history[3].Read, "messages sent by the reader stay untouched")
}

func testSavedJobs(t *testing.T, s *store.Store) {
	ctx := context.Background()
	job := newJob("client", base, time.Hour)
	require.NoError(t, s.Jobs.Create(ctx, job))

	require.NoError(t, s.SavedJobs.Save(ctx, domain.SavedJob{UserID: "f1", JobID: job.ID, SavedAt: base}))
	assert.ErrorIs(t, s.SavedJobs.Save(ctx, domain.SavedJob{UserID: "f1", JobID: job.ID, SavedAt: base}), store.ErrDuplicate)
	assert.ErrorIs(t, s.SavedJobs.Save(ctx, domain.SavedJob{UserID: "f1", JobID: "missing", SavedAt: base}), store.ErrNotFound)

	list, err := s.SavedJobs.ListByUser(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.SavedJobs.Delete(ctx, "f1", job.ID))
	assert.ErrorIs(t, s.SavedJobs.Delete(ctx, "f1", job.ID), store.ErrNotFound)
}

func testRatings(t *testing.T, s *store.Store) {
	ctx := context.Background()
	r := domain.Rating{ID: uuid.NewString(), ClientID: "c1", FreelancerID: "f1", Score: 4, CreatedAt: base}
	require.NoError(t, s.Ratings.Create(ctx, r))
	r.ID = uuid.NewString()
	assert.ErrorIs(t, s.Ratings.Create(ctx, r), store.ErrDuplicate)
	require.NoError(t, s.Ratings.Create(ctx, domain.Rating{ID: uuid.NewString(), ClientID: "c1", FreelancerID: "f2", Score: 2, CreatedAt: base}))

	list, err := s.Ratings.ListByClient(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
