package memory

import (
	"context"
	"sort"
	"time"

	"gigboard/internal/domain"
	"gigboard/internal/store"
)

type userRepo struct{ s *state }

func (r *userRepo) Create(_ context.Context, user domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range r.s.users {
		if sameFold(existing.Email, user.Email) || sameFold(existing.Username, user.Username) {
			return store.ErrDuplicate
		}
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

func (r *userRepo) Get(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u = cloneUser(u)
	return &u, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if sameFold(u.Email, email) {
			u = cloneUser(u)
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *userRepo) Update(_ context.Context, user domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return store.ErrNotFound
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

func (r *userRepo) ListAlertSubscribers(_ context.Context) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.User, 0)
	for _, u := range r.s.users {
		if u.AlertPreferences.Enabled && len(u.AlertPreferences.Skills) > 0 {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type jobRepo struct{ s *state }

func (r *jobRepo) Create(_ context.Context, job domain.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; ok {
		return store.ErrDuplicate
	}
	r.s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *jobRepo) Get(_ context.Context, id string) (*domain.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	j = cloneJob(j)
	return &j, nil
}

func (r *jobRepo) Update(_ context.Context, job domain.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.jobs[job.ID]
	if !ok {
		return store.ErrNotFound
	}
	job.ApplyClicks = current.ApplyClicks
	r.s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *jobRepo) List(_ context.Context, filter store.JobFilter) ([]domain.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Job, 0, len(r.s.jobs))
	for _, j := range r.s.jobs {
		if filter.ClientID != "" && j.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, cloneJob(j))
	}
	sortJobsNewestFirst(out)
	return out, nil
}

func (r *jobRepo) ListExpired(_ context.Context, now time.Time) ([]domain.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Job, 0)
	for _, j := range r.s.jobs {
		if j.Expired(now) {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryTime.Before(out[j].ExpiryTime) })
	return out, nil
}

func (r *jobRepo) DeleteCascade(_ context.Context, id string, guard func(domain.Job) error) (*domain.Job, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[id]
	if !ok {
		return nil, 0, store.ErrNotFound
	}
	if guard != nil {
		if err := guard(cloneJob(job)); err != nil {
			return nil, 0, err
		}
	}
	delete(r.s.jobs, id)

	removed := 0
	for appID, app := range r.s.applications {
		if app.JobID == id {
			delete(r.s.applications, appID)
			removed++
		}
	}

	kept := r.s.savedJobs[:0]
	for _, saved := range r.s.savedJobs {
		if saved.JobID != id {
			kept = append(kept, saved)
		}
	}
	r.s.savedJobs = kept

	job = cloneJob(job)
	return &job, removed, nil
}

func (r *jobRepo) IncrementApplyClicks(_ context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	job.ApplyClicks++
	r.s.jobs[id] = job
	return job.ApplyClicks, nil
}

type applicationRepo struct{ s *state }

func (r *applicationRepo) Create(_ context.Context, app domain.Application) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[app.JobID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := r.s.applications[app.ID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range r.s.applications {
		if existing.JobID == app.JobID && existing.FreelancerID == app.FreelancerID {
			return store.ErrDuplicate
		}
	}
	r.s.applications[app.ID] = cloneApplication(app)
	return nil
}

func (r *applicationRepo) Get(_ context.Context, id string) (*domain.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	app, ok := r.s.applications[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	app = cloneApplication(app)
	return &app, nil
}

func (r *applicationRepo) ListByJob(_ context.Context, jobID string) ([]domain.Application, error) {
	return r.list(func(a domain.Application) bool { return a.JobID == jobID }), nil
}

func (r *applicationRepo) ListByFreelancer(_ context.Context, freelancerID string) ([]domain.Application, error) {
	return r.list(func(a domain.Application) bool { return a.FreelancerID == freelancerID }), nil
}

func (r *applicationRepo) list(keep func(domain.Application) bool) []domain.Application {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Application, 0)
	for _, app := range r.s.applications {
		if keep(app) {
			out = append(out, cloneApplication(app))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

func (r *applicationRepo) Update(_ context.Context, id string, mutate func(*domain.Application) error) (*domain.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.applications[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := cloneApplication(current)
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.JobID = current.JobID
	next.FreelancerID = current.FreelancerID
	r.s.applications[id] = cloneApplication(next)
	return &next, nil
}

type notificationRepo struct{ s *state }

func (r *notificationRepo) Create(_ context.Context, n domain.Notification) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if n.DedupKey != "" {
		for _, existing := range r.s.notifications {
			if existing.UserID == n.UserID && existing.DedupKey == n.DedupKey {
				return false, nil
			}
		}
	}
	r.s.notifications = append(r.s.notifications, n)
	return true, nil
}

func (r *notificationRepo) ListByUser(_ context.Context, userID string) ([]domain.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Notification, 0)
	// 逆序遍历即为最新优先。
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		if r.s.notifications[i].UserID == userID {
			out = append(out, r.s.notifications[i])
		}
	}
	return out, nil
}

func (r *notificationRepo) MarkRead(_ context.Context, userID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.notifications {
		n := &r.s.notifications[i]
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *notificationRepo) MarkAllRead(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for i := range r.s.notifications {
		n := &r.s.notifications[i]
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func (r *notificationRepo) CountUnread(_ context.Context, userID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	count := 0
	for _, n := range r.s.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

type interviewRepo struct{ s *state }

func (r *interviewRepo) SaveForApplication(_ context.Context, iv domain.Interview) (*domain.Interview, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.interviews[iv.ApplicationID]; ok {
		existing.DateTime = iv.DateTime
		existing.Message = iv.Message
		existing.Status = iv.Status
		r.s.interviews[iv.ApplicationID] = existing
		return &existing, false, nil
	}
	r.s.interviews[iv.ApplicationID] = iv
	return &iv, true, nil
}

func (r *interviewRepo) GetByApplication(_ context.Context, applicationID string) (*domain.Interview, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	iv, ok := r.s.interviews[applicationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &iv, nil
}

func (r *interviewRepo) ListByParticipant(_ context.Context, userID string) ([]domain.Interview, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Interview, 0)
	for _, iv := range r.s.interviews {
		if iv.ClientID == userID || iv.FreelancerID == userID {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return out, nil
}

type messageRepo struct{ s *state }

func (r *messageRepo) Create(_ context.Context, msg domain.ChatMessage) (*domain.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg.Seq = r.s.nextSeq()
	r.s.messages = append(r.s.messages, msg)
	return &msg, nil
}

func (r *messageRepo) CreateOpening(_ context.Context, first, second domain.ChatMessage) ([]domain.ChatMessage, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.messages {
		if m.Involves(first.SenderID, first.ReceiverID) {
			return nil, false, nil
		}
	}
	first.Seq = r.s.nextSeq()
	second.Seq = r.s.nextSeq()
	r.s.messages = append(r.s.messages, first, second)
	return []domain.ChatMessage{first, second}, true, nil
}

func (r *messageRepo) Between(_ context.Context, a, b string) ([]domain.ChatMessage, error) {
	return r.collect(func(m domain.ChatMessage) bool { return m.Involves(a, b) }), nil
}

func (r *messageRepo) Involving(_ context.Context, userID string) ([]domain.ChatMessage, error) {
	return r.collect(func(m domain.ChatMessage) bool {
		return m.SenderID == userID || m.ReceiverID == userID
	}), nil
}

func (r *messageRepo) collect(keep func(domain.ChatMessage) bool) []domain.ChatMessage {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.ChatMessage, 0)
	for _, m := range r.s.messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (r *messageRepo) MarkRead(_ context.Context, reader, other string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for i := range r.s.messages {
		m := &r.s.messages[i]
		if m.SenderID == other && m.ReceiverID == reader && !m.Read {
			m.Read = true
			count++
		}
	}
	return count, nil
}

type savedJobRepo struct{ s *state }

func (r *savedJobRepo) Save(_ context.Context, saved domain.SavedJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[saved.JobID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range r.s.savedJobs {
		if existing.UserID == saved.UserID && existing.JobID == saved.JobID {
			return store.ErrDuplicate
		}
	}
	r.s.savedJobs = append(r.s.savedJobs, saved)
	return nil
}

func (r *savedJobRepo) Delete(_ context.Context, userID, jobID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, existing := range r.s.savedJobs {
		if existing.UserID == userID && existing.JobID == jobID {
			r.s.savedJobs = append(r.s.savedJobs[:i], r.s.savedJobs[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *savedJobRepo) ListByUser(_ context.Context, userID string) ([]domain.SavedJob, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.SavedJob, 0)
	for i := len(r.s.savedJobs) - 1; i >= 0; i-- {
		if r.s.savedJobs[i].UserID == userID {
			out = append(out, r.s.savedJobs[i])
		}
	}
	return out, nil
}

type ratingRepo struct{ s *state }

func (r *ratingRepo) Create(_ context.Context, rating domain.Rating) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.ratings {
		if existing.ClientID == rating.ClientID && existing.FreelancerID == rating.FreelancerID {
			return store.ErrDuplicate
		}
	}
	r.s.ratings = append(r.s.ratings, rating)
	return nil
}

func (r *ratingRepo) ListByClient(_ context.Context, clientID string) ([]domain.Rating, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Rating, 0)
	for _, rating := range r.s.ratings {
		if rating.ClientID == clientID {
			out = append(out, rating)
		}
	}
	return out, nil
}
