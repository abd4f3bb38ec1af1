package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gigboard/internal/chat"
	"gigboard/internal/clock"
	"gigboard/internal/domain"
	"gigboard/internal/errcode"
	"gigboard/internal/notify"
	"gigboard/internal/store"
)

// InterviewTimeLayout 为消息与通知中展示面试时间的格式。
const InterviewTimeLayout = "Mon, 02 Jan 2006 15:04 MST"

// ApplyInput 为投递请求；Resume 必填。
type ApplyInput struct {
	CoverLetter string
	Resume      *domain.AttachmentRef
	Attachments []domain.AttachmentRef
}

// InterviewInput 为安排面试的请求。
type InterviewInput struct {
	DateTime    *time.Time
	Message     string
	ScheduleNow bool
}

// ScheduleResult 返回更新后的申请以及（立即安排时的）面试记录。
type ScheduleResult struct {
	Application domain.Application `json:"application"`
	Interview   *domain.Interview  `json:"interview,omitempty"`
}

type Service struct {
	jobs       store.JobRepository
	apps       store.ApplicationRepository
	interviews store.InterviewRepository
	notify     *notify.Service
	chat       *chat.Service
	clock      clock.Clock
	logger     *slog.Logger
}

func NewService(st *store.Store, notifications *notify.Service, chats *chat.Service, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jobs:       st.Jobs,
		apps:       st.Applications,
		interviews: st.Interviews,
		notify:     notifications,
		chat:       chats,
		clock:      clk,
		logger:     logger,
	}
}

// CanApply 在上传附件之前做廉价的预检查：角色、职位状态以及是否已投递过。
// 最终的唯一性仍由 Apply 在存储层原子保证。
func (s *Service) CanApply(ctx context.Context, actor domain.User, jobID string) error {
	if _, _, err := s.checkApply(ctx, actor, jobID); err != nil {
		return err
	}
	existing, err := s.apps.ListByFreelancer(ctx, actor.ID)
	if err != nil {
		return fmt.Errorf("list applications: %w", err)
	}
	for _, app := range existing {
		if app.JobID == jobID {
			return errcode.Duplicatef("You have already applied for this job")
		}
	}
	return nil
}

func (s *Service) checkApply(ctx context.Context, actor domain.User, jobID string) (*domain.Job, time.Time, error) {
	if actor.Role != domain.RoleFreelancer {
		return nil, time.Time{}, errcode.Forbidden("only freelancers can apply for jobs")
	}
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, time.Time{}, err
	}
	now := s.clock.Now()
	if job.Status != domain.JobActive || job.Expired(now) {
		return nil, time.Time{}, errcode.InvalidStatef("job is no longer accepting applications")
	}
	return job, now, nil
}

// Apply 创建申请并通知职位所有者。
func (s *Service) Apply(ctx context.Context, actor domain.User, jobID string, in ApplyInput) (*domain.Application, error) {
	job, now, err := s.checkApply(ctx, actor, jobID)
	if err != nil {
		return nil, err
	}
	if in.Resume == nil || in.Resume.Key == "" {
		return nil, errcode.Validationf("resume", "resume is required")
	}

	app := domain.Application{
		ID:             uuid.NewString(),
		JobID:          job.ID,
		FreelancerID:   actor.ID,
		FreelancerName: actor.Username,
		CoverLetter:    strings.TrimSpace(in.CoverLetter),
		Resume:         *in.Resume,
		Attachments:    in.Attachments,
		Status:         domain.ApplicationPending,
		SubmittedAt:    now,
	}
	switch err := s.apps.Create(ctx, app); {
	case errors.Is(err, store.ErrDuplicate):
		return nil, errcode.Duplicatef("You have already applied for this job")
	case errors.Is(err, store.ErrNotFound):
		return nil, errcode.NotFoundf("job not found")
	case err != nil:
		return nil, fmt.Errorf("create application: %w", err)
	}

	s.logger.Info("application submitted",
		slog.String("application_id", app.ID),
		slog.String("job_id", job.ID),
		slog.String("freelancer_id", actor.ID),
	)
	s.send(ctx, domain.Notification{
		UserID:  job.ClientID,
		Type:    domain.NotificationJobApplication,
		Message: fmt.Sprintf("%s applied for your job: %s", actor.Username, job.Title),
		JobID:   job.ID,
	})
	return &app, nil
}

var errUnchanged = errors.New("status unchanged")

// SetStatus 由职位所有者变更申请状态。重复设置同一终态视为成功且没有副作用。
func (s *Service) SetStatus(ctx context.Context, actor domain.User, appID, status string) (*domain.Application, error) {
	next, ok := ParseStatus(status)
	if !ok {
		return nil, errcode.Validationf("status", "unknown application status %q", status)
	}
	app, job, err := s.ownedApplication(ctx, actor, appID)
	if err != nil {
		return nil, err
	}

	updated, err := s.apps.Update(ctx, app.ID, func(a *domain.Application) error {
		if a.Status == next && IsTerminal(next) {
			return errUnchanged
		}
		if !IsTransitionAllowed(a.Status, next) {
			return errcode.InvalidStatef("cannot change application status from %s to %s", a.Status, next)
		}
		a.Status = next
		return nil
	})
	switch {
	case errors.Is(err, errUnchanged):
		return app, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, errcode.NotFoundf("application not found")
	case err != nil:
		return nil, err
	}

	s.logger.Info("application status changed",
		slog.String("application_id", app.ID),
		slog.String("status", string(next)),
	)
	s.send(ctx, domain.Notification{
		UserID:  updated.FreelancerID,
		Type:    domain.NotificationStatusUpdate,
		Message: fmt.Sprintf("Your application for %s has been %s", job.Title, next),
		JobID:   job.ID,
	})
	if next == domain.ApplicationAccepted {
		s.openConversation(ctx, job, updated)
	}
	return updated, nil
}

// ScheduleInterview 无论当前状态如何都会将申请置为 accepted（包括已拒绝的申请）。
// 每个申请只保留一条面试记录，重复安排会更新时间并重新通知。
func (s *Service) ScheduleInterview(ctx context.Context, actor domain.User, appID string, in InterviewInput) (*ScheduleResult, error) {
	app, job, err := s.ownedApplication(ctx, actor, appID)
	if err != nil {
		return nil, err
	}
	message := strings.TrimSpace(in.Message)
	now := in.ScheduleNow && in.DateTime != nil

	var previous domain.ApplicationStatus
	updated, err := s.apps.Update(ctx, app.ID, func(a *domain.Application) error {
		previous = a.Status
		a.Status = domain.ApplicationAccepted
		if now {
			at := *in.DateTime
			a.InterviewDateTime = &at
			a.InterviewMessage = message
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, errcode.NotFoundf("application not found")
	}
	if err != nil {
		return nil, err
	}

	log := s.logger.With(slog.String("application_id", app.ID), slog.String("job_id", job.ID))
	if previous == domain.ApplicationRejected {
		log.Warn("scheduling interview overrides rejected application")
	}

	result := &ScheduleResult{Application: *updated}
	if !now {
		s.send(ctx, domain.Notification{
			UserID:  updated.FreelancerID,
			Type:    domain.NotificationInterviewScheduled,
			Message: fmt.Sprintf("Your interview for %s will be scheduled soon", job.Title),
			JobID:   job.ID,
		})
		s.openConversation(ctx, job, updated)
		return result, nil
	}

	at := *in.DateTime
	iv, created, err := s.interviews.SaveForApplication(ctx, domain.Interview{
		ID:             uuid.NewString(),
		ApplicationID:  app.ID,
		JobID:          job.ID,
		JobTitle:       job.Title,
		FreelancerID:   updated.FreelancerID,
		FreelancerName: updated.FreelancerName,
		ClientID:       job.ClientID,
		ClientName:     job.ClientName,
		DateTime:       at,
		Message:        message,
		Status:         domain.InterviewScheduled,
		CreatedAt:      s.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("save interview: %w", err)
	}
	result.Interview = iv
	log.Info("interview scheduled", slog.Time("date_time", at), slog.Bool("rescheduled", !created))

	when := FormatInterviewTime(at)
	content := fmt.Sprintf("Interview scheduled for %s on %s.", job.Title, when)
	if message != "" {
		content += " " + message
	}
	if _, err := s.chat.Send(ctx, job.ClientID, updated.FreelancerID, content); err != nil {
		log.Error("send interview chat message failed", slog.Any("error", err))
	}
	s.send(ctx, domain.Notification{
		UserID:  updated.FreelancerID,
		Type:    domain.NotificationInterviewScheduled,
		Message: fmt.Sprintf("Interview scheduled for %s on %s", job.Title, when),
		JobID:   job.ID,
	})
	s.send(ctx, domain.Notification{
		UserID:  updated.FreelancerID,
		Type:    domain.NotificationMessage,
		Message: fmt.Sprintf("New message from %s", job.ClientName),
		JobID:   job.ID,
	})
	return result, nil
}

// Get 仅对申请人本人与职位所有者可见。
func (s *Service) Get(ctx context.Context, actor domain.User, appID string) (*domain.Application, error) {
	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app.FreelancerID == actor.ID {
		return app, nil
	}
	job, err := s.loadJob(ctx, app.JobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actor.ID {
		return nil, errcode.Forbidden("you cannot view this application")
	}
	return app, nil
}

// ListForJob 返回职位下的全部申请，仅职位所有者可用。
func (s *Service) ListForJob(ctx context.Context, actor domain.User, jobID string) ([]domain.Application, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actor.ID {
		return nil, errcode.Forbidden("only the job owner can view its applications")
	}
	return s.apps.ListByJob(ctx, jobID)
}

func (s *Service) ListForFreelancer(ctx context.Context, actor domain.User) ([]domain.Application, error) {
	return s.apps.ListByFreelancer(ctx, actor.ID)
}

func (s *Service) ListInterviews(ctx context.Context, actor domain.User) ([]domain.Interview, error) {
	return s.interviews.ListByParticipant(ctx, actor.ID)
}

// FormatInterviewTime 以 UTC 展示面试时间。
func FormatInterviewTime(t time.Time) string {
	return t.UTC().Format(InterviewTimeLayout)
}

// openConversation 在双方尚无聊天记录时写入开场消息，并各自通知一次。
func (s *Service) openConversation(ctx context.Context, job *domain.Job, app *domain.Application) {
	_, created, err := s.chat.OpenConversation(ctx,
		chat.Draft{
			From:    job.ClientID,
			To:      app.FreelancerID,
			Content: fmt.Sprintf("Hi %s, your application for %s has been accepted. Let's discuss the next steps.", app.FreelancerName, job.Title),
		},
		chat.Draft{
			From:    app.FreelancerID,
			To:      job.ClientID,
			Content: fmt.Sprintf("Thank you for accepting my application for %s! I look forward to working with you.", job.Title),
		},
	)
	if err != nil {
		s.logger.Error("open conversation failed",
			slog.String("application_id", app.ID),
			slog.Any("error", err),
		)
		return
	}
	if !created {
		return
	}
	s.send(ctx, domain.Notification{
		UserID:  app.FreelancerID,
		Type:    domain.NotificationMessage,
		Message: fmt.Sprintf("New message from %s", job.ClientName),
		JobID:   job.ID,
	})
	s.send(ctx, domain.Notification{
		UserID:  job.ClientID,
		Type:    domain.NotificationMessage,
		Message: fmt.Sprintf("New message from %s", app.FreelancerName),
		JobID:   job.ID,
	})
}

// send 在主状态已提交之后执行，失败只记录日志。
func (s *Service) send(ctx context.Context, n domain.Notification) {
	if _, err := s.notify.Send(ctx, n); err != nil {
		s.logger.Error("send notification failed",
			slog.String("user_id", n.UserID),
			slog.String("type", string(n.Type)),
			slog.Any("error", err),
		)
	}
}

func (s *Service) ownedApplication(ctx context.Context, actor domain.User, appID string) (*domain.Application, *domain.Job, error) {
	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, nil, err
	}
	job, err := s.loadJob(ctx, app.JobID)
	if err != nil {
		return nil, nil, err
	}
	if job.ClientID != actor.ID {
		return nil, nil, errcode.Forbidden("only the job owner can manage this application")
	}
	return app, job, nil
}

func (s *Service) loadJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.jobs.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errcode.NotFoundf("job not found")
	}
	return job, err
}

func (s *Service) loadApplication(ctx context.Context, id string) (*domain.Application, error) {
	app, err := s.apps.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errcode.NotFoundf("application not found")
	}
	return app, err
}
