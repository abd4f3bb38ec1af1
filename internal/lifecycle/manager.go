// Package lifecycle 管理职位的创建、编辑、删除与过期清理。
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gigboard/internal/clock"
	"gigboard/internal/domain"
	"gigboard/internal/errcode"
	"gigboard/internal/store"
)

// MaxTitleLength 限制职位标题长度。
const MaxTitleLength = 200

// AlertDispatcher 在职位创建后负责职位提醒的扇出，可以同步执行或投递到队列。
type AlertDispatcher interface {
	DispatchJobAlerts(ctx context.Context, job domain.Job) error
}

// JobInput 为创建职位的请求；TimerDuration 单位为秒。
type JobInput struct {
	Title         string
	Description   string
	Budget        string
	Location      string
	Skills        []string
	TimerDuration int64
	AutoRenew     bool
}

// JobPatch 为局部更新；nil 字段保持原值。
type JobPatch struct {
	Title         *string
	Description   *string
	Budget        *string
	Location      *string
	Skills        []string
	TimerDuration *int64
	AutoRenew     *bool
	Status        *domain.JobStatus
}

type Manager struct {
	jobs   store.JobRepository
	alerts AlertDispatcher
	clock  clock.Clock
	logger *slog.Logger
}

func NewManager(jobs store.JobRepository, alerts AlertDispatcher, clk clock.Clock, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{jobs: jobs, alerts: alerts, clock: clk, logger: logger}
}

// CreateJob 写入职位后触发职位提醒；提醒失败只记录日志。
func (m *Manager) CreateJob(ctx context.Context, actor domain.User, in JobInput) (*domain.Job, error) {
	if actor.Role != domain.RoleClient {
		return nil, errcode.Forbidden("only clients can post jobs")
	}

	title := strings.TrimSpace(in.Title)
	skills := cleanSkills(in.Skills)
	if err := validateJob(title, skills, in.TimerDuration); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	job := domain.Job{
		ID:            uuid.NewString(),
		ClientID:      actor.ID,
		ClientName:    actor.Username,
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		Budget:        strings.TrimSpace(in.Budget),
		Location:      strings.TrimSpace(in.Location),
		Skills:        skills,
		TimerDuration: in.TimerDuration,
		CreatedAt:     now,
		ExpiryTime:    now.Add(time.Duration(in.TimerDuration) * time.Second),
		AutoRenew:     in.AutoRenew,
		Status:        domain.JobActive,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	log := m.logger.With(slog.String("job_id", job.ID), slog.String("client_id", actor.ID))
	log.Info("job created", slog.Time("expiry_time", job.ExpiryTime), slog.Bool("auto_renew", job.AutoRenew))

	if m.alerts != nil {
		if err := m.alerts.DispatchJobAlerts(ctx, job); err != nil {
			log.Error("dispatch job alerts failed", slog.Any("error", err))
		}
	}
	return &job, nil
}

// EditJob 仅允许职位所有者修改；携带 TimerDuration 时以当前时间重新计算过期时间。
func (m *Manager) EditJob(ctx context.Context, actor domain.User, id string, patch JobPatch) (*domain.Job, error) {
	job, err := m.ownedJob(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		job.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		job.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Budget != nil {
		job.Budget = strings.TrimSpace(*patch.Budget)
	}
	if patch.Location != nil {
		job.Location = strings.TrimSpace(*patch.Location)
	}
	if patch.Skills != nil {
		job.Skills = cleanSkills(patch.Skills)
	}
	if patch.AutoRenew != nil {
		job.AutoRenew = *patch.AutoRenew
	}
	if patch.Status != nil {
		if _, ok := domain.ParseJobStatus(string(*patch.Status)); !ok {
			return nil, errcode.Validationf("status", "unknown job status %q", *patch.Status)
		}
		job.Status = *patch.Status
	}
	if patch.TimerDuration != nil {
		job.TimerDuration = *patch.TimerDuration
	}
	if err := validateJob(job.Title, job.Skills, job.TimerDuration); err != nil {
		return nil, err
	}
	if patch.TimerDuration != nil {
		job.ExpiryTime = m.clock.Now().Add(time.Duration(job.TimerDuration) * time.Second)
	}

	if err := m.jobs.Update(ctx, *job); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errcode.NotFoundf("job not found")
		}
		return nil, fmt.Errorf("update job: %w", err)
	}
	return m.GetJob(ctx, id)
}

// DeleteJob 删除职位并级联删除其全部申请，不发送任何通知。
func (m *Manager) DeleteJob(ctx context.Context, actor domain.User, id string) (*domain.Job, error) {
	job, removed, err := m.jobs.DeleteCascade(ctx, id, func(j domain.Job) error {
		if j.ClientID != actor.ID {
			return errcode.Forbidden("only the job owner can delete this job")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errcode.NotFoundf("job not found")
		}
		return nil, err
	}
	m.logger.Info("job deleted",
		slog.String("job_id", id),
		slog.String("client_id", actor.ID),
		slog.Int("applications_removed", removed),
	)
	return job, nil
}

var errNotExpired = errors.New("job no longer expired")

// SweepExpired 删除 now 时刻已过期且未开启自动续期的职位，返回被删除的职位 ID。
// 单个职位失败时记录日志并继续。
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	expired, err := m.jobs.ListExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}

	removed := make([]string, 0, len(expired))
	for _, candidate := range expired {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		// 列表与删除之间职位可能被编辑，删除前在同一原子操作内复核。
		_, apps, err := m.jobs.DeleteCascade(ctx, candidate.ID, func(j domain.Job) error {
			if !j.Expired(now) {
				return errNotExpired
			}
			return nil
		})
		switch {
		case err == nil:
			removed = append(removed, candidate.ID)
			m.logger.Info("expired job removed",
				slog.String("job_id", candidate.ID),
				slog.Time("expiry_time", candidate.ExpiryTime),
				slog.Int("applications_removed", apps),
			)
		case errors.Is(err, errNotExpired), errors.Is(err, store.ErrNotFound):
		default:
			m.logger.Error("remove expired job failed",
				slog.String("job_id", candidate.ID),
				slog.Any("error", err),
			)
		}
	}
	return removed, nil
}

// IncrementApplyClicks 为公开计数，无需鉴权。
func (m *Manager) IncrementApplyClicks(ctx context.Context, id string) (int64, error) {
	clicks, err := m.jobs.IncrementApplyClicks(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return 0, errcode.NotFoundf("job not found")
	}
	return clicks, err
}

func (m *Manager) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := m.jobs.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errcode.NotFoundf("job not found")
	}
	return job, err
}

func (m *Manager) ListJobs(ctx context.Context, filter store.JobFilter) ([]domain.Job, error) {
	if filter.Status != "" {
		if _, ok := domain.ParseJobStatus(string(filter.Status)); !ok {
			return nil, errcode.Validationf("status", "unknown job status %q", filter.Status)
		}
	}
	return m.jobs.List(ctx, filter)
}

func (m *Manager) ownedJob(ctx context.Context, actor domain.User, id string) (*domain.Job, error) {
	job, err := m.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actor.ID {
		return nil, errcode.Forbidden("only the job owner can modify this job")
	}
	return job, nil
}

func validateJob(title string, skills []string, timerDuration int64) error {
	switch {
	case title == "":
		return errcode.Validationf("title", "title is required")
	case len(title) > MaxTitleLength:
		return errcode.Validationf("title", "title exceeds %d characters", MaxTitleLength)
	case len(skills) == 0:
		return errcode.Validationf("skills", "at least one skill is required")
	case timerDuration <= 0:
		return errcode.Validationf("timerDuration", "timerDuration must be a positive number of seconds")
	}
	return nil
}

func cleanSkills(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
