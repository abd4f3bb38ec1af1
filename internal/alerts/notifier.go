// Package alerts 在职位发布后按技能重合度向订阅用户发送职位提醒。
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gigboard/internal/domain"
	"gigboard/internal/notify"
	"gigboard/internal/realtime"
	"gigboard/internal/store"
)

// Threshold 为触发提醒的最低匹配百分比。
const Threshold = 50.0

// Match 为一次技能匹配的结果。
type Match struct {
	Percentage float64
	Skills     []string
}

// MatchSkills 计算 |S∩U| / |S| * 100，S、U 均按小写去重；ok 表示达到阈值。
// 返回的技能沿用职位中的原始写法与顺序。
func MatchSkills(jobSkills, userSkills []string) (Match, bool) {
	wanted := make(map[string]struct{}, len(userSkills))
	for _, s := range userSkills {
		if k := normalize(s); k != "" {
			wanted[k] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(jobSkills))
	var matched []string
	for _, s := range jobSkills {
		k := normalize(s)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := wanted[k]; ok {
			matched = append(matched, strings.TrimSpace(s))
		}
	}
	if len(seen) == 0 {
		return Match{}, false
	}

	m := Match{
		Percentage: float64(len(matched)) / float64(len(seen)) * 100,
		Skills:     matched,
	}
	return m, len(matched) > 0 && m.Percentage >= Threshold
}

// DedupKey 为同一用户下同一职位标题的提醒键。
func DedupKey(title string) string {
	return "job-alert:" + normalize(title)
}

// Payload 为 job_alert 事件负载。
type Payload struct {
	Message  string `json:"message"`
	JobID    string `json:"jobId"`
	JobTitle string `json:"jobTitle"`
}

// Notifier 扫描开启提醒的用户并发送 job-alert 通知。
type Notifier struct {
	users  store.UserRepository
	notify *notify.Service
	logger *slog.Logger
}

func NewNotifier(users store.UserRepository, notifications *notify.Service, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{users: users, notify: notifications, logger: logger}
}

// DispatchJobAlerts 在当前 goroutine 内完成提醒扇出。
func (n *Notifier) DispatchJobAlerts(ctx context.Context, job domain.Job) error {
	_, err := n.NotifyJobCreated(ctx, job)
	return err
}

// NotifyJobCreated 返回新建的提醒数量。单个用户失败时记录日志并继续，
// 最终汇总返回全部错误。
func (n *Notifier) NotifyJobCreated(ctx context.Context, job domain.Job) (int, error) {
	subscribers, err := n.users.ListAlertSubscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list alert subscribers: %w", err)
	}

	var (
		sent int
		errs []error
	)
	for _, user := range subscribers {
		if user.ID == job.ClientID {
			continue
		}
		match, ok := MatchSkills(job.Skills, user.AlertPreferences.Skills)
		if !ok {
			continue
		}

		message := fmt.Sprintf("New job matching your skills: %s. Matching skills: %s",
			job.Title, strings.Join(match.Skills, ", "))
		created, err := n.notify.SendOnce(ctx, domain.Notification{
			UserID:   user.ID,
			Type:     domain.NotificationJobAlert,
			Message:  message,
			JobID:    job.ID,
			DedupKey: DedupKey(job.Title),
		}, realtime.EventJobAlert, Payload{
			Message:  message,
			JobID:    job.ID,
			JobTitle: job.Title,
		})
		if err != nil {
			n.logger.Error("send job alert failed",
				slog.String("job_id", job.ID),
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
			errs = append(errs, err)
			continue
		}
		if created {
			sent++
		}
	}

	n.logger.Info("job alerts dispatched",
		slog.String("job_id", job.ID),
		slog.Int("subscribers", len(subscribers)),
		slog.Int("sent", sent),
	)
	return sent, errors.Join(errs...)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
