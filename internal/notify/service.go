// Package notify 负责通知的持久化、去重与实时推送。
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"gigboard/internal/clock"
	"gigboard/internal/domain"
	"gigboard/internal/errcode"
	"gigboard/internal/metrics"
	"gigboard/internal/realtime"
	"gigboard/internal/store"
)

// Service 先写入通知再推送；推送失败不影响写入结果。
type Service struct {
	repo      store.NotificationRepository
	publisher realtime.Publisher
	clock     clock.Clock
	logger    *slog.Logger
}

func NewService(repo store.NotificationRepository, publisher realtime.Publisher, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, publisher: publisher, clock: clk, logger: logger}
}

// Send 持久化通知并以 notification 事件推送给接收者。
func (s *Service) Send(ctx context.Context, n domain.Notification) (*domain.Notification, error) {
	n.DedupKey = ""
	s.stamp(&n)
	if _, err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	metrics.NotificationCreated(string(n.Type))
	s.publisher.Publish(ctx, n.UserID, realtime.EventNotification, n)
	return &n, nil
}

// SendOnce 按 n.DedupKey 去重；仅在新建时以 event/payload 推送。
func (s *Service) SendOnce(ctx context.Context, n domain.Notification, event string, payload any) (bool, error) {
	if n.DedupKey == "" {
		return false, errors.New("dedup key is required")
	}
	s.stamp(&n)
	created, err := s.repo.Create(ctx, n)
	if err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}
	if !created {
		metrics.NotificationDeduplicated()
		s.logger.Debug("notification deduplicated",
			slog.String("user_id", n.UserID),
			slog.String("dedup_key", n.DedupKey),
		)
		return false, nil
	}
	metrics.NotificationCreated(string(n.Type))
	s.publisher.Publish(ctx, n.UserID, event, payload)
	return true, nil
}

// List 按时间倒序返回用户的全部通知。
func (s *Service) List(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.ListByUser(ctx, userID)
}

// MarkRead 标记单条通知为已读；不属于该用户时视为不存在。
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	err := s.repo.MarkRead(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return errcode.NotFoundf("notification not found")
	}
	return err
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *Service) stamp(n *domain.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock.Now()
	}
	n.IsRead = false
}
