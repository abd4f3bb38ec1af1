// Package engagement 处理职位收藏与客户评分。
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"gigboard/internal/clock"
	"gigboard/internal/domain"
	"gigboard/internal/errcode"
	"gigboard/internal/notify"
	"gigboard/internal/store"
)

const (
	MinScore = 1
	MaxScore = 5
)

type Service struct {
	users   store.UserRepository
	saved   store.SavedJobRepository
	ratings store.RatingRepository
	notify  *notify.Service
	clock   clock.Clock
	logger  *slog.Logger
}

func NewService(st *store.Store, notifications *notify.Service, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:   st.Users,
		saved:   st.SavedJobs,
		ratings: st.Ratings,
		notify:  notifications,
		clock:   clk,
		logger:  logger,
	}
}

func (s *Service) SaveJob(ctx context.Context, actor domain.User, jobID string) (*domain.SavedJob, error) {
	saved := domain.SavedJob{UserID: actor.ID, JobID: jobID, SavedAt: s.clock.Now()}
	switch err := s.saved.Save(ctx, saved); {
	case errors.Is(err, store.ErrNotFound):
		return nil, errcode.NotFoundf("job not found")
	case errors.Is(err, store.ErrDuplicate):
		return nil, errcode.Duplicatef("job already saved")
	case err != nil:
		return nil, fmt.Errorf("save job: %w", err)
	}
	return &saved, nil
}

func (s *Service) UnsaveJob(ctx context.Context, actor domain.User, jobID string) error {
	err := s.saved.Delete(ctx, actor.ID, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return errcode.NotFoundf("saved job not found")
	}
	return err
}

func (s *Service) SavedJobs(ctx context.Context, actor domain.User) ([]domain.SavedJob, error) {
	return s.saved.ListByUser(ctx, actor.ID)
}

// RateClient 记录自由职业者对客户的评分，每对只能评一次，并通知客户。
func (s *Service) RateClient(ctx context.Context, actor domain.User, clientID string, score int, comment string) (*domain.Rating, error) {
	if actor.Role != domain.RoleFreelancer {
		return nil, errcode.Forbidden("only freelancers can rate clients")
	}
	if score < MinScore || score > MaxScore {
		return nil, errcode.Validationf("score", "score must be between %d and %d", MinScore, MaxScore)
	}
	client, err := s.users.Get(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && client.Role != domain.RoleClient) {
		return nil, errcode.NotFoundf("client not found")
	}
	if err != nil {
		return nil, err
	}

	rating := domain.Rating{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		FreelancerID: actor.ID,
		Score:        score,
		Comment:      strings.TrimSpace(comment),
		CreatedAt:    s.clock.Now(),
	}
	switch err := s.ratings.Create(ctx, rating); {
	case errors.Is(err, store.ErrDuplicate):
		return nil, errcode.Duplicatef("You have already rated this client")
	case err != nil:
		return nil, fmt.Errorf("create rating: %w", err)
	}

	if _, err := s.notify.Send(ctx, domain.Notification{
		UserID:  clientID,
		Type:    domain.NotificationRating,
		Message: fmt.Sprintf("%s rated you %d/%d", actor.Username, score, MaxScore),
	}); err != nil {
		s.logger.Error("send rating notification failed",
			slog.String("client_id", clientID),
			slog.Any("error", err),
		)
	}
	return &rating, nil
}

// ClientRating 返回平均分（保留一位小数）与评分数量。
func (s *Service) ClientRating(ctx context.Context, clientID string) (*domain.ClientRating, error) {
	ratings, err := s.ratings.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	out := &domain.ClientRating{ClientID: clientID, Count: len(ratings)}
	if len(ratings) == 0 {
		return out, nil
	}
	total := 0
	for _, r := range ratings {
		total += r.Score
	}
	out.Average = math.Round(float64(total)/float64(len(ratings))*10) / 10
	return out, nil
}
