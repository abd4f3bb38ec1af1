package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gigboard/internal/domain"
	"gigboard/internal/store"
)

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrDuplicate
	default:
		return err
	}
}

func exists(tx *gorm.DB, model any, query string, args ...any) (bool, error) {
	var count int64
	if err := tx.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

type userRepo struct{ db *gorm.DB }

func (r *userRepo) Create(ctx context.Context, user domain.User) error {
	m := userFromDomain(user)
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := exists(tx, &User{}, "email = ? OR username = ?", m.Email, m.Username)
		if err != nil {
			return err
		}
		if taken {
			return store.ErrDuplicate
		}
		return tx.Create(&m).Error
	}))
}

func (r *userRepo) Get(ctx context.Context, id string) (*domain.User, error) {
	var m User
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	u := m.toDomain()
	return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var m User
	if err := r.db.WithContext(ctx).First(&m, "email = ?", normalizeEmail(email)).Error; err != nil {
		return nil, translate(err)
	}
	u := m.toDomain()
	return &u, nil
}

func (r *userRepo) Update(ctx context.Context, user domain.User) error {
	m := userFromDomain(user)
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", m.ID).Select("*").Omit("id", "created_at").Updates(&m)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *userRepo) ListAlertSubscribers(ctx context.Context) ([]domain.User, error) {
	var models []User
	if err := r.db.WithContext(ctx).
		Where("alerts_enabled = ?", true).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(models))
	for _, m := range models {
		if len(m.AlertSkills) == 0 {
			continue
		}
		out = append(out, m.toDomain())
	}
	return out, nil
}

type jobRepo struct{ db *gorm.DB }

func (r *jobRepo) Create(ctx context.Context, job domain.Job) error {
	m := jobFromDomain(job)
	return translate(r.db.WithContext(ctx).Create(&m).Error)
}

func (r *jobRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	var m Job
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	j := m.toDomain()
	return &j, nil
}

func (r *jobRepo) Update(ctx context.Context, job domain.Job) error {
	m := jobFromDomain(job)
	res := r.db.WithContext(ctx).Model(&Job{}).Where("id = ?", m.ID).
		Select("*").Omit("id", "client_id", "created_at", "apply_clicks").
		Updates(&m)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *jobRepo) List(ctx context.Context, filter store.JobFilter) ([]domain.Job, error) {
	q := r.db.WithContext(ctx).Model(&Job{})
	if filter.ClientID != "" {
		q = q.Where("client_id = ?", filter.ClientID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	var models []Job
	if err := q.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Job, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *jobRepo) ListExpired(ctx context.Context, now time.Time) ([]domain.Job, error) {
	var models []Job
	if err := r.db.WithContext(ctx).
		Where("auto_renew = ? AND expiry_time < ?", false, now.UTC()).
		Order("expiry_time ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Job, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *jobRepo) DeleteCascade(ctx context.Context, id string, guard func(domain.Job) error) (*domain.Job, int, error) {
	var (
		deleted domain.Job
		removed int64
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = m.toDomain()
		if guard != nil {
			if err := guard(deleted); err != nil {
				return err
			}
		}
		res := tx.Where("job_id = ?", id).Delete(&Application{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		if err := tx.Where("job_id = ?", id).Delete(&SavedJob{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Job{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, 0, translate(err)
	}
	return &deleted, int(removed), nil
}

func (r *jobRepo) IncrementApplyClicks(ctx context.Context, id string) (int64, error) {
	var clicks int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Job{}).Where("id = ?", id).
			UpdateColumn("apply_clicks", gorm.Expr("apply_clicks + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&Job{}).Where("id = ?", id).Pluck("apply_clicks", &clicks).Error
	})
	if err != nil {
		return 0, translate(err)
	}
	return clicks, nil
}

type applicationRepo struct{ db *gorm.DB }

func (r *applicationRepo) Create(ctx context.Context, app domain.Application) error {
	m := applicationFromDomain(app)
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job Job
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Select("id").First(&job, "id = ?", m.JobID).Error; err != nil {
			return err
		}
		dup, err := exists(tx, &Application{}, "job_id = ? AND freelancer_id = ?", m.JobID, m.FreelancerID)
		if err != nil {
			return err
		}
		if dup {
			return store.ErrDuplicate
		}
		return tx.Create(&m).Error
	}))
}

func (r *applicationRepo) Get(ctx context.Context, id string) (*domain.Application, error) {
	var m Application
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	a := m.toDomain()
	return &a, nil
}

func (r *applicationRepo) ListByJob(ctx context.Context, jobID string) ([]domain.Application, error) {
	return r.list(ctx, "job_id = ?", jobID)
}

func (r *applicationRepo) ListByFreelancer(ctx context.Context, freelancerID string) ([]domain.Application, error) {
	return r.list(ctx, "freelancer_id = ?", freelancerID)
}

func (r *applicationRepo) list(ctx context.Context, query string, args ...any) ([]domain.Application, error) {
	var models []Application
	if err := r.db.WithContext(ctx).Where(query, args...).Order("submitted_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Application, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *applicationRepo) Update(ctx context.Context, id string, mutate func(*domain.Application) error) (*domain.Application, error) {
	var updated domain.Application
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m Application
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "id = ?", id).Error; err != nil {
			return err
		}
		next := m.toDomain()
		if err := mutate(&next); err != nil {
			return err
		}
		next.ID, next.JobID, next.FreelancerID = m.ID, m.JobID, m.FreelancerID
		nm := applicationFromDomain(next)
		if err := tx.Model(&Application{}).Where("id = ?", id).
			Select("*").Omit("id", "job_id", "freelancer_id").
			Updates(&nm).Error; err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return &updated, nil
}

type notificationRepo struct{ db *gorm.DB }

func (r *notificationRepo) Create(ctx context.Context, n domain.Notification) (bool, error) {
	m := notificationFromDomain(n)
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if m.DedupKey != nil {
			dup, err := exists(tx, &Notification{}, "user_id = ? AND dedup_key = ?", m.UserID, *m.DedupKey)
			if err != nil {
				return err
			}
			if dup {
				return nil
			}
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) && m.DedupKey != nil {
		// 并发写入同一 dedup key 时由唯一索引兜底。
		return false, nil
	}
	if err != nil {
		return false, translate(err)
	}
	return created, nil
}

func (r *notificationRepo) ListByUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	var models []Notification
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, seq DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// 已读的通知同样会命中；只有不存在或不属于该用户时才为 0。
		found, err := exists(r.db.WithContext(ctx), &Notification{}, "id = ? AND user_id = ?", id, userID)
		if err != nil {
			return err
		}
		if !found {
			return store.ErrNotFound
		}
	}
	return nil
}

func (r *notificationRepo) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res := r.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r *notificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

type interviewRepo struct{ db *gorm.DB }

func (r *interviewRepo) SaveForApplication(ctx context.Context, iv domain.Interview) (*domain.Interview, bool, error) {
	var (
		saved   domain.Interview
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Interview
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&existing, "application_id = ?", iv.ApplicationID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			m := interviewFromDomain(iv)
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
			saved, created = m.toDomain(), true
			return nil
		case err != nil:
			return err
		}
		existing.DateTime = utc(iv.DateTime)
		existing.Message = iv.Message
		existing.Status = string(iv.Status)
		if err := tx.Model(&Interview{}).Where("id = ?", existing.ID).Updates(map[string]any{
			"date_time": existing.DateTime,
			"message":   existing.Message,
			"status":    existing.Status,
		}).Error; err != nil {
			return err
		}
		saved = existing.toDomain()
		return nil
	})
	if err != nil {
		return nil, false, translate(err)
	}
	return &saved, created, nil
}

func (r *interviewRepo) GetByApplication(ctx context.Context, applicationID string) (*domain.Interview, error) {
	var m Interview
	if err := r.db.WithContext(ctx).First(&m, "application_id = ?", applicationID).Error; err != nil {
		return nil, translate(err)
	}
	iv := m.toDomain()
	return &iv, nil
}

func (r *interviewRepo) ListByParticipant(ctx context.Context, userID string) ([]domain.Interview, error) {
	var models []Interview
	if err := r.db.WithContext(ctx).
		Where("client_id = ? OR freelancer_id = ?", userID, userID).
		Order("date_time ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Interview, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

type messageRepo struct{ db *gorm.DB }

const pairClause = "(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)"

func (r *messageRepo) Create(ctx context.Context, msg domain.ChatMessage) (*domain.ChatMessage, error) {
	m := messageFromDomain(msg)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, translate(err)
	}
	msg.Seq = int64(m.Seq)
	return &msg, nil
}

// lockPair 在事务内按无序用户对加锁（PostgreSQL 事务级 advisory lock），
// 同一对用户的并发开场会话在此排队。SQLite 本身串行化写事务，无需加锁。
func lockPair(tx *gorm.DB, a, b string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", pairKey(a, b)).Error
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "chat:" + a + ":" + b
}

func (r *messageRepo) CreateOpening(ctx context.Context, first, second domain.ChatMessage) ([]domain.ChatMessage, bool, error) {
	var out []domain.ChatMessage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, b := first.SenderID, first.ReceiverID
		if err := lockPair(tx, a, b); err != nil {
			return err
		}
		found, err := exists(tx, &ChatMessage{}, pairClause, a, b, b, a)
		if err != nil || found {
			return err
		}
		for _, msg := range []domain.ChatMessage{first, second} {
			m := messageFromDomain(msg)
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
			msg.Seq = int64(m.Seq)
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, false, translate(err)
	}
	return out, len(out) > 0, nil
}

func (r *messageRepo) Between(ctx context.Context, a, b string) ([]domain.ChatMessage, error) {
	return r.find(ctx, pairClause, a, b, b, a)
}

func (r *messageRepo) Involving(ctx context.Context, userID string) ([]domain.ChatMessage, error) {
	return r.find(ctx, "sender_id = ? OR receiver_id = ?", userID, userID)
}

func (r *messageRepo) find(ctx context.Context, query string, args ...any) ([]domain.ChatMessage, error) {
	var models []ChatMessage
	if err := r.db.WithContext(ctx).Where(query, args...).Order("created_at ASC, seq ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ChatMessage, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *messageRepo) MarkRead(ctx context.Context, reader, other string) (int, error) {
	res := r.db.WithContext(ctx).Model(&ChatMessage{}).
		Where("sender_id = ? AND receiver_id = ? AND read = ?", other, reader, false).
		Update("read", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

type savedJobRepo struct{ db *gorm.DB }

func (r *savedJobRepo) Save(ctx context.Context, saved domain.SavedJob) error {
	m := SavedJob{UserID: saved.UserID, JobID: saved.JobID, SavedAt: utc(saved.SavedAt)}
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job Job
		if err := tx.Select("id").First(&job, "id = ?", m.JobID).Error; err != nil {
			return err
		}
		dup, err := exists(tx, &SavedJob{}, "user_id = ? AND job_id = ?", m.UserID, m.JobID)
		if err != nil {
			return err
		}
		if dup {
			return store.ErrDuplicate
		}
		return tx.Create(&m).Error
	}))
}

func (r *savedJobRepo) Delete(ctx context.Context, userID, jobID string) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND job_id = ?", userID, jobID).Delete(&SavedJob{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *savedJobRepo) ListByUser(ctx context.Context, userID string) ([]domain.SavedJob, error) {
	var models []SavedJob
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("saved_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SavedJob, 0, len(models))
	for _, m := range models {
		out = append(out, domain.SavedJob{UserID: m.UserID, JobID: m.JobID, SavedAt: m.SavedAt})
	}
	return out, nil
}

type ratingRepo struct{ db *gorm.DB }

func (r *ratingRepo) Create(ctx context.Context, rating domain.Rating) error {
	m := Rating{
		ID:           rating.ID,
		ClientID:     rating.ClientID,
		FreelancerID: rating.FreelancerID,
		Score:        rating.Score,
		Comment:      rating.Comment,
		CreatedAt:    utc(rating.CreatedAt),
	}
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dup, err := exists(tx, &Rating{}, "client_id = ? AND freelancer_id = ?", m.ClientID, m.FreelancerID)
		if err != nil {
			return err
		}
		if dup {
			return store.ErrDuplicate
		}
		return tx.Create(&m).Error
	}))
}

func (r *ratingRepo) ListByClient(ctx context.Context, clientID string) ([]domain.Rating, error) {
	var models []Rating
	if err := r.db.WithContext(ctx).Where("client_id = ?", clientID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Rating, 0, len(models))
	for _, m := range models {
		out = append(out, domain.Rating{
			ID:           m.ID,
			ClientID:     m.ClientID,
			FreelancerID: m.FreelancerID,
			Score:        m.Score,
			Comment:      m.Comment,
			CreatedAt:    m.CreatedAt,
		})
	}
	return out, nil
}
