// Package store 定义各实体的仓储接口。
//
// 每个实现（内存版 memory、gorm 版 database）都必须保证：多步操作
// （删除职位并级联删除申请、查重后插入、去重后插入通知、仅在无会话时
// 初始化聊天、状态比较后更新）对并发读写表现为原子操作。
package store

import (
	"context"
	"errors"
	"time"

	"gigboard/internal/domain"
)

var (
	ErrNotFound  = errors.New("store: record not found")
	ErrDuplicate = errors.New("store: duplicate record")
)

// Store 聚合全部仓储，按需注入到各组件。
type Store struct {
	Users         UserRepository
	Jobs          JobRepository
	Applications  ApplicationRepository
	Notifications NotificationRepository
	Interviews    InterviewRepository
	Messages      MessageRepository
	SavedJobs     SavedJobRepository
	Ratings       RatingRepository
}

type UserRepository interface {
	// Create 插入用户；邮箱或用户名冲突时返回 ErrDuplicate。
	Create(ctx context.Context, user domain.User) error
	Get(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user domain.User) error
	// ListAlertSubscribers 返回开启提醒且技能列表非空的用户。
	ListAlertSubscribers(ctx context.Context) ([]domain.User, error)
}

// JobFilter 为职位列表筛选条件，零值表示不过滤。
type JobFilter struct {
	ClientID string
	Status   domain.JobStatus
}

type JobRepository interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	// Update 覆盖可编辑字段，不会改写 ApplyClicks。
	Update(ctx context.Context, job domain.Job) error
	// List 按创建时间倒序返回。
	List(ctx context.Context, filter JobFilter) ([]domain.Job, error)
	// ListExpired 返回 now 时刻已过期且未开启自动续期的职位。
	ListExpired(ctx context.Context, now time.Time) ([]domain.Job, error)
	// DeleteCascade 在一次原子操作内删除职位及其全部申请与收藏记录。
	// guard 不为 nil 时先对当前职位求值，返回错误则放弃删除并原样返回该错误。
	DeleteCascade(ctx context.Context, id string, guard func(domain.Job) error) (*domain.Job, int, error)
	IncrementApplyClicks(ctx context.Context, id string) (int64, error)
}

type ApplicationRepository interface {
	// Create 插入申请；职位不存在返回 ErrNotFound，
	// (JobID, FreelancerID) 已存在返回 ErrDuplicate。
	Create(ctx context.Context, app domain.Application) error
	Get(ctx context.Context, id string) (*domain.Application, error)
	ListByJob(ctx context.Context, jobID string) ([]domain.Application, error)
	ListByFreelancer(ctx context.Context, freelancerID string) ([]domain.Application, error)
	// Update 以读-改-写的方式原子更新申请，mutate 返回错误时不写入。
	Update(ctx context.Context, id string, mutate func(*domain.Application) error) (*domain.Application, error)
}

type NotificationRepository interface {
	// Create 插入通知；DedupKey 非空且该用户已存在相同 key 时返回 false。
	Create(ctx context.Context, n domain.Notification) (bool, error)
	// ListByUser 按创建时间倒序返回。
	ListByUser(ctx context.Context, userID string) ([]domain.Notification, error)
	// MarkRead 仅对属于 userID 的通知生效，否则返回 ErrNotFound。
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

type InterviewRepository interface {
	// SaveForApplication 每个申请至多保留一条面试记录：已存在时更新时间、
	// 留言与状态，并返回 created=false。
	SaveForApplication(ctx context.Context, iv domain.Interview) (*domain.Interview, bool, error)
	GetByApplication(ctx context.Context, applicationID string) (*domain.Interview, error)
	// ListByParticipant 返回用户作为客户或自由职业者参与的面试，按时间升序。
	ListByParticipant(ctx context.Context, userID string) ([]domain.Interview, error)
}

type MessageRepository interface {
	// Create 插入消息并分配写入序号。
	Create(ctx context.Context, msg domain.ChatMessage) (*domain.ChatMessage, error)
	// CreateOpening 仅当双方之间尚无任何消息时插入 first 与 second，
	// 已有会话时返回 created=false 且不写入。
	CreateOpening(ctx context.Context, first, second domain.ChatMessage) ([]domain.ChatMessage, bool, error)
	// Between 返回双方之间的消息，按 CreatedAt、Seq 升序。
	Between(ctx context.Context, a, b string) ([]domain.ChatMessage, error)
	// Involving 返回用户收发的全部消息，按 CreatedAt、Seq 升序。
	Involving(ctx context.Context, userID string) ([]domain.ChatMessage, error)
	// MarkRead 将 other 发给 reader 的未读消息置为已读，返回更新条数。
	MarkRead(ctx context.Context, reader, other string) (int, error)
}

type SavedJobRepository interface {
	// Save 职位不存在返回 ErrNotFound，重复收藏返回 ErrDuplicate。
	Save(ctx context.Context, saved domain.SavedJob) error
	Delete(ctx context.Context, userID, jobID string) error
	ListByUser(ctx context.Context, userID string) ([]domain.SavedJob, error)
}

type RatingRepository interface {
	// Create 同一自由职业者对同一客户重复评分返回 ErrDuplicate。
	Create(ctx context.Context, rating domain.Rating) error
	ListByClient(ctx context.Context, clientID string) ([]domain.Rating, error)
}
