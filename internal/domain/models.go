package domain

import (
	"encoding/json"
	"time"
)

// Role 区分发布职位的客户与投递申请的自由职业者。
type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
)

// ParseRole 校验角色字符串。
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleClient, RoleFreelancer:
		return r, true
	}
	return "", false
}

// Profile 为用户的公开资料。
type Profile struct {
	Skills  []string `json:"skills"`
	Contact string   `json:"contact,omitempty"`
}

// AlertPreferences 控制职位提醒订阅；技能比较不区分大小写。
type AlertPreferences struct {
	Enabled bool     `json:"enabled"`
	Skills  []string `json:"skills"`
}

// User 表示系统中的账号信息。
type User struct {
	ID                 string           `json:"id"`
	Email              string           `json:"email"`
	Username           string           `json:"username"`
	PasswordHash       string           `json:"-"`
	Role               Role             `json:"role"`
	Profile            Profile          `json:"profile"`
	AlertPreferences   AlertPreferences `json:"alertPreferences"`
	GithubRepositories json.RawMessage  `json:"githubRepositories,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
}

// JobStatus 为职位状态。
type JobStatus string

const (
	JobActive JobStatus = "active"
	JobClosed JobStatus = "closed"
	JobFilled JobStatus = "filled"
)

// ParseJobStatus 校验职位状态字符串。
func ParseJobStatus(s string) (JobStatus, bool) {
	switch st := JobStatus(s); st {
	case JobActive, JobClosed, JobFilled:
		return st, true
	}
	return "", false
}

// Job 是带有存活时间（TTL）的职位。
// ExpiryTime 在创建时确定，仅当编辑显式携带 timerDuration 时才会重新计算。
type Job struct {
	ID            string    `json:"id"`
	ClientID      string    `json:"clientId"`
	ClientName    string    `json:"clientName"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Budget        string    `json:"budget,omitempty"`
	Location      string    `json:"location,omitempty"`
	Skills        []string  `json:"skills"`
	TimerDuration int64     `json:"timerDuration"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiryTime    time.Time `json:"expiryTime"`
	AutoRenew     bool      `json:"autoRenew"`
	Status        JobStatus `json:"status"`
	ApplyClicks   int64     `json:"applyClicks"`
}

// Expired 报告职位在 now 时刻是否应被清理；自动续期的职位永不过期。
func (j Job) Expired(now time.Time) bool {
	return !j.AutoRenew && now.After(j.ExpiryTime)
}

// ApplicationStatus 为申请状态。
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)

// AttachmentRef 指向已上传到对象存储的文件。
type AttachmentRef struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
}

// Application 为自由职业者对某个职位的投递。
type Application struct {
	ID                string            `json:"id"`
	JobID             string            `json:"jobId"`
	FreelancerID      string            `json:"freelancerId"`
	FreelancerName    string            `json:"freelancerName"`
	CoverLetter       string            `json:"coverLetter"`
	Resume            AttachmentRef     `json:"resume"`
	Attachments       []AttachmentRef   `json:"attachments,omitempty"`
	Status            ApplicationStatus `json:"status"`
	SubmittedAt       time.Time         `json:"submittedAt"`
	InterviewDateTime *time.Time        `json:"interviewDateTime,omitempty"`
	InterviewMessage  string            `json:"interviewMessage,omitempty"`
}

// NotificationType 为通知类型。
type NotificationType string

const (
	NotificationJobAlert           NotificationType = "job-alert"
	NotificationJobApplication     NotificationType = "job-application"
	NotificationStatusUpdate       NotificationType = "status-update"
	NotificationMessage            NotificationType = "message"
	NotificationInterviewScheduled NotificationType = "interview-scheduled"
	NotificationRating             NotificationType = "rating"
)

// Notification 为站内通知；创建后只允许翻转 IsRead。
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
	JobID     string           `json:"jobId,omitempty"`
	// DedupKey 非空时，同一用户下同一 key 至多存在一条通知。
	DedupKey string `json:"-"`
}

// InterviewStatus 为面试状态。
type InterviewStatus string

const (
	InterviewScheduled InterviewStatus = "scheduled"
	InterviewCompleted InterviewStatus = "completed"
	InterviewCancelled InterviewStatus = "cancelled"
)

// Interview 在客户接受申请并立即安排面试时创建。
type Interview struct {
	ID             string          `json:"id"`
	ApplicationID  string          `json:"applicationId"`
	JobID          string          `json:"jobId"`
	JobTitle       string          `json:"jobTitle"`
	FreelancerID   string          `json:"freelancerId"`
	FreelancerName string          `json:"freelancerName"`
	ClientID       string          `json:"clientId"`
	ClientName     string          `json:"clientName"`
	DateTime       time.Time       `json:"dateTime"`
	Message        string          `json:"message"`
	Status         InterviewStatus `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ChatMessage 为两个用户之间的一条聊天消息。
// 排序键为 CreatedAt，相同时间按 Seq（写入顺序）排序。
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
	Seq        int64     `json:"-"`
}

// Involves 报告消息是否属于 a 与 b 之间的会话。
func (m ChatMessage) Involves(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Before 按会话排序规则比较两条消息。
func (m ChatMessage) Before(other ChatMessage) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.Seq < other.Seq
}

// SavedJob 为用户收藏的职位。
type SavedJob struct {
	UserID  string    `json:"userId"`
	JobID   string    `json:"jobId"`
	SavedAt time.Time `json:"savedAt"`
}

// Rating 为自由职业者对客户的评分。
type Rating struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"clientId"`
	FreelancerID string    `json:"freelancerId"`
	Score        int       `json:"score"`
	Comment      string    `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ClientRating 为客户的评分汇总。
type ClientRating struct {
	ClientID string  `json:"clientId"`
	Average  float64 `json:"average"`
	Count    int     `json:"count"`
}

// ConversationSummary 汇总与某个联系人的会话。
type ConversationSummary struct {
	UserID      string       `json:"userId"`
	LastMessage *ChatMessage `json:"lastMessage,omitempty"`
	UnreadCount int          `json:"unreadCount"`
}
