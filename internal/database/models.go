package database

import (
	"strings"
	"time"

	"gorm.io/datatypes"

	"gigboard/internal/domain"
)

// User 表示系统中的账号信息。
type User struct {
	ID                 string                      `gorm:"primaryKey;size:36"`
	Email              string                      `gorm:"uniqueIndex;size:255"`
	Username           string                      `gorm:"uniqueIndex;size:64"`
	PasswordHash       string                      `gorm:"size:255"`
	Role               string                      `gorm:"size:16"`
	Skills             datatypes.JSONSlice[string] `gorm:"type:json"`
	Contact            string                      `gorm:"size:255"`
	AlertsEnabled      bool                        `gorm:"index"`
	AlertSkills        datatypes.JSONSlice[string] `gorm:"type:json"`
	GithubRepositories datatypes.JSON
	CreatedAt          time.Time
}

// Job 表示职位。
type Job struct {
	ID            string                      `gorm:"primaryKey;size:36"`
	ClientID      string                      `gorm:"index;size:36"`
	ClientName    string                      `gorm:"size:64"`
	Title         string                      `gorm:"size:255"`
	Description   string                      `gorm:"type:text"`
	Budget        string                      `gorm:"size:64"`
	Location      string                      `gorm:"size:128"`
	Skills        datatypes.JSONSlice[string] `gorm:"type:json"`
	TimerDuration int64
	CreatedAt     time.Time
	ExpiryTime    time.Time `gorm:"index"`
	AutoRenew     bool
	Status        string `gorm:"size:16;index"`
	ApplyClicks   int64
}

// Application 表示投递；(JobID, FreelancerID) 唯一。
type Application struct {
	ID                string                                    `gorm:"primaryKey;size:36"`
	JobID             string                                    `gorm:"size:36;uniqueIndex:idx_applications_job_freelancer"`
	FreelancerID      string                                    `gorm:"size:36;uniqueIndex:idx_applications_job_freelancer;index"`
	FreelancerName    string                                    `gorm:"size:64"`
	CoverLetter       string                                    `gorm:"type:text"`
	Resume            datatypes.JSONType[domain.AttachmentRef]  `gorm:"type:json"`
	Attachments       datatypes.JSONSlice[domain.AttachmentRef] `gorm:"type:json"`
	Status            string                                    `gorm:"size:16"`
	SubmittedAt       time.Time
	InterviewDateTime *time.Time
	InterviewMessage  string `gorm:"type:text"`
}

// Notification 以自增 Seq 为主键以保留写入顺序；(UserID, DedupKey) 唯一，NULL 不参与去重。
type Notification struct {
	Seq       uint64  `gorm:"primaryKey;autoIncrement"`
	ID        string  `gorm:"uniqueIndex;size:36"`
	UserID    string  `gorm:"size:36;index;uniqueIndex:idx_notifications_dedup"`
	DedupKey  *string `gorm:"size:300;uniqueIndex:idx_notifications_dedup"`
	Message   string  `gorm:"type:text"`
	Type      string  `gorm:"size:32"`
	IsRead    bool
	JobID     string `gorm:"size:36"`
	CreatedAt time.Time
}

// Interview 每个申请至多一条。
type Interview struct {
	ID             string `gorm:"primaryKey;size:36"`
	ApplicationID  string `gorm:"uniqueIndex;size:36"`
	JobID          string `gorm:"size:36"`
	JobTitle       string `gorm:"size:255"`
	FreelancerID   string `gorm:"size:36;index"`
	FreelancerName string `gorm:"size:64"`
	ClientID       string `gorm:"size:36;index"`
	ClientName     string `gorm:"size:64"`
	DateTime       time.Time
	Message        string `gorm:"type:text"`
	Status         string `gorm:"size:16"`
	CreatedAt      time.Time
}

// ChatMessage 以自增 Seq 为主键，作为同一时间戳下的排序依据。
type ChatMessage struct {
	Seq        uint64 `gorm:"primaryKey;autoIncrement"`
	ID         string `gorm:"uniqueIndex;size:36"`
	SenderID   string `gorm:"size:36;index:idx_chat_messages_pair,priority:1"`
	ReceiverID string `gorm:"size:36;index:idx_chat_messages_pair,priority:2"`
	Content    string `gorm:"type:text"`
	Read       bool
	CreatedAt  time.Time
}

// SavedJob 为收藏记录。
type SavedJob struct {
	UserID  string `gorm:"primaryKey;size:36"`
	JobID   string `gorm:"primaryKey;size:36;index"`
	SavedAt time.Time
}

// Rating 为评分；同一自由职业者对同一客户只能评一次。
type Rating struct {
	ID           string `gorm:"primaryKey;size:36"`
	ClientID     string `gorm:"size:36;uniqueIndex:idx_ratings_pair"`
	FreelancerID string `gorm:"size:36;uniqueIndex:idx_ratings_pair"`
	Score        int
	Comment      string `gorm:"type:text"`
	CreatedAt    time.Time
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func userFromDomain(u domain.User) User {
	return User{
		ID:                 u.ID,
		Email:              normalizeEmail(u.Email),
		Username:           u.Username,
		PasswordHash:       u.PasswordHash,
		Role:               string(u.Role),
		Skills:             datatypes.JSONSlice[string](u.Profile.Skills),
		Contact:            u.Profile.Contact,
		AlertsEnabled:      u.AlertPreferences.Enabled,
		AlertSkills:        datatypes.JSONSlice[string](u.AlertPreferences.Skills),
		GithubRepositories: datatypes.JSON(u.GithubRepositories),
		CreatedAt:          utc(u.CreatedAt),
	}
}

func (m User) toDomain() domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Role:         domain.Role(m.Role),
		Profile: domain.Profile{
			Skills:  []string(m.Skills),
			Contact: m.Contact,
		},
		AlertPreferences: domain.AlertPreferences{
			Enabled: m.AlertsEnabled,
			Skills:  []string(m.AlertSkills),
		},
		GithubRepositories: []byte(m.GithubRepositories),
		CreatedAt:          m.CreatedAt,
	}
}

func jobFromDomain(j domain.Job) Job {
	return Job{
		ID:            j.ID,
		ClientID:      j.ClientID,
		ClientName:    j.ClientName,
		Title:         j.Title,
		Description:   j.Description,
		Budget:        j.Budget,
		Location:      j.Location,
		Skills:        datatypes.JSONSlice[string](j.Skills),
		TimerDuration: j.TimerDuration,
		CreatedAt:     utc(j.CreatedAt),
		ExpiryTime:    utc(j.ExpiryTime),
		AutoRenew:     j.AutoRenew,
		Status:        string(j.Status),
		ApplyClicks:   j.ApplyClicks,
	}
}

func (m Job) toDomain() domain.Job {
	return domain.Job{
		ID:            m.ID,
		ClientID:      m.ClientID,
		ClientName:    m.ClientName,
		Title:         m.Title,
		Description:   m.Description,
		Budget:        m.Budget,
		Location:      m.Location,
		Skills:        []string(m.Skills),
		TimerDuration: m.TimerDuration,
		CreatedAt:     m.CreatedAt,
		ExpiryTime:    m.ExpiryTime,
		AutoRenew:     m.AutoRenew,
		Status:        domain.JobStatus(m.Status),
		ApplyClicks:   m.ApplyClicks,
	}
}

func applicationFromDomain(a domain.Application) Application {
	m := Application{
		ID:               a.ID,
		JobID:            a.JobID,
		FreelancerID:     a.FreelancerID,
		FreelancerName:   a.FreelancerName,
		CoverLetter:      a.CoverLetter,
		Resume:           datatypes.NewJSONType(a.Resume),
		Attachments:      datatypes.JSONSlice[domain.AttachmentRef](a.Attachments),
		Status:           string(a.Status),
		SubmittedAt:      utc(a.SubmittedAt),
		InterviewMessage: a.InterviewMessage,
	}
	if a.InterviewDateTime != nil {
		t := utc(*a.InterviewDateTime)
		m.InterviewDateTime = &t
	}
	return m
}

func (m Application) toDomain() domain.Application {
	return domain.Application{
		ID:                m.ID,
		JobID:             m.JobID,
		FreelancerID:      m.FreelancerID,
		FreelancerName:    m.FreelancerName,
		CoverLetter:       m.CoverLetter,
		Resume:            m.Resume.Data(),
		Attachments:       []domain.AttachmentRef(m.Attachments),
		Status:            domain.ApplicationStatus(m.Status),
		SubmittedAt:       m.SubmittedAt,
		InterviewDateTime: m.InterviewDateTime,
		InterviewMessage:  m.InterviewMessage,
	}
}

func notificationFromDomain(n domain.Notification) Notification {
	m := Notification{
		ID:        n.ID,
		UserID:    n.UserID,
		Message:   n.Message,
		Type:      string(n.Type),
		IsRead:    n.IsRead,
		JobID:     n.JobID,
		CreatedAt: utc(n.CreatedAt),
	}
	if n.DedupKey != "" {
		key := n.DedupKey
		m.DedupKey = &key
	}
	return m
}

func (m Notification) toDomain() domain.Notification {
	n := domain.Notification{
		ID:        m.ID,
		UserID:    m.UserID,
		Message:   m.Message,
		Type:      domain.NotificationType(m.Type),
		IsRead:    m.IsRead,
		JobID:     m.JobID,
		CreatedAt: m.CreatedAt,
	}
	if m.DedupKey != nil {
		n.DedupKey = *m.DedupKey
	}
	return n
}

func interviewFromDomain(iv domain.Interview) Interview {
	return Interview{
		ID:             iv.ID,
		ApplicationID:  iv.ApplicationID,
		JobID:          iv.JobID,
		JobTitle:       iv.JobTitle,
		FreelancerID:   iv.FreelancerID,
		FreelancerName: iv.FreelancerName,
		ClientID:       iv.ClientID,
		ClientName:     iv.ClientName,
		DateTime:       utc(iv.DateTime),
		Message:        iv.Message,
		Status:         string(iv.Status),
		CreatedAt:      utc(iv.CreatedAt),
	}
}

func (m Interview) toDomain() domain.Interview {
	return domain.Interview{
		ID:             m.ID,
		ApplicationID:  m.ApplicationID,
		JobID:          m.JobID,
		JobTitle:       m.JobTitle,
		FreelancerID:   m.FreelancerID,
		FreelancerName: m.FreelancerName,
		ClientID:       m.ClientID,
		ClientName:     m.ClientName,
		DateTime:       m.DateTime,
		Message:        m.Message,
		Status:         domain.InterviewStatus(m.Status),
		CreatedAt:      m.CreatedAt,
	}
}

func messageFromDomain(msg domain.ChatMessage) ChatMessage {
	return ChatMessage{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Read:       msg.Read,
		CreatedAt:  utc(msg.CreatedAt),
	}
}

func (m ChatMessage) toDomain() domain.ChatMessage {
	return domain.ChatMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
		Seq:        int64(m.Seq),
	}
}
