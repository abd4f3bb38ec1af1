// Package memory 提供进程内存版仓储实现。
//
// 全部集合由同一把 RWMutex 保护：任何仓储方法都在一个临界区内完成，
// 因此级联删除、查重插入等多步操作不会被并发读观察到中间状态。
package memory

import (
	"sort"
	"strings"
	"sync"

	"gigboard/internal/domain"
	"gigboard/internal/store"
)

type state struct {
	mu sync.RWMutex

	users         map[string]domain.User
	jobs          map[string]domain.Job
	applications  map[string]domain.Application
	notifications []domain.Notification
	interviews    map[string]domain.Interview // 以 ApplicationID 为键
	messages      []domain.ChatMessage
	savedJobs     []domain.SavedJob
	ratings       []domain.Rating

	seq int64
}

// New 返回一组共享同一份内存状态的仓储。
func New() *store.Store {
	s := &state{
		users:        make(map[string]domain.User),
		jobs:         make(map[string]domain.Job),
		applications: make(map[string]domain.Application),
		interviews:   make(map[string]domain.Interview),
	}
	return &store.Store{
		Users:         &userRepo{s},
		Jobs:          &jobRepo{s},
		Applications:  &applicationRepo{s},
		Notifications: &notificationRepo{s},
		Interviews:    &interviewRepo{s},
		Messages:      &messageRepo{s},
		SavedJobs:     &savedJobRepo{s},
		Ratings:       &ratingRepo{s},
	}
}

func (s *state) nextSeq() int64 {
	s.seq++
	return s.seq
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneUser(u domain.User) domain.User {
	u.Profile.Skills = cloneStrings(u.Profile.Skills)
	u.AlertPreferences.Skills = cloneStrings(u.AlertPreferences.Skills)
	if u.GithubRepositories != nil {
		u.GithubRepositories = append([]byte(nil), u.GithubRepositories...)
	}
	return u
}

func cloneJob(j domain.Job) domain.Job {
	j.Skills = cloneStrings(j.Skills)
	return j
}

func cloneApplication(a domain.Application) domain.Application {
	if a.Attachments != nil {
		a.Attachments = append([]domain.AttachmentRef(nil), a.Attachments...)
	}
	if a.InterviewDateTime != nil {
		t := *a.InterviewDateTime
		a.InterviewDateTime = &t
	}
	return a
}

func sortJobsNewestFirst(jobs []domain.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}

func sameFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
