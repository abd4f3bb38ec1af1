// Package application 实现投递申请的状态机及其副作用（通知、面试、聊天开场）。
//
// 状态图：
//
//	pending ──► accepted
//	   │
//	   └──────► rejected
//
// accepted 与 rejected 为终态。
package application

import "gigboard/internal/domain"

var validTransitions = map[domain.ApplicationStatus][]domain.ApplicationStatus{
	domain.ApplicationPending: {domain.ApplicationAccepted, domain.ApplicationRejected},
}

// ParseStatus 校验状态字符串，大小写敏感。
func ParseStatus(s string) (domain.ApplicationStatus, bool) {
	switch st := domain.ApplicationStatus(s); st {
	case domain.ApplicationPending, domain.ApplicationAccepted, domain.ApplicationRejected:
		return st, true
	}
	return "", false
}

// IsTransitionAllowed 报告 from → to 是否合法。
func IsTransitionAllowed(from, to domain.ApplicationStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal 报告状态是否没有出边。
func IsTerminal(s domain.ApplicationStatus) bool {
	_, ok := validTransitions[s]
	return !ok
}
