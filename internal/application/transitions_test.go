package application

import (
	"testing"

	"gigboard/internal/domain"
)

func TestIsTransitionAllowed(t *testing.T) {
	tests := []struct {
		from, to domain.ApplicationStatus
		want     bool
	}{
		{domain.ApplicationPending, domain.ApplicationAccepted, true},
		{domain.ApplicationPending, domain.ApplicationRejected, true},
		{domain.ApplicationPending, domain.ApplicationPending, false},
		{domain.ApplicationAccepted, domain.ApplicationRejected, false},
		{domain.ApplicationRejected, domain.ApplicationAccepted, false},
		{domain.ApplicationAccepted, domain.ApplicationPending, false},
		{domain.ApplicationRejected, domain.ApplicationPending, false},
	}

	for _, tt := range tests {
		if got := IsTransitionAllowed(tt.from, tt.to); got != tt.want {
			t.Errorf("IsTransitionAllowed(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []domain.ApplicationStatus{domain.ApplicationAccepted, domain.ApplicationRejected} {
		if !IsTerminal(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
	if IsTerminal(domain.ApplicationPending) {
		t.Error("pending should not be terminal")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"pending", "accepted", "rejected"} {
		if _, ok := ParseStatus(s); !ok {
			t.Errorf("ParseStatus(%q) rejected a valid status", s)
		}
	}
	for _, s := range []string{"Accepted", " rejected", "hired", ""} {
		if _, ok := ParseStatus(s); ok {
			t.Errorf("ParseStatus(%q) accepted an invalid status", s)
		}
	}
}
