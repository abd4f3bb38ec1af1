package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigboard/internal/domain"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	svc, err := NewAuthService("secret", time.Hour)
	require.NoError(t, err)

	user := domain.User{ID: "u-1", Role: domain.RoleClient}
	token, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, domain.RoleClient, claims.Role)
}

func TestValidateTokenRejects(t *testing.T) {
	svc, err := NewAuthService("secret", time.Hour)
	require.NoError(t, err)
	other, err := NewAuthService("other-secret", time.Hour)
	require.NoError(t, err)

	foreign, err := other.GenerateAccessToken(domain.User{ID: "u-1", Role: domain.RoleClient})
	require.NoError(t, err)

	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	token, err := svc.GenerateAccessToken(domain.User{ID: "u-2", Role: domain.RoleFreelancer})
	require.NoError(t, err)
	svc.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHash(t *testing.T) {
	svc, err := NewAuthService("secret", time.Hour)
	require.NoError(t, err)

	hash, err := svc.HashPassword("correct horse")
	require.NoError(t, err)

	user := &domain.User{PasswordHash: hash}
	assert.NoError(t, svc.Authenticate(user, "correct horse"))
	assert.ErrorIs(t, svc.Authenticate(user, "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, svc.Authenticate(nil, "correct horse"), ErrInvalidCredentials)
}
