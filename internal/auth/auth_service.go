package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"gigboard/internal/domain"
)

const tokenTypeAccess = "access"

// MinPasswordLength 为注册时允许的最短密码。
const MinPasswordLength = 8

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AuthService 负责处理密码哈希、JWT 生成与校验。
type AuthService struct {
	secret         []byte
	accessTokenTTL time.Duration
	now            func() time.Time
}

// TokenClaims 表示 JWT 中的业务字段，便于中间件与 WebSocket 会话读取用户信息。
type TokenClaims struct {
	UserID    string      `json:"user_id"`
	Role      domain.Role `json:"role"`
	TokenType string      `json:"token_type"`
	jwt.RegisteredClaims
}

// NewAuthService 使用 HMAC 密钥构造服务实例。
func NewAuthService(secret string, accessTTL time.Duration) (*AuthService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if accessTTL <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	return &AuthService{
		secret:         []byte(secret),
		accessTokenTTL: accessTTL,
		now:            time.Now,
	}, nil
}

// HashPassword 使用 bcrypt 生成密码哈希。
func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash 校验密码是否匹配哈希。
func (s *AuthService) CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticate 校验账号密码；失败时统一返回 ErrInvalidCredentials。
func (s *AuthService) Authenticate(user *domain.User, password string) error {
	if user == nil || user.PasswordHash == "" || !s.CheckPasswordHash(password, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateAccessToken 为用户签发访问令牌。
func (s *AuthService) GenerateAccessToken(user domain.User) (string, error) {
	now := s.now()
	claims := TokenClaims{
		UserID:    user.ID,
		Role:      user.Role,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken 解析并验证访问令牌。
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: token string is empty", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}
	if claims.TokenType != tokenTypeAccess || claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}

	return claims, nil
}

// AccessTokenTTL 暴露访问令牌有效期。
func (s *AuthService) AccessTokenTTL() time.Duration {
	return s.accessTokenTTL
}
