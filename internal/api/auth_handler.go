package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gigboard/internal/api/middleware"
	"gigboard/internal/auth"
	"gigboard/internal/clock"
	"gigboard/internal/domain"
	"gigboard/internal/errcode"
	"gigboard/internal/store"
)

// AuthHandler 处理注册、登录与账号资料。
type AuthHandler struct {
	users       store.UserRepository
	authService *auth.AuthService
	limiter     *loginLimiter
	clock       clock.Clock
}

// NewAuthHandler 构造认证处理器；counter 为 nil 时不限制登录频率。
func NewAuthHandler(users store.UserRepository, authService *auth.AuthService, counter redisRateCounter, loginRateLimitPerHour int, clk clock.Clock) *AuthHandler {
	return &AuthHandler{
		users:       users,
		authService: authService,
		limiter:     newLoginLimiter(counter, loginRateLimitPerHour),
		clock:       clk,
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Role     string `json:"role" binding:"required"`
}

// Register 创建新用户账号。
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	logger := middleware.LoggerFromContext(c).With(slog.String("username", req.Username))

	role, ok := domain.ParseRole(req.Role)
	if !ok {
		respondError(c, logger, errcode.Validationf("role", "role must be client or freelancer"))
		return
	}

	hashed, err := h.authService.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	user := domain.User{
		ID:               uuid.NewString(),
		Email:            strings.ToLower(strings.TrimSpace(req.Email)),
		Username:         strings.TrimSpace(req.Username),
		PasswordHash:     hashed,
		Role:             role,
		Profile:          domain.Profile{Skills: []string{}},
		AlertPreferences: domain.AlertPreferences{Skills: []string{}},
		CreatedAt:        h.clock.Now(),
	}

	if err := h.users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			logger.Info("register conflict: user already exists")
			respondError(c, logger, errcode.Duplicatef("email or username already taken"))
			return
		}
		logger.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("user registered", slog.String("user_id", user.ID), slog.String("role", string(role)))
	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	User        domain.User `json:"user"`
}

// Login 校验口令并返回访问令牌。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	logger := middleware.LoggerFromContext(c).With(slog.String("email", email))

	if !h.limiter.Allow(ctx, c.ClientIP(), email, h.clock.Now()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	user, err := h.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("login failed: user not found")
			Unauthorized(c)
			return
		}
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.authService.Authenticate(user, req.Password); err != nil {
		logger.Info("login failed: password mismatch", slog.String("user_id", user.ID))
		Unauthorized(c)
		return
	}

	token, err := h.authService.GenerateAccessToken(*user)
	if err != nil {
		logger.Error("generate access token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.authService.AccessTokenTTL() / time.Second),
		User:        *user,
	})
}

// Me 返回当前用户。
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

type alertPreferencesRequest struct {
	Enabled *bool    `json:"enabled"`
	Skills  []string `json:"skills"`
}

// UpdateAlertPreferences 更新职位提醒订阅；未携带的字段保持不变。
func (h *AuthHandler) UpdateAlertPreferences(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req alertPreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	if req.Enabled != nil {
		user.AlertPreferences.Enabled = *req.Enabled
	}
	if req.Skills != nil {
		user.AlertPreferences.Skills = normalizeSkills(req.Skills)
	}
	h.saveUser(c, user)
}

type profileRequest struct {
	Skills  []string `json:"skills"`
	Contact *string  `json:"contact"`
}

// UpdateProfile 更新公开资料。
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	if req.Skills != nil {
		user.Profile.Skills = normalizeSkills(req.Skills)
	}
	if req.Contact != nil {
		user.Profile.Contact = strings.TrimSpace(*req.Contact)
	}
	h.saveUser(c, user)
}

func (h *AuthHandler) saveUser(c *gin.Context, user domain.User) {
	logger := middleware.LoggerFromContext(c)
	if err := h.users.Update(c.Request.Context(), user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, logger, errcode.NotFoundf("user not found"))
			return
		}
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// normalizeSkills 去除空白与重复项（不区分大小写），保留首次出现的写法。
func normalizeSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, skill := range in {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			continue
		}
		key := strings.ToLower(skill)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, skill)
	}
	return out
}
