package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gigboard/internal/auth"
	"gigboard/internal/domain"
	"gigboard/internal/store"
)

const currentUserKey = "currentUser"

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware 校验访问令牌，加载当前用户并注入上下文。
func AuthMiddleware(authService *auth.AuthService, users store.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		rawToken := parts[1]
		if strings.TrimSpace(rawToken) == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(rawToken)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		user, err := users.Get(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				abortUnauthorized(c)
				return
			}
			LoggerFromContext(c).Error("load current user failed", slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set("userID", user.ID)
		c.Set(currentUserKey, *user)
		c.Next()
	}
}

// CurrentUser 返回 AuthMiddleware 注入的用户。
func CurrentUser(c *gin.Context) (domain.User, bool) {
	if value, ok := c.Get(currentUserKey); ok {
		if user, ok := value.(domain.User); ok {
			return user, true
		}
	}
	return domain.User{}, false
}
