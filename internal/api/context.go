package api

import (
	"github.com/gin-gonic/gin"

	"gigboard/internal/api/middleware"
	"gigboard/internal/domain"
)

// currentUser 读取鉴权中间件注入的用户，缺失时直接返回 401。
func currentUser(c *gin.Context) (domain.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		AbortUnauthorized(c)
	}
	return user, ok
}
