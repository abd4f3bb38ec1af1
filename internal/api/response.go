package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"gigboard/internal/auth"
	"gigboard/internal/errcode"
	"gigboard/internal/storage"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// statusForCode 将业务错误码映射为 HTTP 状态码。
func statusForCode(code string) int {
	switch code {
	case errcode.Validation:
		return http.StatusBadRequest
	case errcode.Authorization:
		return http.StatusForbidden
	case errcode.NotFound:
		return http.StatusNotFound
	case errcode.Duplicate, errcode.InvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError 输出统一的错误响应体；未知错误只记录日志，不向客户端暴露原因。
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var coded *errcode.Error
	switch {
	case errors.As(err, &coded):
		body := gin.H{"error": coded.Message, "code": coded.Code}
		if coded.Field != "" {
			body["field"] = coded.Field
		}
		c.JSON(statusForCode(coded.Code), body)
	case errors.Is(err, storage.ErrEmptyFile), errors.Is(err, storage.ErrTooLarge), errors.Is(err, storage.ErrInfected):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": errcode.Validation})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		Unauthorized(c)
	default:
		logger.Error("request failed", slog.Any("error", err))
		Internal(c, "internal error")
	}
}
