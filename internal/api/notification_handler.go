package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gigboard/internal/api/middleware"
	"gigboard/internal/notify"
)

// NotificationHandler 暴露当前用户的站内通知。
type NotificationHandler struct {
	service *notify.Service
}

func NewNotificationHandler(service *notify.Service) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List 按时间倒序返回通知及未读数。
func (h *NotificationHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	notifications, err := h.service.List(ctx, user.ID)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	unread, err := h.service.UnreadCount(ctx, user.ID)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications, "unreadCount": unread})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	updated, err := h.service.MarkAllRead(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read", "updated": updated})
}
