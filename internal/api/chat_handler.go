package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gigboard/internal/api/middleware"
	"gigboard/internal/chat"
)

// ChatHandler 暴露聊天记录的 HTTP 查询接口，实时收发走 WebSocket。
type ChatHandler struct {
	service *chat.Service
}

func NewChatHandler(service *chat.Service) *ChatHandler {
	return &ChatHandler{service: service}
}

// History 返回当前用户与 :userId 之间的消息，按时间升序。
func (h *ChatHandler) History(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	messages, err := h.service.History(c.Request.Context(), user.ID, c.Param("userId"))
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *ChatHandler) Conversations(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	conversations, err := h.service.Conversations(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// MarkRead 将 :userId 发来的消息全部置为已读。
func (h *ChatHandler) MarkRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	updated, err := h.service.MarkRead(c.Request.Context(), user.ID, c.Param("userId"))
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
