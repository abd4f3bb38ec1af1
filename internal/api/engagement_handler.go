package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gigboard/internal/api/middleware"
	"gigboard/internal/engagement"
)

// EngagementHandler 处理职位收藏与客户评分。
type EngagementHandler struct {
	service *engagement.Service
}

func NewEngagementHandler(service *engagement.Service) *EngagementHandler {
	return &EngagementHandler{service: service}
}

func (h *EngagementHandler) SaveJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	saved, err := h.service.SaveJob(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (h *EngagementHandler) UnsaveJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.UnsaveJob(c.Request.Context(), user, c.Param("id")); err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EngagementHandler) SavedJobs(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	saved, err := h.service.SavedJobs(c.Request.Context(), user)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"savedJobs": saved})
}

type rateClientRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

// RateClient 由自由职业者对 :id 指向的客户评分。
func (h *EngagementHandler) RateClient(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req rateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	rating, err := h.service.RateClient(c.Request.Context(), user, c.Param("id"), req.Score, req.Comment)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusCreated, rating)
}

func (h *EngagementHandler) ClientRating(c *gin.Context) {
	summary, err := h.service.ClientRating(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
