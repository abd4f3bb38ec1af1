package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gigboard/internal/api/middleware"
	"gigboard/internal/domain"
	"gigboard/internal/errcode"
	"gigboard/internal/lifecycle"
	"gigboard/internal/store"
)

// JobHandler 暴露职位的增删改查与浏览计数。
type JobHandler struct {
	manager *lifecycle.Manager
}

func NewJobHandler(manager *lifecycle.Manager) *JobHandler {
	return &JobHandler{manager: manager}
}

type createJobRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Budget        string   `json:"budget"`
	Location      string   `json:"location"`
	Skills        []string `json:"skills"`
	TimerDuration int64    `json:"timerDuration"`
	AutoRenew     bool     `json:"autoRenew"`
}

// CreateJob 发布职位。
func (h *JobHandler) CreateJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	job, err := h.manager.CreateJob(c.Request.Context(), user, lifecycle.JobInput{
		Title:         req.Title,
		Description:   req.Description,
		Budget:        req.Budget,
		Location:      req.Location,
		Skills:        req.Skills,
		TimerDuration: req.TimerDuration,
		AutoRenew:     req.AutoRenew,
	})
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

type updateJobRequest struct {
	Title         *string  `json:"title"`
	Description   *string  `json:"description"`
	Budget        *string  `json:"budget"`
	Location      *string  `json:"location"`
	Skills        []string `json:"skills"`
	TimerDuration *int64   `json:"timerDuration"`
	AutoRenew     *bool    `json:"autoRenew"`
	Status        *string  `json:"status"`
}

// UpdateJob 修改职位，仅所有者可调用。
func (h *JobHandler) UpdateJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req updateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	logger := middleware.LoggerFromContext(c)

	patch := lifecycle.JobPatch{
		Title:         req.Title,
		Description:   req.Description,
		Budget:        req.Budget,
		Location:      req.Location,
		Skills:        req.Skills,
		TimerDuration: req.TimerDuration,
		AutoRenew:     req.AutoRenew,
	}
	if req.Status != nil {
		status, ok := domain.ParseJobStatus(*req.Status)
		if !ok {
			respondError(c, logger, errcode.Validationf("status", "invalid job status %q", *req.Status))
			return
		}
		patch.Status = &status
	}

	job, err := h.manager.EditJob(c.Request.Context(), user, c.Param("id"), patch)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// DeleteJob 删除职位并级联删除其申请。
func (h *JobHandler) DeleteJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	job, err := h.manager.DeleteJob(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job deleted", "jobId": job.ID})
}

// GetJob 返回单个职位。
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.manager.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs 支持按 clientId 与 status 过滤。
func (h *JobHandler) ListJobs(c *gin.Context) {
	filter := store.JobFilter{
		ClientID: c.Query("clientId"),
		Status:   domain.JobStatus(c.Query("status")),
	}

	jobs, err := h.manager.ListJobs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// IncrementApplyClicks 为公开的浏览计数，无需登录。
func (h *JobHandler) IncrementApplyClicks(c *gin.Context) {
	clicks, err := h.manager.IncrementApplyClicks(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applyClicks": clicks})
}
