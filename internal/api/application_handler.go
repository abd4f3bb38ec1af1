package api

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gigboard/internal/api/middleware"
	"gigboard/internal/application"
	"gigboard/internal/domain"
	"gigboard/internal/errcode"
	"gigboard/internal/storage"
)

const maxApplicationAttachments = 5

// ApplicationHandler 处理投递、状态变更与面试安排。
type ApplicationHandler struct {
	service     *application.Service
	attachments *storage.Attachments
}

func NewApplicationHandler(service *application.Service, attachments *storage.Attachments) *ApplicationHandler {
	return &ApplicationHandler{service: service, attachments: attachments}
}

// ApplyJob 接收 multipart 表单：coverLetter、必填文件 resume 与可选文件 attachments。
// 申请写入失败时删除已上传的文件。
func (h *ApplicationHandler) ApplyJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	logger := middleware.LoggerFromContext(c).With(
		slog.String("job_id", c.Param("id")),
		slog.String("user_id", user.ID),
	)

	if err := h.service.CanApply(c.Request.Context(), user, c.Param("id")); err != nil {
		respondError(c, logger, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			respondError(c, logger, errcode.Validationf("resume", "resume is required"))
			return
		}
		BadRequest(c, "invalid multipart form")
		return
	}
	resumes := form.File["resume"]
	if len(resumes) == 0 {
		respondError(c, logger, errcode.Validationf("resume", "resume is required"))
		return
	}
	extra := form.File["attachments"]
	if len(extra) > maxApplicationAttachments {
		respondError(c, logger, errcode.Validationf("attachments", "at most %d attachments are allowed", maxApplicationAttachments))
		return
	}

	ctx := c.Request.Context()
	var saved []domain.AttachmentRef
	upload := func(kind string, file *multipart.FileHeader) (domain.AttachmentRef, error) {
		ref, err := h.attachments.Save(ctx, user.ID, kind, file)
		if err != nil {
			return ref, err
		}
		saved = append(saved, ref)
		return ref, nil
	}

	resume, err := upload("resume", resumes[0])
	if err != nil {
		respondError(c, logger, err)
		return
	}
	attachments := make([]domain.AttachmentRef, 0, len(extra))
	for _, file := range extra {
		ref, err := upload("attachment", file)
		if err != nil {
			h.attachments.Remove(ctx, saved...)
			respondError(c, logger, err)
			return
		}
		attachments = append(attachments, ref)
	}

	app, err := h.service.Apply(ctx, user, c.Param("id"), application.ApplyInput{
		CoverLetter: c.PostForm("coverLetter"),
		Resume:      &resume,
		Attachments: attachments,
	})
	if err != nil {
		h.attachments.Remove(ctx, saved...)
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Application submitted successfully", "application": app})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus 接受或拒绝申请。
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	app, err := h.service.SetStatus(c.Request.Context(), user, c.Param("id"), req.Status)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, app)
}

type scheduleInterviewRequest struct {
	DateTime    *time.Time `json:"dateTime"`
	Message     string     `json:"message"`
	ScheduleNow bool       `json:"scheduleNow"`
}

// ScheduleInterview 安排面试；scheduleNow 为 true 且携带 dateTime 时立即创建面试记录。
func (h *ApplicationHandler) ScheduleInterview(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req scheduleInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	result, err := h.service.ScheduleInterview(c.Request.Context(), user, c.Param("applicationId"), application.InterviewInput{
		DateTime:    req.DateTime,
		Message:     req.Message,
		ScheduleNow: req.ScheduleNow,
	})
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetApplication 仅申请人与职位所有者可见。
func (h *ApplicationHandler) GetApplication(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	app, err := h.service.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *ApplicationHandler) ListForJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	apps, err := h.service.ListForJob(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

func (h *ApplicationHandler) MyApplications(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	apps, err := h.service.ListForFreelancer(c.Request.Context(), user)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

func (h *ApplicationHandler) Interviews(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	interviews, err := h.service.ListInterviews(c.Request.Context(), user)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"interviews": interviews})
}
