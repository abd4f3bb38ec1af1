package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"gigboard/internal/api/middleware"
	"gigboard/internal/application"
	"gigboard/internal/auth"
	"gigboard/internal/chat"
	"gigboard/internal/clock"
	"gigboard/internal/config"
	"gigboard/internal/engagement"
	"gigboard/internal/lifecycle"
	"gigboard/internal/notify"
	"gigboard/internal/realtime"
	"gigboard/internal/storage"
	"gigboard/internal/store"
)

// Deps 汇总路由所需的组件；RateCounter 为 nil 时不限制登录频率。
type Deps struct {
	Store         *store.Store
	Auth          *auth.AuthService
	Jobs          *lifecycle.Manager
	Applications  *application.Service
	Notifications *notify.Service
	Chat          *chat.Service
	Engagement    *engagement.Service
	Hub           *realtime.Hub
	Attachments   *storage.Attachments
	RateCounter   redisRateCounter
	Clock         clock.Clock
	Config        *config.Config
	Logger        *slog.Logger
}

// RegisterRoutes 注册全部业务路由。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	authHandler := NewAuthHandler(deps.Store.Users, deps.Auth, deps.RateCounter, deps.Config.Auth.LoginRateLimitPerHour, deps.Clock)
	jobHandler := NewJobHandler(deps.Jobs)
	applicationHandler := NewApplicationHandler(deps.Applications, deps.Attachments)
	notificationHandler := NewNotificationHandler(deps.Notifications)
	chatHandler := NewChatHandler(deps.Chat)
	engagementHandler := NewEngagementHandler(deps.Engagement)
	wsHandler := NewWsHandler(
		deps.Hub,
		deps.Chat,
		deps.Auth,
		deps.Store.Users,
		deps.Config.Realtime.RequireToken,
		deps.Logger,
		deps.Config.Realtime.AllowedOrigins,
	)
	authMiddleware := middleware.AuthMiddleware(deps.Auth, deps.Store.Users)

	router.GET("/ws", wsHandler.HandleConnection)

	router.POST("/register", authHandler.Register)
	router.POST("/login", authHandler.Login)

	router.GET("/jobs", jobHandler.ListJobs)
	router.GET("/jobs/:id", jobHandler.GetJob)
	router.POST("/increment-apply-clicks/:id", jobHandler.IncrementApplyClicks)
	router.GET("/client-rating/:id", engagementHandler.ClientRating)

	authed := router.Group("")
	authed.Use(authMiddleware)
	{
		authed.GET("/me", authHandler.Me)
		authed.POST("/alert-preferences", authHandler.UpdateAlertPreferences)
		authed.POST("/profile", authHandler.UpdateProfile)

		authed.POST("/createjob", jobHandler.CreateJob)
		authed.POST("/update-job/:id", jobHandler.UpdateJob)
		authed.DELETE("/delete-job/:id", jobHandler.DeleteJob)

		authed.POST("/apply-job/:id", applicationHandler.ApplyJob)
		authed.POST("/update-application-status/:id", applicationHandler.UpdateStatus)
		authed.POST("/schedule-interview/:applicationId", applicationHandler.ScheduleInterview)
		authed.GET("/applications/:id", applicationHandler.GetApplication)
		authed.GET("/job-applications/:id", applicationHandler.ListForJob)
		authed.GET("/my-applications", applicationHandler.MyApplications)
		authed.GET("/interviews", applicationHandler.Interviews)

		authed.GET("/get-notifications", notificationHandler.List)
		authed.POST("/mark-notification-read/:id", notificationHandler.MarkRead)
		authed.POST("/mark-all-notifications-read", notificationHandler.MarkAllRead)

		authed.POST("/save-job/:id", engagementHandler.SaveJob)
		authed.DELETE("/unsave-job/:id", engagementHandler.UnsaveJob)
		authed.GET("/saved-jobs", engagementHandler.SavedJobs)
		authed.POST("/rate-client/:id", engagementHandler.RateClient)
	}

	chatGroup := router.Group("/api/chat")
	chatGroup.Use(authMiddleware)
	{
		chatGroup.GET("/history/:userId", chatHandler.History)
		chatGroup.GET("/conversations", chatHandler.Conversations)
		chatGroup.POST("/read/:userId", chatHandler.MarkRead)
	}
}
