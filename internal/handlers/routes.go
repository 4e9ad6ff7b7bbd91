package handlers

import (
	"net/http"
	"time"

	"clinicnotify/internal/auth"
	"clinicnotify/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouteOptions carries the cross-cutting settings of the router.
type RouteOptions struct {
	Tokens             *auth.TokenValidator
	CronSecret         string
	AllowedOrigins     []string
	RateLimitPerMinute int
	Metrics            http.Handler
}

// RegisterRoutes wires every endpoint onto router.
func (h *Handler) RegisterRoutes(router *gin.Engine, opts RouteOptions) {
	corsConfig := cors.Config{
		AllowOrigins:     opts.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.AllowedOrigins) == 0 {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	// Basic routes
	router.GET("/", HomeHandler)
	router.GET("/health", HealthHandler)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	api := router.Group("/api")
	api.Use(middleware.NewRateLimiter(opts.RateLimitPerMinute).Middleware(h.log))

	// Time-based triggers
	cron := api.Group("/cron", auth.CronAuth(opts.CronSecret))
	{
		cron.GET("/schedule-reminders", h.ScheduleReminders)
		cron.POST("/schedule-reminders", h.ScheduleReminders)
		cron.GET("/send-notifications", h.SendNotifications)
		cron.POST("/send-notifications", h.SendNotifications)
	}
	api.POST("/push/send", auth.CronAuth(opts.CronSecret), h.SendPush)

	// Public push routes
	api.GET("/push/vapid-public-key", h.VAPIDPublicKey)

	// Protected routes (auth required)
	protected := api.Group("")
	protected.Use(auth.AuthMiddleware(opts.Tokens))
	{
		protected.POST("/push/subscription", h.Subscribe)
		protected.DELETE("/push/subscription", h.Unsubscribe)
		protected.GET("/push/subscriptions", h.ListSubscriptions)

		protected.GET("/notifications/pending", h.PendingNotifications)
		protected.POST("/notifications/:id/read", h.MarkNotificationRead)
	}
}
