package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vhvplatform/go-notification-engine/internal/middleware"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Events        *EventHandler
	Notifications *NotificationHandler
	Preferences   *PreferencesHandler
	Health        *HealthHandler
	RateLimiter   *middleware.UserRateLimiter
}

// NewRouter builds the HTTP surface
func NewRouter(h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	router.GET("/health", h.Health.Health)
	router.GET("/ready", h.Health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.IdentityMiddleware())
	v1.Use(middleware.RateLimitMiddleware(h.RateLimiter))
	{
		v1.POST("/events", h.Events.Ingest)

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", h.Notifications.GetNotifications)
			notifications.GET("/unread-count", h.Notifications.GetUnreadCount)
			notifications.PATCH("/read-all", h.Notifications.MarkAllRead)
			notifications.PATCH("/:id/read", h.Notifications.MarkRead)
			notifications.DELETE("/:id", h.Notifications.DeleteNotification)
		}

		preferences := v1.Group("/preferences")
		{
			preferences.GET("", h.Preferences.ListPreferences)
			preferences.GET("/:trigger_type", h.Preferences.GetPreference)
			preferences.PUT("/:trigger_type", h.Preferences.UpdatePreference)
		}
	}

	return router
}
