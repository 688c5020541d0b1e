package handlers

import (
	"context"
	"net/http"
	"slices"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/assignment"
	"volunteer-coordination/internal/history"
	"volunteer-coordination/internal/matching"
	"volunteer-coordination/internal/metrics"
	"volunteer-coordination/internal/middleware"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/notify"
	"volunteer-coordination/internal/storage"
	"volunteer-coordination/internal/websocket"
	"volunteer-coordination/pkg/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Deps is everything the HTTP layer is built from.
type Deps struct {
	Store      storage.Store
	JWTManager *auth.JWTManager
	Service    *assignment.Service
	Ranker     *matching.Ranker
	Dispatcher *notify.Dispatcher
	Recorder   *history.Recorder
	Hub        *websocket.Hub
	Logger     zerolog.Logger

	AllowedOrigins []string
	// RateLimiter is optional.
	RateLimiter *middleware.RateLimiter
	Version     string
}

// NewRouter wires every route of the API.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(d.Logger))

	router.Use(cors.New(corsConfig(d.AllowedOrigins)))

	if d.RateLimiter != nil {
		router.Use(d.RateLimiter.RateLimit())
	}

	wsHandler := NewWebSocketHandler(d.Hub, d.JWTManager, d.Logger)
	router.GET("/ws", wsHandler.HandleWebSocket)

	health := NewHealthHandler(d.Store, d.Version)
	router.GET("/health", health.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	events := NewEventHandler(d.Store, d.Service)
	matches := NewMatchingHandler(d.Ranker)
	notifications := NewNotificationHandler(d.Dispatcher)
	hist := NewHistoryHandler(d.Recorder, d.Service, d.Store)

	adminOnly := middleware.RequireRole(models.RoleAdmin)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(d.JWTManager))
	{
		ev := v1.Group("/events")
		ev.GET("/stats", events.GetEventStats)
		ev.GET("/needing-volunteers", events.GetEventsNeedingVolunteers)
		ev.GET("/:id", events.GetEvent)
		ev.POST("", adminOnly, events.CreateEvent)
		ev.PUT("/:id/status", adminOnly, events.UpdateEventStatus)
		ev.POST("/:id/assign-volunteer", adminOnly, events.AssignVolunteer)
		ev.POST("/:id/remove-volunteer", adminOnly, events.RemoveVolunteer)

		m := v1.Group("/matching", adminOnly)
		m.GET("/auto-match/:eventId", matches.AutoMatch)
		m.GET("/suggestions/:eventId", matches.AutoMatch)

		n := v1.Group("/notifications")
		n.GET("", notifications.GetNotifications)
		n.GET("/unread-count", notifications.GetUnreadCount)
		n.POST("", adminOnly, notifications.SendNotification)
		n.POST("/broadcast", adminOnly, notifications.Broadcast)
		n.PUT("/mark-all-read", notifications.MarkAllAsRead)
		n.PUT("/:id/read", notifications.MarkAsRead)
		n.DELETE("/:id", notifications.DeleteNotification)
		n.POST("/devices", notifications.RegisterDeviceToken)
		n.DELETE("/devices", notifications.UnregisterDeviceToken)

		h := v1.Group("/volunteer-history")
		h.GET("", hist.List)
		h.GET("/stats", hist.Stats)
		h.POST("", adminOnly, hist.Create)
		h.GET("/event/:eventId", adminOnly, hist.EventHistory)
		h.PUT("/:volunteerId/:eventId", adminOnly, hist.UpdateStatus)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Endpoint not found",
			"path":  c.Request.URL.Path,
		})
	})

	return router
}

// corsConfig allows every origin, without credentials, when origins is
// empty or contains "*".
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

type HealthHandler struct {
	store   interface{ Ping(ctx context.Context) error }
	version string
	started time.Time
}

func NewHealthHandler(store interface{ Ping(ctx context.Context) error }, version string) *HealthHandler {
	return &HealthHandler{store: store, version: version, started: time.Now()}
}

// Health reports 503 while the store is unreachable.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		c.JSON(apperrors.ErrStoreUnavailable.Code.HTTPStatus(), gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(h.started).String(),
		"version":   h.version,
	})
}
