// Package http exposes the command surface over a JSON HTTP API plus a
// websocket notification stream.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/osa030/renify/internal/app/notification"
	"github.com/osa030/renify/internal/app/session"
)

// Handler bundles the dependencies of the HTTP surface.
type Handler struct {
	manager  *session.Manager
	notifier *notification.Manager
}

// NewHandler creates the HTTP handler.
func NewHandler(manager *session.Manager, notifier *notification.Manager) *Handler {
	return &Handler{manager: manager, notifier: notifier}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", h.handleHealth)
	router.GET("/ws", h.handleNotifications)

	v1 := router.Group("/v1")
	{
		rooms := v1.Group("/rooms/:room")
		rooms.POST("/queue", h.handleEnqueue)
		rooms.POST("/skip", h.handleSkip)
		rooms.POST("/pause", h.handlePause)
		rooms.POST("/stop", h.handleStop)
		rooms.GET("/queue", h.handleListQueue)
		rooms.GET("/status", h.handleStatus)
	}

	return router
}
