package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Conceptual-Machines/jamctl/internal/api/middleware"
	"github.com/Conceptual-Machines/jamctl/internal/broadcast"
	"github.com/Conceptual-Machines/jamctl/internal/config"
	"github.com/Conceptual-Machines/jamctl/internal/orchestrator"
)

// SetupRouter builds the gin engine exposing the broadcast stream and
// the command surface over the given orchestrator.
func SetupRouter(cfg *config.Config, hub *broadcast.Hub, orch *orchestrator.Orchestrator, version string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoverWithSentry())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.RequestTracking())
	router.Use(middleware.CORS())

	h := newHandler(hub, orch, version)

	router.GET("/health", h.health)
	router.GET("/ws", h.streamEvents)

	v1 := router.Group("/api/v1/jam")
	{
		v1.POST("/start", h.start)
		v1.POST("/stop", h.stop)
		v1.POST("/preset", h.setPreset)
		v1.POST("/directive", h.handleDirective)
		v1.POST("/camera_directive", h.handleCameraDirective)
		v1.POST("/audio_feedback", h.handleAudioFeedback)
		v1.GET("/state", h.getState)
	}

	return router
}
