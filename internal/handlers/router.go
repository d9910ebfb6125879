package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/callroom/config"
	"github.com/mossy-p/callroom/internal/middleware"
	"github.com/mossy-p/callroom/internal/presence"
	"github.com/mossy-p/callroom/internal/signaling"
)

// NewRouter wires the health check, the websocket endpoint and, when admin
// credentials are configured, the admin API. counter may be nil.
func NewRouter(cfg *config.Config, hub *signaling.Hub, counter presence.Counter) *gin.Engine {
	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ws", HandleSignaling(hub, SocketOptions{
		MaxMessageBytes: cfg.MaxMessageBytes,
		SendBuffer:      cfg.SendBuffer,
	}))

	if cfg.AdminEnabled() {
		apiGroup := router.Group("/api")
		{
			apiGroup.POST("/auth/login", Login(cfg.AdminUsername, cfg.AdminPassword, cfg.JWTSecret))

			admin := apiGroup.Group("", middleware.JWTAuth(cfg.JWTSecret))
			admin.GET("/rooms", ListRooms(hub))
			admin.GET("/rooms/:roomId", GetRoom(hub, counter))
			admin.GET("/calls", ListCalls(hub))
		}
	}

	return router
}
