package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/callroom/internal/models"
	"github.com/mossy-p/callroom/internal/presence"
	"github.com/mossy-p/callroom/internal/signaling"
)

const presenceTimeout = 2 * time.Second

// ListRooms lists every non-empty room with its member count.
func ListRooms(hub *signaling.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.Registry().Rooms())
	}
}

// GetRoom describes one room. When a presence counter is configured the
// mirrored member count is included.
func GetRoom(hub *signaling.Hub, counter presence.Counter) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		members := hub.Registry().Members(roomID)
		if len(members) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}

		info := models.RoomInfo{ID: roomID, Members: members}
		if counter != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), presenceTimeout)
			defer cancel()

			if n, err := counter.Count(ctx, roomID); err != nil {
				slog.Warn("failed to read mirrored presence", "room", roomID, "error", err)
			} else {
				info.MirroredCount = &n
			}
		}

		c.JSON(http.StatusOK, info)
	}
}

// ListCalls lists every tracked call request.
func ListCalls(hub *signaling.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.Calls().List())
	}
}
