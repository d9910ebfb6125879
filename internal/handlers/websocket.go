package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/callroom/internal/signaling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// SocketOptions bounds each websocket connection.
type SocketOptions struct {
	MaxMessageBytes int64
	SendBuffer      int
}

// HandleSignaling upgrades the request and attaches the connection to hub.
func HandleSignaling(hub *signaling.Hub, opts SocketOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "error", err)
			return
		}

		conn := hub.Connect(opts.SendBuffer)

		go writePump(ws, conn)
		go readPump(ws, hub, conn, opts.MaxMessageBytes)
	}
}

// readPump feeds frames to the hub one at a time, so a connection's events
// are handled in the order they were sent.
func readPump(ws *websocket.Conn, hub *signaling.Hub, conn *signaling.Connection, maxMessageBytes int64) {
	defer func() {
		hub.Disconnect(conn)
		ws.Close()
	}()

	if maxMessageBytes > 0 {
		ws.SetReadLimit(maxMessageBytes)
	}
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				slog.Warn("frame exceeds read limit", "peer", conn.ID, "limit", maxMessageBytes)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error", "peer", conn.ID, "error", err)
			}
			return
		}

		hub.Dispatch(conn, frame)
	}
}

func writePump(ws *websocket.Conn, conn *signaling.Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Outbound():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Warn("failed to write message", "peer", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
