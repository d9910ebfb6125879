package signaling

import (
	"encoding/json"
	"log/slog"

	"github.com/mossy-p/callroom/internal/models"
)

// Router delivers envelopes to room members or to a single identity. Every
// delivery is fire-and-forget: a dead target or a full queue drops the frame.
type Router struct {
	registry *Registry
	logger   *slog.Logger
}

func NewRouter(registry *Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{registry: registry, logger: logger}
}

// BroadcastRoom delivers env to every member of roomID, the sender included.
// It returns the number of members the frame was queued for.
func (r *Router) BroadcastRoom(roomID string, env models.Envelope) int {
	return r.BroadcastRoomExcept(roomID, "", env)
}

// BroadcastRoomExcept delivers env to every member of roomID except the
// given identity.
func (r *Router) BroadcastRoomExcept(roomID, except string, env models.Envelope) int {
	data, ok := r.marshal(env)
	if !ok {
		return 0
	}

	delivered := 0
	r.registry.withMembers(roomID, except, func(conn *Connection) {
		if conn.deliver(data) {
			delivered++
			return
		}
		r.logger.Warn("dropped frame, send buffer full", "peer", conn.ID, "room", roomID, "event", env.Event)
	})
	return delivered
}

// Direct delivers env to exactly one identity. It reports false when the
// identity is not live or its queue is full.
func (r *Router) Direct(id string, env models.Envelope) bool {
	data, ok := r.marshal(env)
	if !ok {
		return false
	}

	delivered := false
	live := r.registry.withConnection(id, func(conn *Connection) {
		delivered = conn.deliver(data)
	})
	switch {
	case !live:
		r.logger.Debug("routing miss", "peer", id, "event", env.Event)
	case !delivered:
		r.logger.Warn("dropped frame, send buffer full", "peer", id, "event", env.Event)
	}
	return delivered
}

func (r *Router) marshal(env models.Envelope) ([]byte, bool) {
	data, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("failed to marshal envelope", "event", env.Event, "error", err)
		return nil, false
	}
	return data, true
}
