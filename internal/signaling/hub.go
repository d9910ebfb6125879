package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mossy-p/callroom/internal/models"
	"github.com/mossy-p/callroom/internal/presence"
)

var (
	// ErrMalformed marks an event whose payload is missing required fields.
	ErrMalformed = errors.New("malformed event")

	// ErrUnknownEvent marks an event name the hub does not handle.
	ErrUnknownEvent = errors.New("unknown event")
)

// Hub owns the shared room and call state and handles each inbound event to
// completion. Events from different connections may run concurrently.
type Hub struct {
	registry *Registry
	router   *Router
	calls    *CallTable
	presence presence.Recorder
	logger   *slog.Logger
}

func NewHub(rec presence.Recorder, logger *slog.Logger) *Hub {
	if rec == nil {
		rec = presence.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	registry := NewRegistry()
	return &Hub{
		registry: registry,
		router:   NewRouter(registry, logger),
		calls:    NewCallTable(registry.IsLive),
		presence: rec,
		logger:   logger,
	}
}

func (h *Hub) Registry() *Registry { return h.registry }
func (h *Hub) Router() *Router     { return h.router }
func (h *Hub) Calls() *CallTable   { return h.calls }

// Connect registers a new connection and tells it its identity.
func (h *Hub) Connect(sendBuffer int) *Connection {
	conn := h.registry.Register(sendBuffer)
	h.emit(conn.ID, models.EventConnected, models.Connected{ID: conn.ID})
	h.logger.Info("peer connected", "peer", conn.ID)
	return conn
}

// Disconnect unregisters the connection, removes it from every room, tells
// the remaining members, and forgets its call requests.
func (h *Hub) Disconnect(conn *Connection) {
	rooms := h.registry.Unregister(conn.ID)
	for _, roomID := range rooms {
		h.presence.Left(roomID, conn.ID)
		h.notifyPeerLeft(roomID, conn.ID)
	}
	dropped := h.calls.Forget(conn.ID)
	h.logger.Info("peer disconnected", "peer", conn.ID, "rooms", len(rooms), "calls", dropped)
}

// Dispatch decodes one frame from conn and handles it. The returned error is
// for diagnostics only; nothing is sent back for routing misses or invalid
// state.
func (h *Hub) Dispatch(conn *Connection, frame []byte) error {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		h.emit(conn.ID, models.EventError, models.ErrorMessage{Error: "invalid frame"})
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var err error
	switch env.Event {
	case models.EventJoinRoom:
		err = h.handleJoin(conn, env.Data)
	case models.EventLeaveRoom:
		err = h.handleLeave(conn, env.Data)
	case models.EventSignal:
		err = h.handleSignal(conn, env.Data)
	case models.EventSendMessage:
		err = h.handleChat(conn, env.Data)
	case models.EventSendCallRequest:
		err = h.handleCallRequest(conn, env.Data)
	case models.EventAcceptCallRequest:
		err = h.handleAnswer(conn, env.Data, true)
	case models.EventRejectCallRequest:
		err = h.handleAnswer(conn, env.Data, false)
	default:
		h.emit(conn.ID, models.EventError, models.ErrorMessage{Error: "unknown event " + env.Event})
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		h.logger.Debug("event discarded", "peer", conn.ID, "event", env.Event, "error", err)
	}
	return err
}

func (h *Hub) handleJoin(conn *Connection, data json.RawMessage) error {
	roomID, err := decodeRoomID(data)
	if err != nil {
		return err
	}
	if h.registry.Join(conn.ID, roomID) {
		h.presence.Joined(roomID, conn.ID)
		h.logger.Info("peer joined room", "peer", conn.ID, "room", roomID)
	}
	h.emit(conn.ID, models.EventRoomJoined, roomID)
	return nil
}

func (h *Hub) handleLeave(conn *Connection, data json.RawMessage) error {
	roomID, err := decodeRoomID(data)
	if err != nil {
		return err
	}
	if h.registry.Leave(conn.ID, roomID) {
		h.presence.Left(roomID, conn.ID)
		h.notifyPeerLeft(roomID, conn.ID)
		h.logger.Info("peer left room", "peer", conn.ID, "room", roomID)
	}
	return nil
}

func (h *Hub) handleSignal(conn *Connection, data json.RawMessage) error {
	var sig models.SignalEnvelope
	if err := decode(data, &sig); err != nil {
		return err
	}
	sig.RoomID = strings.TrimSpace(sig.RoomID)
	if sig.RoomID == "" || len(sig.Data) == 0 || string(sig.Data) == "null" {
		return fmt.Errorf("%w: signal needs roomId and data", ErrMalformed)
	}
	sig.From = conn.ID

	h.broadcast(sig.RoomID, models.EventSignal, sig)
	return nil
}

func (h *Hub) handleChat(conn *Connection, data json.RawMessage) error {
	var msg models.ChatMessage
	if err := decode(data, &msg); err != nil {
		return err
	}
	if err := normalizeChat(&msg); err != nil {
		return err
	}
	msg.Sender = conn.ID

	h.broadcast(msg.RoomID, models.EventReceiveMessage, msg)
	return nil
}

func (h *Hub) handleCallRequest(conn *Connection, data json.RawMessage) error {
	var req models.SendCallRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	req.RoomID = strings.TrimSpace(req.RoomID)
	if req.To == "" || req.RoomID == "" {
		return fmt.Errorf("%w: call request needs to and roomId", ErrMalformed)
	}
	if req.To == conn.ID {
		return fmt.Errorf("%w: cannot call yourself", ErrMalformed)
	}
	if req.CallType == "" {
		req.CallType = models.CallVideo
	}
	if !req.CallType.Valid() {
		return fmt.Errorf("%w: unknown call type %q", ErrMalformed, req.CallType)
	}

	call, superseded, err := h.calls.Request(req.RoomID, conn.ID, req.To, req.CallType)
	if err != nil {
		if errors.Is(err, ErrCalleeGone) {
			h.logger.Debug("call request to dead peer dropped", "peer", conn.ID, "to", req.To)
			return nil
		}
		return err
	}
	if superseded {
		h.logger.Info("ringing call request superseded", "caller", conn.ID, "callee", req.To)
	}
	h.emit(req.To, models.EventReceiveCallRequest, models.ReceiveCallRequest{
		From:     call.Caller,
		RoomID:   call.RoomID,
		CallType: call.Type,
	})
	return nil
}

// handleAnswer resolves the request from the named caller to conn.
func (h *Hub) handleAnswer(conn *Connection, data json.RawMessage, accept bool) error {
	var ans models.AnswerCallRequest
	if err := decode(data, &ans); err != nil {
		return err
	}
	if ans.To == "" {
		return fmt.Errorf("%w: answer needs to", ErrMalformed)
	}

	if !accept {
		if _, err := h.calls.Reject(ans.To, conn.ID); err != nil {
			return err
		}
		h.emit(ans.To, models.EventCallRequestRejected, nil)
		return nil
	}

	call, err := h.calls.Accept(ans.To, conn.ID)
	if err != nil {
		return err
	}
	h.emit(ans.To, models.EventCallRequestAccepted, models.CallRequestAccepted{RoomID: call.RoomID})
	return nil
}

func (h *Hub) notifyPeerLeft(roomID, peerID string) {
	h.broadcast(roomID, models.EventPeerLeft, models.PeerLeft{ID: peerID, RoomID: roomID})
}

func (h *Hub) broadcast(roomID, event string, data any) {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		h.logger.Error("failed to build envelope", "event", event, "error", err)
		return
	}
	h.router.BroadcastRoom(roomID, env)
}

func (h *Hub) emit(peerID, event string, data any) {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		h.logger.Error("failed to build envelope", "event", event, "error", err)
		return
	}
	h.router.Direct(peerID, env)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// decodeRoomID accepts either a bare string or {"roomId": "..."}. Room IDs
// are trimmed of surrounding spaces on every event that names one.
func decodeRoomID(data json.RawMessage) (string, error) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil {
		var obj struct {
			RoomID string `json:"roomId"`
		}
		if err := decode(data, &obj); err != nil {
			return "", err
		}
		roomID = obj.RoomID
	}
	if roomID = strings.TrimSpace(roomID); roomID == "" {
		return "", fmt.Errorf("%w: empty roomId", ErrMalformed)
	}
	return roomID, nil
}

// normalizeChat checks that msg carries text or media and settles its kind.
// Media without a kind takes it from the data URL's MIME type.
func normalizeChat(msg *models.ChatMessage) error {
	msg.RoomID = strings.TrimSpace(msg.RoomID)
	if msg.RoomID == "" {
		return fmt.Errorf("%w: chat needs roomId", ErrMalformed)
	}

	if msg.Media == "" {
		if msg.Message == "" {
			return fmt.Errorf("%w: chat has neither message nor media", ErrMalformed)
		}
		msg.Type = models.ChatText
		return nil
	}

	switch msg.Type {
	case models.ChatImage, models.ChatVideo:
	case "", models.ChatText:
		switch {
		case strings.HasPrefix(msg.Media, "data:image/"):
			msg.Type = models.ChatImage
		case strings.HasPrefix(msg.Media, "data:video/"):
			msg.Type = models.ChatVideo
		default:
			return fmt.Errorf("%w: media of unknown kind", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown chat type %q", ErrMalformed, msg.Type)
	}
	return nil
}
