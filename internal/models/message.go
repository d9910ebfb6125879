package models

import "encoding/json"

// Event names carried in Envelope.Event.
const (
	// client -> server
	EventJoinRoom          = "join-room"
	EventLeaveRoom         = "leave-room"
	EventSignal            = "signal"
	EventSendMessage       = "send-message"
	EventSendCallRequest   = "send-call-request"
	EventAcceptCallRequest = "accept-call-request"
	EventRejectCallRequest = "reject-call-request"

	// server -> client
	EventConnected           = "connected"
	EventRoomJoined          = "room-joined"
	EventPeerLeft            = "peer-left"
	EventReceiveMessage      = "receive-message"
	EventReceiveCallRequest  = "receive-call-request"
	EventCallRequestAccepted = "call-request-accepted"
	EventCallRequestRejected = "call-request-rejected"
	EventError               = "error"
)

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an Envelope. A nil data yields an envelope
// without a data field.
func NewEnvelope(event string, data any) (Envelope, error) {
	env := Envelope{Event: event}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return env, err
	}
	env.Data = raw
	return env, nil
}

// Connected is sent once to a new connection with its server-issued identity.
type Connected struct {
	ID string `json:"id"`
}

// PeerLeft notifies remaining room members that a member is gone.
type PeerLeft struct {
	ID     string `json:"id"`
	RoomID string `json:"roomId"`
}

// SignalEnvelope carries an opaque negotiation blob (offer, answer, ICE
// candidate). The server never inspects Data.
type SignalEnvelope struct {
	RoomID string          `json:"roomId"`
	From   string          `json:"from,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// ChatKind is the kind of content in a chat message.
type ChatKind string

const (
	ChatText  ChatKind = "text"
	ChatImage ChatKind = "image"
	ChatVideo ChatKind = "video"
)

// ChatMessage is both the send-message payload and the receive-message
// payload. Exactly one of Message or Media is meaningful.
type ChatMessage struct {
	RoomID  string   `json:"roomId"`
	Sender  string   `json:"sender,omitempty"`
	Message string   `json:"message,omitempty"`
	Media   string   `json:"media,omitempty"` // data URL, base64 encoded
	Type    ChatKind `json:"type,omitempty"`
}

// ErrorMessage is sent back to a client whose frame could not be handled.
type ErrorMessage struct {
	Error string `json:"error"`
}
