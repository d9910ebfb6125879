package models

import "time"

// CallState is the negotiation state of a call request.
type CallState string

const (
	CallRinging  CallState = "RINGING"
	CallAccepted CallState = "ACCEPTED"
	CallRejected CallState = "REJECTED"
)

// Terminal reports whether no further transitions are allowed.
func (s CallState) Terminal() bool {
	return s == CallAccepted || s == CallRejected
}

// CallType selects which local media a call captures.
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// Valid reports whether t is a known call type.
func (t CallType) Valid() bool {
	return t == CallAudio || t == CallVideo
}

// SendCallRequest is the send-call-request payload. From is ignored by the
// server, which uses the sending connection's identity.
type SendCallRequest struct {
	To       string   `json:"to"`
	From     string   `json:"from,omitempty"`
	RoomID   string   `json:"roomId"`
	CallType CallType `json:"callType,omitempty"`
}

// ReceiveCallRequest is delivered to the callee.
type ReceiveCallRequest struct {
	From     string   `json:"from"`
	RoomID   string   `json:"roomId"`
	CallType CallType `json:"callType,omitempty"`
}

// AnswerCallRequest is the accept-call-request and reject-call-request
// payload. To names the caller. RoomID is only sent on accept.
type AnswerCallRequest struct {
	To     string `json:"to"`
	RoomID string `json:"roomId,omitempty"`
}

// CallRequestAccepted is delivered to the caller when the callee accepts.
type CallRequestAccepted struct {
	RoomID string `json:"roomId"`
}

// CallRequestInfo describes a tracked call request for the admin API.
type CallRequestInfo struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Caller    string    `json:"caller"`
	Callee    string    `json:"callee"`
	CallType  CallType  `json:"callType"`
	State     CallState `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
