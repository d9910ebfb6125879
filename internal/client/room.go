package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mossy-p/callroom/internal/models"
	"github.com/mossy-p/callroom/internal/peer"
)

// ErrNoPendingCall is returned when answering with no incoming request.
var ErrNoPendingCall = errors.New("no incoming call request")

type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeChat
	NoticeCall
	NoticeError
)

// Notice is something the user should see.
type Notice struct {
	Kind NoticeKind
	Text string
}

type outgoingCall struct {
	to       string
	callType models.CallType
}

// Room is the client side of one joined room: chat, call requests in both
// directions, and the peer session they lead to.
type Room struct {
	id     string
	client *Client
	ctrl   *peer.Controller
	chat   *ChatLog
	logger *slog.Logger

	notices chan Notice

	mu       sync.Mutex
	incoming *models.ReceiveCallRequest
	outgoing *outgoingCall
}

func NewRoom(c *Client, ctrl *peer.Controller, roomID string, logger *slog.Logger) *Room {
	if logger == nil {
		logger = slog.Default()
	}
	return &Room{
		id:      roomID,
		client:  c,
		ctrl:    ctrl,
		chat:    NewChatLog(c.ID()),
		logger:  logger,
		notices: make(chan Notice, 64),
	}
}

func (r *Room) ID() string { return r.id }

func (r *Room) Chat() *ChatLog { return r.chat }

// Notices is closed when Run returns.
func (r *Room) Notices() <-chan Notice { return r.notices }

// Join asks the server to add us to the room.
func (r *Room) Join() error {
	return r.client.JoinRoom(r.id)
}

// Run handles server events until the connection drops or ctx ends. The
// active call, if any, is torn down on the way out.
func (r *Room) Run(ctx context.Context) {
	defer close(r.notices)
	defer r.ctrl.EndCall()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-r.client.Incoming():
			if !ok {
				r.notify(ctx, NoticeError, "disconnected from signaling server")
				return
			}
			r.handle(ctx, env)
		}
	}
}

func (r *Room) notify(ctx context.Context, kind NoticeKind, format string, args ...any) {
	select {
	case r.notices <- Notice{Kind: kind, Text: fmt.Sprintf(format, args...)}:
	case <-ctx.Done():
	}
}

func (r *Room) handle(ctx context.Context, env models.Envelope) {
	switch env.Event {
	case models.EventRoomJoined:
		roomID := r.id
		if err := json.Unmarshal(env.Data, &roomID); err != nil {
			r.logger.Warn("invalid room-joined payload", "data", string(env.Data), "error", err)
		}
		r.notify(ctx, NoticeInfo, "joined room %s as %s", roomID, r.client.ID())

	case models.EventReceiveMessage:
		var msg models.ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil || (msg.Message == "" && msg.Media == "") {
			r.logger.Warn("invalid chat message received", "data", string(env.Data))
			return
		}
		if !r.chat.Receive(msg) {
			return
		}
		if msg.Media != "" {
			r.notify(ctx, NoticeChat, "%s: [%s, %d bytes]", msg.Sender, msg.Type, len(msg.Media))
		} else {
			r.notify(ctx, NoticeChat, "%s: %s", msg.Sender, msg.Message)
		}

	case models.EventReceiveCallRequest:
		var req models.ReceiveCallRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return
		}
		r.mu.Lock()
		r.incoming = &req
		r.mu.Unlock()
		r.notify(ctx, NoticeCall, "incoming %s call from %s in %s (/accept or /reject)", req.CallType, req.From, req.RoomID)

	case models.EventCallRequestAccepted:
		// An unreadable payload still accepts; onAccepted falls back to our room.
		var acc models.CallRequestAccepted
		if err := json.Unmarshal(env.Data, &acc); err != nil {
			r.logger.Warn("invalid call-request-accepted payload", "data", string(env.Data), "error", err)
		}
		r.onAccepted(ctx, acc)

	case models.EventCallRequestRejected:
		r.mu.Lock()
		out := r.outgoing
		r.outgoing = nil
		r.mu.Unlock()
		if out != nil {
			r.notify(ctx, NoticeCall, "%s rejected the call", out.to)
		}

	case models.EventSignal:
		var sig models.SignalEnvelope
		if err := json.Unmarshal(env.Data, &sig); err != nil {
			return
		}
		if sig.From == r.client.ID() {
			return
		}
		if err := r.ctrl.HandleSignal(sig.From, sig.Data); err != nil && !errors.Is(err, peer.ErrNoSession) {
			r.logger.Warn("signal not applied", "from", sig.From, "error", err)
		}

	case models.EventPeerLeft:
		var left models.PeerLeft
		if err := json.Unmarshal(env.Data, &left); err != nil {
			return
		}
		r.onPeerLeft(ctx, left)

	case models.EventError:
		var e models.ErrorMessage
		if err := json.Unmarshal(env.Data, &e); err != nil {
			r.logger.Warn("invalid error payload", "data", string(env.Data), "error", err)
			return
		}
		r.notify(ctx, NoticeError, "server: %s", e.Error)
	}
}

func (r *Room) onAccepted(ctx context.Context, acc models.CallRequestAccepted) {
	r.mu.Lock()
	out := r.outgoing
	r.outgoing = nil
	r.mu.Unlock()
	if out == nil {
		return
	}

	roomID := acc.RoomID
	if roomID == "" {
		roomID = r.id
	}
	err := r.ctrl.StartCall(ctx, peer.Call{
		RoomID:    roomID,
		Peer:      out.to,
		Type:      out.callType,
		Initiator: true,
	})
	if err != nil {
		r.notify(ctx, NoticeError, "call setup failed: %v", err)
		return
	}
	r.notify(ctx, NoticeCall, "%s accepted, %s call started", out.to, out.callType)
}

func (r *Room) onPeerLeft(ctx context.Context, left models.PeerLeft) {
	r.mu.Lock()
	if r.incoming != nil && r.incoming.From == left.ID {
		r.incoming = nil
	}
	if r.outgoing != nil && r.outgoing.to == left.ID {
		r.outgoing = nil
	}
	r.mu.Unlock()

	if call, ok := r.ctrl.Current(); ok && call.Peer == left.ID {
		r.ctrl.EndCall()
		r.notify(ctx, NoticeCall, "%s left, call ended", left.ID)
		return
	}
	r.notify(ctx, NoticeInfo, "%s left %s", left.ID, left.RoomID)
}

// Say sends a text message.
func (r *Room) Say(text string) error {
	msg := models.ChatMessage{RoomID: r.id, Message: text, Type: models.ChatText}
	if err := r.client.SendChat(msg); err != nil {
		return err
	}
	r.chat.AppendLocal(msg)
	return nil
}

// SendFile shares an image or video file as a data URL.
func (r *Room) SendFile(path string) error {
	msg, err := MediaMessage(r.id, path)
	if err != nil {
		return err
	}
	if err := r.client.SendChat(msg); err != nil {
		return err
	}
	r.chat.AppendLocal(msg)
	return nil
}

// Call asks another identity to start a call.
func (r *Room) Call(to string, callType models.CallType) error {
	if r.ctrl.Active() {
		return peer.ErrSessionActive
	}
	if callType == "" {
		callType = models.CallVideo
	}
	if !callType.Valid() {
		return fmt.Errorf("unknown call type %q", callType)
	}

	r.mu.Lock()
	r.outgoing = &outgoingCall{to: to, callType: callType}
	r.mu.Unlock()

	return r.client.RequestCall(to, r.id, callType)
}

// Accept answers the pending request. The local session starts first so
// the caller's offer finds it ready; if media cannot be acquired nothing is
// sent.
func (r *Room) Accept(ctx context.Context) error {
	r.mu.Lock()
	req := r.incoming
	r.incoming = nil
	r.mu.Unlock()
	if req == nil {
		return ErrNoPendingCall
	}

	err := r.ctrl.StartCall(ctx, peer.Call{
		RoomID: req.RoomID,
		Peer:   req.From,
		Type:   req.CallType,
	})
	if err != nil {
		return err
	}
	return r.client.AcceptCall(req.From, req.RoomID)
}

// Reject declines the pending request.
func (r *Room) Reject() error {
	r.mu.Lock()
	req := r.incoming
	r.incoming = nil
	r.mu.Unlock()
	if req == nil {
		return ErrNoPendingCall
	}
	return r.client.RejectCall(req.From)
}

func (r *Room) ToggleMute() (muted bool, err error) {
	enabled, err := r.ctrl.ToggleAudio()
	return !enabled, err
}

func (r *Room) ToggleVideo() (on bool, err error) {
	return r.ctrl.ToggleVideo()
}

func (r *Room) EndCall() error {
	return r.ctrl.EndCall()
}

// Leave ends any call and leaves the room.
func (r *Room) Leave() error {
	r.ctrl.EndCall()
	return r.client.LeaveRoom(r.id)
}
