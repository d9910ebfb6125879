package signaling

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/callroom/internal/models"
)

type recordedPresence struct {
	mu     sync.Mutex
	events []string
}

func (p *recordedPresence) Joined(roomID, peerID string) { p.add("+" + roomID + "/" + peerID) }
func (p *recordedPresence) Left(roomID, peerID string)   { p.add("-" + roomID + "/" + peerID) }

func (p *recordedPresence) add(e string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// drain returns every frame queued for conn without blocking.
func drain(t *testing.T, conn *Connection) []models.Envelope {
	t.Helper()
	var out []models.Envelope
	for {
		select {
		case data, ok := <-conn.Outbound():
			if !ok {
				return out
			}
			var env models.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func send(t *testing.T, h *Hub, conn *Connection, event string, data any) error {
	t.Helper()
	env, err := models.NewEnvelope(event, data)
	require.NoError(t, err)
	frame, err := json.Marshal(env)
	require.NoError(t, err)
	return h.Dispatch(conn, frame)
}

func events(envs []models.Envelope) []string {
	names := make([]string, len(envs))
	for i, e := range envs {
		names[i] = e.Event
	}
	return names
}

func connectPair(t *testing.T, h *Hub, room string) (*Connection, *Connection) {
	t.Helper()
	a := h.Connect(8)
	b := h.Connect(8)
	require.NoError(t, send(t, h, a, models.EventJoinRoom, room))
	require.NoError(t, send(t, h, b, models.EventJoinRoom, room))
	drain(t, a)
	drain(t, b)
	return a, b
}

func TestHubConnectSendsIdentity(t *testing.T) {
	h := NewHub(nil, nil)
	a := h.Connect(8)

	got := drain(t, a)
	require.Len(t, got, 1)
	assert.Equal(t, models.EventConnected, got[0].Event)

	var c models.Connected
	require.NoError(t, json.Unmarshal(got[0].Data, &c))
	assert.Equal(t, a.ID, c.ID)
}

func TestHubJoinConfirmsToJoinerOnly(t *testing.T) {
	rec := &recordedPresence{}
	h := NewHub(rec, nil)
	a := h.Connect(8)
	b := h.Connect(8)
	require.NoError(t, send(t, h, a, models.EventJoinRoom, "lobby"))
	drain(t, a)
	drain(t, b)

	require.NoError(t, send(t, h, b, models.EventJoinRoom, "lobby"))
	require.NoError(t, send(t, h, b, models.EventJoinRoom, map[string]string{"roomId": "lobby"}))

	assert.Empty(t, drain(t, a))
	got := drain(t, b)
	require.Equal(t, []string{models.EventRoomJoined, models.EventRoomJoined}, events(got))
	assert.JSONEq(t, `"lobby"`, string(got[0].Data))

	assert.ElementsMatch(t, []string{a.ID, b.ID}, h.Registry().Members("lobby"))
	assert.Equal(t, []string{"+lobby/" + a.ID, "+lobby/" + b.ID}, rec.events)
}

func TestHubJoinRejectsEmptyRoom(t *testing.T) {
	h := NewHub(nil, nil)
	a := h.Connect(8)
	drain(t, a)

	assert.ErrorIs(t, send(t, h, a, models.EventJoinRoom, "  "), ErrMalformed)
	assert.ErrorIs(t, send(t, h, a, models.EventJoinRoom, 42), ErrMalformed)
	assert.Empty(t, drain(t, a))
}

func TestHubChatBroadcastIncludesSender(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := connectPair(t, h, "lobby")
	outsider := h.Connect(8)
	drain(t, outsider)

	require.NoError(t, send(t, h, a, models.EventSendMessage, models.ChatMessage{
		RoomID:  "lobby",
		Sender:  "spoofed",
		Message: "hi",
	}))

	for _, conn := range []*Connection{a, b} {
		got := drain(t, conn)
		require.Len(t, got, 1, "exactly once")
		assert.Equal(t, models.EventReceiveMessage, got[0].Event)

		var msg models.ChatMessage
		require.NoError(t, json.Unmarshal(got[0].Data, &msg))
		assert.Equal(t, a.ID, msg.Sender)
		assert.Equal(t, "hi", msg.Message)
		assert.Equal(t, models.ChatText, msg.Type)
	}
	assert.Empty(t, drain(t, outsider))
}

func TestHubChatMedia(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := connectPair(t, h, "lobby")

	require.NoError(t, send(t, h, a, models.EventSendMessage, models.ChatMessage{
		RoomID: "lobby",
		Media:  "data:image/png;base64,iVBORw0KGgo=",
	}))

	got := drain(t, b)
	require.Len(t, got, 1)
	var msg models.ChatMessage
	require.NoError(t, json.Unmarshal(got[0].Data, &msg))
	assert.Equal(t, models.ChatImage, msg.Type)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", msg.Media)
}

func TestHubMalformedChatIsDiscarded(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := connectPair(t, h, "lobby")

	tests := []struct {
		name string
		msg  models.ChatMessage
	}{
		{"no content", models.ChatMessage{RoomID: "lobby"}},
		{"no room", models.ChatMessage{Message: "hi"}},
		{"unknown media", models.ChatMessage{RoomID: "lobby", Media: "data:application/pdf;base64,AA=="}},
		{"bad type", models.ChatMessage{RoomID: "lobby", Media: "data:image/png;base64,AA==", Type: "audio"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := send(t, h, a, models.EventSendMessage, tt.msg)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Empty(t, drain(t, a))
			assert.Empty(t, drain(t, b))
		})
	}
}

func TestHubSignalRelayedVerbatim(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := connectPair(t, h, "lobby")

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n"}`)
	require.NoError(t, send(t, h, a, models.EventSignal, models.SignalEnvelope{RoomID: "lobby", Data: payload}))

	got := drain(t, b)
	require.Len(t, got, 1)
	assert.Equal(t, models.EventSignal, got[0].Event)

	var sig models.SignalEnvelope
	require.NoError(t, json.Unmarshal(got[0].Data, &sig))
	assert.Equal(t, []byte(payload), []byte(sig.Data))
	assert.Equal(t, a.ID, sig.From)
	assert.Equal(t, "lobby", sig.RoomID)

	assert.Len(t, drain(t, a), 1, "sender receives its own signal")
}

func TestHubSignalWithoutPayloadIsDiscarded(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := connectPair(t, h, "lobby")

	err := send(t, h, a, models.EventSignal, map[string]any{"roomId": "lobby"})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Empty(t, drain(t, b))
}

func TestHubCallAccepted(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := connectPair(t, h, "lobby")

	require.NoError(t, send(t, h, a, models.EventSendCallRequest, models.SendCallRequest{
		To: b.ID, From: a.ID, RoomID: "lobby",
	}))
	assert.Empty(t, drain(t, a))

	got := drain(t, b)
	require.Len(t, got, 1)
	assert.Equal(t, models.EventReceiveCallRequest, got[0].Event)
	var incoming models.ReceiveCallRequest
	require.NoError(t, json.Unmarshal(got[0].Data, &incoming))
	assert.Equal(t, models.ReceiveCallRequest{From: a.ID, RoomID: "lobby", CallType: models.CallVideo}, incoming)

	require.NoError(t, send(t, h, b, models.EventAcceptCallRequest, models.AnswerCallRequest{To: a.ID, RoomID: "lobby"}))

	got = drain(t, a)
	require.Len(t, got, 1)
	assert.Equal(t, models.EventCallRequestAccepted, got[0].Event)
	assert.JSONEq(t, `{"roomId":"lobby"}`, string(got[0].Data))

	call, ok := h.Calls().Get(a.ID, b.ID)
	require.True(t, ok)
	assert.Equal(t, models.CallAccepted, call.State)
}

func TestHubCallRejectedThenAcceptIsInvalid(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := connectPair(t, h, "lobby")

	require.NoError(t, send(t, h, a, models.EventSendCallRequest, models.SendCallRequest{To: b.ID, RoomID: "lobby"}))
	drain(t, b)

	require.NoError(t, send(t, h, b, models.EventRejectCallRequest, models.AnswerCallRequest{To: a.ID}))
	got := drain(t, a)
	require.Equal(t, []string{models.EventCallRequestRejected}, events(got))
	assert.Empty(t, got[0].Data)

	err := send(t, h, b, models.EventAcceptCallRequest, models.AnswerCallRequest{To: a.ID, RoomID: "lobby"})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, drain(t, a), "no event on invalid state")
	assert.Empty(t, drain(t, b))

	call, _ := h.Calls().Get(a.ID, b.ID)
	assert.Equal(t, models.CallRejected, call.State)
}

func TestHubAnswerWithoutRequest(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := connectPair(t, h, "lobby")

	err := send(t, h, b, models.EventAcceptCallRequest, models.AnswerCallRequest{To: a.ID})
	assert.ErrorIs(t, err, ErrNoCallRequest)
	assert.Empty(t, drain(t, a))
}

func TestHubCallRequestValidation(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := connectPair(t, h, "lobby")

	assert.ErrorIs(t, send(t, h, a, models.EventSendCallRequest, models.SendCallRequest{RoomID: "lobby"}), ErrMalformed)
	assert.ErrorIs(t, send(t, h, a, models.EventSendCallRequest, models.SendCallRequest{To: a.ID, RoomID: "lobby"}), ErrMalformed)
	assert.ErrorIs(t, send(t, h, a, models.EventSendCallRequest, models.SendCallRequest{To: b.ID, RoomID: "lobby", CallType: "hologram"}), ErrMalformed)
	assert.Empty(t, drain(t, b))
}

func TestHubCallRequestToDeadPeerIsSilent(t *testing.T) {
	h := NewHub(nil, nil)
	a := h.Connect(8)
	drain(t, a)

	err := send(t, h, a, models.EventSendCallRequest, models.SendCallRequest{To: "gone", RoomID: "lobby"})
	assert.NoError(t, err)
	assert.Empty(t, drain(t, a))
	assert.Empty(t, h.Calls().List())
}

func TestHubDisconnectCascades(t *testing.T) {
	rec := &recordedPresence{}
	h := NewHub(rec, nil)
	a, b := connectPair(t, h, "x")

	require.NoError(t, send(t, h, b, models.EventSendCallRequest, models.SendCallRequest{To: a.ID, RoomID: "x"}))
	drain(t, a)

	h.Disconnect(a)

	got := drain(t, b)
	require.Equal(t, []string{models.EventPeerLeft}, events(got))
	var left models.PeerLeft
	require.NoError(t, json.Unmarshal(got[0].Data, &left))
	assert.Equal(t, models.PeerLeft{ID: a.ID, RoomID: "x"}, left)

	assert.Equal(t, []string{b.ID}, h.Registry().Members("x"))
	assert.Empty(t, h.Calls().List())
	assert.Contains(t, rec.events, "-x/"+a.ID)

	// B's chat no longer reaches A, and a call request to A silently fails.
	require.NoError(t, send(t, h, b, models.EventSendMessage, models.ChatMessage{RoomID: "x", Message: "anyone?"}))
	assert.Equal(t, []string{models.EventReceiveMessage}, events(drain(t, b)))
	assert.NoError(t, send(t, h, b, models.EventSendCallRequest, models.SendCallRequest{To: a.ID, RoomID: "x"}))
	assert.False(t, h.Router().Direct(a.ID, models.Envelope{Event: models.EventSignal}))
}

func TestHubLeaveRoomNotifiesRemaining(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := connectPair(t, h, "x")

	require.NoError(t, send(t, h, a, models.EventLeaveRoom, "x"))
	assert.Empty(t, drain(t, a))
	assert.Equal(t, []string{models.EventPeerLeft}, events(drain(t, b)))

	require.NoError(t, send(t, h, a, models.EventLeaveRoom, "x"))
	assert.Empty(t, drain(t, b), "second leave is a no-op")
}

func TestHubUnknownAndInvalidFrames(t *testing.T) {
	h := NewHub(nil, nil)
	a := h.Connect(8)
	drain(t, a)

	assert.ErrorIs(t, h.Dispatch(a, []byte("not json")), ErrMalformed)
	assert.ErrorIs(t, send(t, h, a, "dance", nil), ErrUnknownEvent)

	got := drain(t, a)
	assert.Equal(t, []string{models.EventError, models.EventError}, events(got))
}

func TestHubPerSenderOrdering(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := connectPair(t, h, "lobby")

	for i := 0; i < 5; i++ {
		require.NoError(t, send(t, h, a, models.EventSendMessage, models.ChatMessage{
			RoomID: "lobby", Message: string(rune('a' + i)),
		}))
	}

	got := drain(t, b)
	require.Len(t, got, 5)
	for i, env := range got {
		var msg models.ChatMessage
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		assert.Equal(t, string(rune('a'+i)), msg.Message)
	}
}

func TestHubRoomIDsAreTrimmedOnEveryEvent(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := connectPair(t, h, " lobby ")
	assert.ElementsMatch(t, []string{a.ID, b.ID}, h.Registry().Members("lobby"))

	require.NoError(t, send(t, h, a, models.EventSendMessage, models.ChatMessage{RoomID: " lobby ", Message: "hi"}))
	got := drain(t, b)
	require.Equal(t, []string{models.EventReceiveMessage}, events(got))
	var msg models.ChatMessage
	require.NoError(t, json.Unmarshal(got[0].Data, &msg))
	assert.Equal(t, "lobby", msg.RoomID)
	drain(t, a)

	require.NoError(t, send(t, h, a, models.EventSignal, models.SignalEnvelope{RoomID: "lobby\t", Data: json.RawMessage(`{"type":"offer"}`)}))
	assert.Equal(t, []string{models.EventSignal}, events(drain(t, b)))
	drain(t, a)

	require.NoError(t, send(t, h, a, models.EventSendCallRequest, models.SendCallRequest{To: b.ID, RoomID: " lobby"}))
	call, ok := h.Calls().Get(a.ID, b.ID)
	require.True(t, ok)
	assert.Equal(t, "lobby", call.RoomID)
}
