package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/callroom/config"
	"github.com/mossy-p/callroom/internal/models"
	"github.com/mossy-p/callroom/internal/signaling"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		AllowedOrigins:  []string{"http://localhost:3000"},
		JWTSecret:       "test-secret",
		AdminUsername:   "admin",
		AdminPassword:   "hunter2",
		MaxMessageBytes: 1 << 20,
		SendBuffer:      16,
	}
}

type stubCounter struct{ n int64 }

func (s stubCounter) Count(context.Context, string) (int64, error) { return s.n, nil }

func newTestServer(t *testing.T) (*httptest.Server, *signaling.Hub) {
	t.Helper()
	hub := signaling.NewHub(nil, nil)
	srv := httptest.NewServer(NewRouter(testConfig(), hub, stubCounter{n: 2}))
	t.Cleanup(srv.Close)
	return srv, hub
}

type wsPeer struct {
	t  *testing.T
	ws *websocket.Conn
	id string
}

func dial(t *testing.T, srv *httptest.Server) *wsPeer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	p := &wsPeer{t: t, ws: ws}
	env := p.expect(models.EventConnected)
	var c models.Connected
	require.NoError(t, json.Unmarshal(env.Data, &c))
	p.id = c.ID
	return p
}

func (p *wsPeer) send(event string, data any) {
	p.t.Helper()
	env, err := models.NewEnvelope(event, data)
	require.NoError(p.t, err)
	require.NoError(p.t, p.ws.WriteJSON(env))
}

func (p *wsPeer) expect(event string) models.Envelope {
	p.t.Helper()
	require.NoError(p.t, p.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env models.Envelope
	require.NoError(p.t, p.ws.ReadJSON(&env))
	require.Equal(p.t, event, env.Event)
	return env
}

// expectSilence asserts nothing arrives within a short window.
func (p *wsPeer) expectSilence() {
	p.t.Helper()
	require.NoError(p.t, p.ws.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var env models.Envelope
	err := p.ws.ReadJSON(&env)
	require.Error(p.t, err, "unexpected event %q", env.Event)
}

func joinBoth(a, b *wsPeer, room string) {
	a.send(models.EventJoinRoom, room)
	a.expect(models.EventRoomJoined)
	b.send(models.EventJoinRoom, room)
	b.expect(models.EventRoomJoined)
}

func TestWebsocketChatEchoesToWholeRoom(t *testing.T) {
	srv, _ := newTestServer(t)
	a, b := dial(t, srv), dial(t, srv)
	joinBoth(a, b, "lobby")

	a.send(models.EventSendMessage, models.ChatMessage{RoomID: "lobby", Message: "hi"})

	for _, p := range []*wsPeer{a, b} {
		env := p.expect(models.EventReceiveMessage)
		var msg models.ChatMessage
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		assert.Equal(t, a.id, msg.Sender)
		assert.Equal(t, "hi", msg.Message)
	}
}

func TestWebsocketCallNegotiation(t *testing.T) {
	srv, hub := newTestServer(t)
	a, b := dial(t, srv), dial(t, srv)
	joinBoth(a, b, "lobby")

	a.send(models.EventSendCallRequest, models.SendCallRequest{To: b.id, From: a.id, RoomID: "lobby"})
	env := b.expect(models.EventReceiveCallRequest)
	var req models.ReceiveCallRequest
	require.NoError(t, json.Unmarshal(env.Data, &req))
	assert.Equal(t, a.id, req.From)
	assert.Equal(t, "lobby", req.RoomID)

	b.send(models.EventAcceptCallRequest, models.AnswerCallRequest{To: a.id, RoomID: "lobby"})
	env = a.expect(models.EventCallRequestAccepted)
	assert.JSONEq(t, `{"roomId":"lobby"}`, string(env.Data))

	call, ok := hub.Calls().Get(a.id, b.id)
	require.True(t, ok)
	assert.Equal(t, models.CallAccepted, call.State)

	b.send(models.EventRejectCallRequest, models.AnswerCallRequest{To: a.id})
	a.expectSilence()
}

func TestWebsocketDisconnectCleansUp(t *testing.T) {
	srv, hub := newTestServer(t)
	a, b := dial(t, srv), dial(t, srv)
	joinBoth(a, b, "x")

	require.NoError(t, a.ws.Close())

	env := b.expect(models.EventPeerLeft)
	var left models.PeerLeft
	require.NoError(t, json.Unmarshal(env.Data, &left))
	assert.Equal(t, a.id, left.ID)
	assert.False(t, hub.Registry().IsLive(a.id))

	b.send(models.EventSendMessage, models.ChatMessage{RoomID: "x", Message: "still here"})
	b.expect(models.EventReceiveMessage)

	b.send(models.EventSendCallRequest, models.SendCallRequest{To: a.id, RoomID: "x"})
	b.expectSilence()
}

func TestWebsocketSignalRelay(t *testing.T) {
	srv, _ := newTestServer(t)
	a, b := dial(t, srv), dial(t, srv)
	joinBoth(a, b, "lobby")

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	a.send(models.EventSignal, models.SignalEnvelope{RoomID: "lobby", Data: offer})

	env := b.expect(models.EventSignal)
	var sig models.SignalEnvelope
	require.NoError(t, json.Unmarshal(env.Data, &sig))
	assert.JSONEq(t, string(offer), string(sig.Data))
	assert.Equal(t, a.id, sig.From)
}

func TestWebsocketReadLimitDisconnects(t *testing.T) {
	hub := signaling.NewHub(nil, nil)
	cfg := testConfig()
	cfg.MaxMessageBytes = 512
	srv := httptest.NewServer(NewRouter(cfg, hub, nil))
	defer srv.Close()

	a := dial(t, srv)
	a.send(models.EventSendMessage, models.ChatMessage{RoomID: "x", Message: strings.Repeat("a", 4096)})

	require.NoError(t, a.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := a.ws.ReadMessage()
	assert.Error(t, err)
}

func TestOriginFilter(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		origin string
		status int
	}{
		{"allowed", "http://localhost:3000", http.StatusOK},
		{"native client", "", http.StatusOK},
		{"foreign", "http://evil.test", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
			require.NoError(t, err)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAdminAPI(t *testing.T) {
	srv, hub := newTestServer(t)
	a, b := dial(t, srv), dial(t, srv)
	joinBoth(a, b, "lobby")

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/auth/login", "application/json",
		strings.NewReader(`{"username":"admin","password":"wrong"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/auth/login", "application/json",
		strings.NewReader(`{"username":"admin","password":"hunter2"}`))
	require.NoError(t, err)
	var login models.LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	resp.Body.Close()
	require.NotEmpty(t, login.Token)

	get := func(path string, v any) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+login.Token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		if v != nil && resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
		}
		return resp.StatusCode
	}

	var rooms []models.RoomSummary
	require.Equal(t, http.StatusOK, get("/api/rooms", &rooms))
	assert.Equal(t, []models.RoomSummary{{ID: "lobby", MemberCount: 2}}, rooms)

	var room models.RoomInfo
	require.Equal(t, http.StatusOK, get("/api/rooms/lobby", &room))
	assert.ElementsMatch(t, []string{a.id, b.id}, room.Members)
	require.NotNil(t, room.MirroredCount)
	assert.Equal(t, int64(2), *room.MirroredCount)

	assert.Equal(t, http.StatusNotFound, get("/api/rooms/nowhere", nil))

	hub.Calls().Request("lobby", a.id, b.id, models.CallAudio)
	var calls []models.CallRequestInfo
	require.Equal(t, http.StatusOK, get("/api/calls", &calls))
	require.Len(t, calls, 1)
	assert.Equal(t, models.CallRinging, calls[0].State)
}

func TestAdminAPIDisabledWithoutPassword(t *testing.T) {
	cfg := testConfig()
	cfg.AdminPassword = ""
	srv := httptest.NewServer(NewRouter(cfg, signaling.NewHub(nil, nil), nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
