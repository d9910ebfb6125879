package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mossy-p/callroom/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("signaling client closed")

// Client is one websocket connection to the signaling server.
type Client struct {
	conn     *websocket.Conn
	id       string
	incoming chan models.Envelope
	outgoing chan models.Envelope
	done     chan struct{}
	once     sync.Once
}

// Dial connects to serverURL and waits for the server to issue an identity.
func Dial(ctx context.Context, serverURL string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	deadline := time.Now().Add(pongWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	var hello models.Envelope
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read identity: %w", err)
	}
	var connected models.Connected
	if hello.Event != models.EventConnected || json.Unmarshal(hello.Data, &connected) != nil || connected.ID == "" {
		conn.Close()
		return nil, fmt.Errorf("expected %q, got %q", models.EventConnected, hello.Event)
	}

	c := &Client{
		conn:     conn,
		id:       connected.ID,
		incoming: make(chan models.Envelope, 64),
		outgoing: make(chan models.Envelope, 64),
		done:     make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

// ID is the identity the server issued to this connection.
func (c *Client) ID() string {
	return c.id
}

// Incoming yields server events. It is closed when the connection drops.
func (c *Client) Incoming() <-chan models.Envelope {
	return c.incoming
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var env models.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}

		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues an event for the server.
func (c *Client) Send(event string, data any) error {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- env:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close ends the connection. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) JoinRoom(roomID string) error {
	return c.Send(models.EventJoinRoom, roomID)
}

func (c *Client) LeaveRoom(roomID string) error {
	return c.Send(models.EventLeaveRoom, roomID)
}

// Signal sends an opaque negotiation payload to everyone in roomID.
func (c *Client) Signal(roomID string, data json.RawMessage) error {
	return c.Send(models.EventSignal, models.SignalEnvelope{RoomID: roomID, Data: data})
}

func (c *Client) SendChat(msg models.ChatMessage) error {
	return c.Send(models.EventSendMessage, msg)
}

func (c *Client) RequestCall(to, roomID string, callType models.CallType) error {
	return c.Send(models.EventSendCallRequest, models.SendCallRequest{
		To:       to,
		From:     c.id,
		RoomID:   roomID,
		CallType: callType,
	})
}

func (c *Client) AcceptCall(to, roomID string) error {
	return c.Send(models.EventAcceptCallRequest, models.AnswerCallRequest{To: to, RoomID: roomID})
}

func (c *Client) RejectCall(to string) error {
	return c.Send(models.EventRejectCallRequest, models.AnswerCallRequest{To: to})
}
