package signaling

import (
	"sync"

	"github.com/google/uuid"
)

// Connection is one live client link. Outbound frames are queued on a
// buffered channel drained by the transport's write loop.
type Connection struct {
	ID string

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func newConnection(sendBuffer int) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 1
	}
	return &Connection{
		ID:   uuid.New().String(),
		send: make(chan []byte, sendBuffer),
	}
}

// Outbound returns the queue of frames to write to the client. It is closed
// once the connection is unregistered.
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// deliver queues data without blocking. It reports false when the connection
// is closed or its queue is full.
func (c *Connection) deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
