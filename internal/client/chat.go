package client

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/mossy-p/callroom/internal/models"
)

// ChatLog keeps the local view of a room's chat. Own messages are appended
// optimistically; the server echoes them back, and echoes carrying our own
// identity are dropped instead of shown twice.
type ChatLog struct {
	self string

	mu       sync.Mutex
	messages []models.ChatMessage
}

func NewChatLog(self string) *ChatLog {
	return &ChatLog{self: self}
}

// AppendLocal records a message we just sent.
func (l *ChatLog) AppendLocal(msg models.ChatMessage) {
	msg.Sender = l.self

	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// Receive records a message from the server and reports whether it is new.
func (l *ChatLog) Receive(msg models.ChatMessage) bool {
	if msg.Sender == l.self {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
	return true
}

func (l *ChatLog) Messages() []models.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.ChatMessage(nil), l.messages...)
}

// MediaMessage reads an image or video file into a data URL chat message.
func MediaMessage(roomID, path string) (models.ChatMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.ChatMessage{}, err
	}

	mime := http.DetectContentType(raw)
	var kind models.ChatKind
	switch {
	case strings.HasPrefix(mime, "image/"):
		kind = models.ChatImage
	case strings.HasPrefix(mime, "video/"):
		kind = models.ChatVideo
	default:
		return models.ChatMessage{}, fmt.Errorf("%s is %s, not an image or video", path, mime)
	}

	return models.ChatMessage{
		RoomID: roomID,
		Media:  "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw),
		Type:   kind,
	}, nil
}
