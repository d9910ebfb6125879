// Package presence mirrors room membership outside the process so operators
// can inspect it. The mirror is advisory: routing never reads from it.
package presence

import "context"

// Recorder receives membership changes. Implementations must not block the
// caller.
type Recorder interface {
	Joined(roomID, peerID string)
	Left(roomID, peerID string)
}

// Counter reports the mirrored member count of a room.
type Counter interface {
	Count(ctx context.Context, roomID string) (int64, error)
}

// Nop discards every update.
type Nop struct{}

func (Nop) Joined(string, string) {}
func (Nop) Left(string, string)   {}

func roomKey(roomID string) string {
	return "room:" + roomID + ":peers"
}
