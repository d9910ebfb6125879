package signaling

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mossy-p/callroom/internal/models"
)

var (
	// ErrInvalidState is returned when a call request is answered outside RINGING.
	ErrInvalidState = errors.New("call request is not ringing")

	// ErrNoCallRequest is returned when no request exists for a caller/callee pair.
	ErrNoCallRequest = errors.New("no call request")

	// ErrCalleeGone is returned when the callee is not a live connection.
	ErrCalleeGone = errors.New("callee is not connected")
)

// CallRequest is a pairwise invitation tracked through RINGING to ACCEPTED
// or REJECTED.
type CallRequest struct {
	ID        string
	RoomID    string
	Caller    string
	Callee    string
	Type      models.CallType
	State     models.CallState
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c CallRequest) Info() models.CallRequestInfo {
	return models.CallRequestInfo{
		ID:        c.ID,
		RoomID:    c.RoomID,
		Caller:    c.Caller,
		Callee:    c.Callee,
		CallType:  c.Type,
		State:     c.State,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type callKey struct {
	caller string
	callee string
}

// CallTable holds at most one call request per caller/callee pair. All
// transitions happen under one lock so concurrent answers cannot both win.
type CallTable struct {
	mu       sync.Mutex
	requests map[callKey]*CallRequest
	isLive   func(id string) bool
	now      func() time.Time
}

// NewCallTable returns an empty table. isLive is consulted under the table
// lock when a request is made; nil treats every identity as live.
func NewCallTable(isLive func(id string) bool) *CallTable {
	if isLive == nil {
		isLive = func(string) bool { return true }
	}
	return &CallTable{
		requests: make(map[callKey]*CallRequest),
		isLive:   isLive,
		now:      time.Now,
	}
}

// Request records a new RINGING request from caller to callee. An existing
// request for the same pair, whatever its state, is replaced; the second
// return value reports whether a RINGING request was superseded.
//
// A callee that is not live gets no record. Disconnect unregisters before it
// calls Forget, so a callee that dies after the check is still cleaned up.
func (t *CallTable) Request(roomID, caller, callee string, callType models.CallType) (CallRequest, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.isLive(callee) {
		return CallRequest{}, false, ErrCalleeGone
	}

	key := callKey{caller: caller, callee: callee}
	prev, existed := t.requests[key]
	superseded := existed && prev.State == models.CallRinging

	now := t.now()
	req := &CallRequest{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Caller:    caller,
		Callee:    callee,
		Type:      callType,
		State:     models.CallRinging,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.requests[key] = req
	return *req, superseded, nil
}

// Accept moves the caller->callee request to ACCEPTED.
func (t *CallTable) Accept(caller, callee string) (CallRequest, error) {
	return t.transition(caller, callee, models.CallAccepted)
}

// Reject moves the caller->callee request to REJECTED.
func (t *CallTable) Reject(caller, callee string) (CallRequest, error) {
	return t.transition(caller, callee, models.CallRejected)
}

func (t *CallTable) transition(caller, callee string, to models.CallState) (CallRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.requests[callKey{caller: caller, callee: callee}]
	if !ok {
		return CallRequest{}, ErrNoCallRequest
	}
	if req.State.Terminal() {
		return *req, fmt.Errorf("%w: already %s", ErrInvalidState, req.State)
	}
	req.State = to
	req.UpdatedAt = t.now()
	return *req, nil
}

// Get returns the request for the pair, if any.
func (t *CallTable) Get(caller, callee string) (CallRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.requests[callKey{caller: caller, callee: callee}]
	if !ok {
		return CallRequest{}, false
	}
	return *req, true
}

// Forget drops every request naming id as caller or callee and returns how
// many were removed.
func (t *CallTable) Forget(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key := range t.requests {
		if key.caller == id || key.callee == id {
			delete(t.requests, key)
			removed++
		}
	}
	return removed
}

// List returns every tracked request, oldest first.
func (t *CallTable) List() []models.CallRequestInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.CallRequestInfo, 0, len(t.requests))
	for _, req := range t.requests {
		out = append(out, req.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
