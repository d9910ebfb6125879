package peer

import (
	"errors"
	"fmt"
)

var (
	ErrSessionActive    = errors.New("a call is already active")
	ErrNoSession        = errors.New("no active call")
	ErrMediaUnavailable = errors.New("local media unavailable")
	ErrNoTrack          = errors.New("no such local track")
	ErrUnexpectedSignal = errors.New("unexpected signal")
	ErrInvalidCall      = errors.New("invalid call")
	ErrMalformedSignal  = errors.New("malformed signal payload")
)

// SessionError records which step of a call failed.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *SessionError {
	return &SessionError{Op: op, Err: err}
}
