package session

import (
	"errors"
	"fmt"
)

// ErrSessionActive is returned when starting a call whose session ID is
// already running.
var ErrSessionActive = errors.New("session already active")

// ErrManagerClosed is returned when starting a call on a shut-down
// manager.
var ErrManagerClosed = errors.New("session manager closed")

// FatalSessionError is the only error class that tears a session down
// immediately. It is emitted as a CallFailed event before teardown and
// never crosses into another session.
type FatalSessionError struct {
	CallID string
	Reason string
	Err    error
}

func (e *FatalSessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal session error on call %s: %s: %v", e.CallID, e.Reason, e.Err)
	}
	return fmt.Sprintf("fatal session error on call %s: %s", e.CallID, e.Reason)
}

func (e *FatalSessionError) Unwrap() error { return e.Err }
