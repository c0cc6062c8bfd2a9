package orchestrator

import (
	"errors"
	"fmt"
)

// ErrSessionRunning is returned by RunSession while another session runs.
var ErrSessionRunning = errors.New("a session is already running")

// IterationError is an error or panic that escaped one website attempt.
// The attempt is recorded as failed and the session continues.
type IterationError struct {
	Index     int
	WebsiteID string
	Err       error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("attempt %d (%s): %v", e.Index+1, e.WebsiteID, e.Err)
}

func (e *IterationError) Unwrap() error {
	return e.Err
}

// SessionFatalError is a fault that aborted the whole session loop.
type SessionFatalError struct {
	SessionID string
	Err       error
}

func (e *SessionFatalError) Error() string {
	return fmt.Sprintf("session %s failed: %v", e.SessionID, e.Err)
}

func (e *SessionFatalError) Unwrap() error {
	return e.Err
}

// panicError turns a recovered value into an error.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
