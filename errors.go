package switchboard

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks configuration problems detected at startup.
// Routing never produces it per turn.
var ErrInvalidConfig = errors.New("invalid configuration")

// HandlerError wraps a single agent's CanHandle or Process failure. The
// failure is isolated to that agent for the current turn; it only reaches
// the caller, as a generic failure result, when the selected agent's
// Process is the call that failed.
type HandlerError struct {
	AgentID string
	Op      string // "can_handle" or "process"
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("agent %s: %s: %v", e.AgentID, e.Op, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
