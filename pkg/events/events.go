// Package events defines the structured events the routing engine emits and
// an in-process bus for delivering them. The engine publishes; hosts and the
// demo TUI subscribe. Durable sinks are the host's concern.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of routing event.
type EventType string

// Event types emitted by the engine, one per observable pipeline outcome.
const (
	// Turn lifecycle
	EventTurnStarted   EventType = "turn.started"
	EventTurnCompleted EventType = "turn.completed"
	EventTurnFailed    EventType = "turn.failed"

	// Routing outcomes
	EventAgentSelected EventType = "agent.selected"
	EventNoSelection   EventType = "routing.no_selection"
	EventTopicChanged  EventType = "topic.changed"

	// Agent failures (isolated, per-turn)
	EventHandlerError EventType = "handler.error"

	// Session lifecycle
	EventSessionEnded EventType = "session.ended"
)

// Event is a single structured routing event.
type Event struct {
	// Core identification
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
	Type EventType `json:"type"`

	// Correlation
	SessionID string `json:"session_id,omitempty"`
	TurnID    string `json:"turn_id,omitempty"`

	// Routing context
	AgentID    string  `json:"agent_id,omitempty"`
	Stage      string  `json:"stage,omitempty"`
	Basis      string  `json:"basis,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Intent     string  `json:"intent,omitempty"`

	// Explanation for detector triggers and no-selection outcomes
	Reason string `json:"reason,omitempty"`

	// Timing
	DurationMs int64 `json:"duration_ms,omitempty"`

	// Error information
	Err string `json:"error,omitempty"`
}

// New creates an event of the given type with ID and timestamp filled in.
func New(t EventType) Event {
	return Event{
		ID:   uuid.NewString(),
		Time: time.Now(),
		Type: t,
	}
}
