// Package types defines the shared contracts between the switchboard engine,
// the domain agents it routes to, and the callers that front it.
package types

import (
	"context"
	"time"
)

// DefaultSessionID is used when a caller supplies no session identifier.
// All such calls share one session; production callers should always set one.
const DefaultSessionID = "default"

// ═══════════════════════════════════════════════════════════════════════════════
// ROUTING BASIS
// ═══════════════════════════════════════════════════════════════════════════════

// Basis identifies which pipeline stage committed a routing decision.
type Basis string

const (
	BasisExplicit   Basis = "explicit"   // Caller named the agent directly
	BasisIntent     Basis = "intent"     // High-confidence classified intent
	BasisContinuity Basis = "continuity" // Same agent as the previous turn
	BasisEvaluation Basis = "evaluation" // Full capability evaluation
	BasisNone       Basis = "none"       // No agent selected
)

// String returns the basis as a string.
func (b Basis) String() string {
	return string(b)
}

// IsValid checks if the basis is one of the known values.
func (b Basis) IsValid() bool {
	switch b {
	case BasisExplicit, BasisIntent, BasisContinuity, BasisEvaluation, BasisNone:
		return true
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════════
// AGENT CONTRACT
// ═══════════════════════════════════════════════════════════════════════════════

// Agent is the capability contract implemented by every domain handler.
// Implementations must be safe for concurrent use: the engine may evaluate
// the same agent for different sessions at the same time.
type Agent interface {
	// ID returns the stable identifier the agent registers under.
	ID() string

	// Name returns the human-readable display name.
	Name() string

	// Description summarizes the agent's domain for suggested actions.
	Description() string

	// CanHandle scores the agent's suitability for the input in [0,1].
	// Errors are isolated: a failing agent is excluded for the turn only.
	CanHandle(ctx context.Context, input string, tc Context) (float64, error)

	// Process produces the agent's reply for the turn. It may block on
	// long-latency work; cancellation arrives through ctx.
	Process(ctx context.Context, input string, tc Context) (*HandlerResult, error)
}

// HandlerResult is produced by an agent's Process call and folded into
// session memory by the engine after a successful turn.
type HandlerResult struct {
	// Text is the reply to surface to the user.
	Text string `json:"text"`

	// ContinueWithSameAgent asks the engine to prefer this agent next turn.
	ContinueWithSameAgent bool `json:"continue_with_same_agent,omitempty"`

	// IsClosing signals the conversation is over.
	IsClosing bool `json:"is_closing,omitempty"`

	// ExtractedEntities are merged into the session's entity store.
	// Empty values never overwrite existing ones.
	ExtractedEntities map[string]string `json:"extracted_entities,omitempty"`

	// Metadata carries handler-specific extras for the caller.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// TURN CONTEXT
// ═══════════════════════════════════════════════════════════════════════════════

// Context is the optional per-turn input bag supplied by the caller.
// Every field may be zero; the engine fills in defaults where needed.
type Context struct {
	// SessionID groups turns into a conversation. Empty means
	// DefaultSessionID.
	SessionID string `json:"session_id,omitempty"`

	// AgentName forces a specific agent by display name (stage one).
	AgentName string `json:"agent_name,omitempty"`

	// Intent is the upstream classifier's label for this turn.
	Intent string `json:"intent,omitempty"`

	// IntentConfidence is the classifier's confidence in [0,1].
	IntentConfidence float64 `json:"intent_confidence,omitempty"`

	// Entities are upstream-extracted values for this turn. They overlay
	// the session's entity store during scoring but are only persisted
	// when a turn commits.
	Entities map[string]string `json:"entities,omitempty"`

	// ContinueConversation forces continuity routing for this turn.
	ContinueConversation bool `json:"continue_conversation,omitempty"`

	// Metadata carries caller extras the engine passes through to agents.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// ROUTING OUTPUT
// ═══════════════════════════════════════════════════════════════════════════════

// SuggestedAction describes one available agent, offered to the caller
// when no agent was selected.
type SuggestedAction struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RoutingResult is the outcome of one processed turn.
//
// "No suitable agent" is not a failure: Success stays true, SelectedAgent
// is empty, Confidence is 0 and SuggestedActions lists the alternatives.
type RoutingResult struct {
	// Success is false only when the turn itself failed (selected agent
	// errored, panic, cancellation). Session memory is untouched then.
	Success bool `json:"success"`

	// Response is the selected agent's reply, or a caller-safe message.
	Response string `json:"response,omitempty"`

	// SelectedAgent is the chosen agent's ID; empty when none.
	SelectedAgent string `json:"selected_agent,omitempty"`

	// Basis names the pipeline stage that committed the decision.
	Basis Basis `json:"basis"`

	// Confidence is the decision-ready score in [0,1].
	Confidence float64 `json:"confidence"`

	// Intent echoes the classified intent used for this turn, if any.
	Intent string `json:"intent,omitempty"`

	// ContextUsed reports whether contextual boosting or stored session
	// context contributed to the decision.
	ContextUsed bool `json:"context_used"`

	// ConversationEnded is set when the agent closed the conversation.
	ConversationEnded bool `json:"conversation_ended,omitempty"`

	// ProcessingTime is the wall-clock duration of the whole turn.
	ProcessingTime time.Duration `json:"processing_time"`

	// SuggestedActions is populated only when SelectedAgent is empty.
	SuggestedActions []SuggestedAction `json:"suggested_actions,omitempty"`

	// TurnID uniquely identifies this turn for correlation with events.
	TurnID string `json:"turn_id"`

	// SessionID is the session this turn executed against.
	SessionID string `json:"session_id"`
}

// Selected reports whether the turn committed to an agent.
func (r *RoutingResult) Selected() bool {
	return r.SelectedAgent != ""
}

// RoutingRecord is one past routing decision kept in session history.
// Records are immutable once appended.
type RoutingRecord struct {
	AgentID     string    `json:"agent_id"`
	Confidence  float64   `json:"confidence"`
	Intent      string    `json:"intent,omitempty"`
	ContextUsed bool      `json:"context_used"`
	At          time.Time `json:"at"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// SESSION PERSISTENCE
// ═══════════════════════════════════════════════════════════════════════════════

// SessionSnapshot is the serializable image of one session's state.
type SessionSnapshot struct {
	ID                    string            `json:"id"`
	LastSelectedAgent     string            `json:"last_selected_agent,omitempty"`
	LastIntent            string            `json:"last_intent,omitempty"`
	LastConfidence        float64           `json:"last_confidence,omitempty"`
	LastInput             string            `json:"last_input,omitempty"`
	LastInteractionAt     time.Time         `json:"last_interaction_at,omitempty"`
	ContinueWithSameAgent bool              `json:"continue_with_same_agent,omitempty"`
	Ended                 bool              `json:"ended,omitempty"`
	Working               map[string]any    `json:"working,omitempty"`
	Entities              map[string]string `json:"entities,omitempty"`
	History               []RoutingRecord   `json:"history,omitempty"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// SessionStore persists session snapshots between engine restarts.
// Implementations must tolerate concurrent calls for different sessions.
type SessionStore interface {
	// Save upserts a snapshot.
	Save(ctx context.Context, snap *SessionSnapshot) error

	// Load returns the snapshot for id, or (nil, nil) when unknown.
	Load(ctx context.Context, id string) (*SessionSnapshot, error)

	// Delete removes a stored session. Deleting an unknown id is not an
	// error.
	Delete(ctx context.Context, id string) error

	// Close releases the store's resources.
	Close() error
}
