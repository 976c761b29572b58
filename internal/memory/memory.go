// Package memory holds per-session orchestration state: typed working
// memory for the well-known routing keys, a generic extension map, an
// entity store, and a bounded history of past routing decisions.
//
// One Session exists per live session id. The host serializes turns within
// a session; the Manager only synchronizes the id-to-session map itself.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/northbridge-ai/switchboard/internal/logging"
	"github.com/northbridge-ai/switchboard/pkg/types"
)

// DefaultMaxHistory bounds the routing history when no limit is configured.
const DefaultMaxHistory = 20

// Session is the per-conversation state container. All operations are
// total: they never fail, they only read or overwrite state.
type Session struct {
	id string

	mu                sync.RWMutex
	lastSelectedAgent string
	lastIntent        string
	lastConfidence    float64
	lastInput         string
	lastInteractionAt time.Time
	continueWithSame  bool
	ended             bool
	working           map[string]any
	entities          map[string]string
	history           []types.RoutingRecord
	maxHistory        int
	updatedAt         time.Time
}

func newSession(id string, maxHistory int) *Session {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Session{
		id:         id,
		working:    make(map[string]any),
		entities:   make(map[string]string),
		maxHistory: maxHistory,
		updatedAt:  time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Get reads a generic working-memory value, returning def when absent.
func (s *Session) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.working[key]; ok {
		return v
	}
	return def
}

// Set writes a generic working-memory value, overwriting in place.
func (s *Session) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working[key] = v
	s.updatedAt = time.Now()
}

// AddEntities merges extracted entities into the store. Empty names and
// empty values are ignored so blanks never overwrite known values.
func (s *Session) AddEntities(entities map[string]string) {
	if len(entities) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, value := range entities {
		if name == "" || value == "" {
			continue
		}
		s.entities[name] = value
	}
	s.updatedAt = time.Now()
}

// Entities returns a copy of the entity store.
func (s *Session) Entities() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entities))
	for k, v := range s.entities {
		out[k] = v
	}
	return out
}

// KnownEntities returns the entity store overlaid with the turn's own
// entities. The overlay is read-only: nothing is persisted until the turn
// commits.
func (s *Session) KnownEntities(turn map[string]string) map[string]string {
	out := s.Entities()
	for name, value := range turn {
		if name == "" || value == "" {
			continue
		}
		out[name] = value
	}
	return out
}

// Record appends a routing decision, trims the history to its bound
// (oldest first), and refreshes the convenience fields the pipeline reads
// in O(1).
func (s *Session) Record(agentID string, confidence float64, intent string, contextUsed bool) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, types.RoutingRecord{
		AgentID:     agentID,
		Confidence:  confidence,
		Intent:      intent,
		ContextUsed: contextUsed,
		At:          now,
	})
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}

	s.lastSelectedAgent = agentID
	s.lastConfidence = confidence
	if intent != "" {
		s.lastIntent = intent
	}
	s.lastInteractionAt = now
	s.updatedAt = now
}

// History returns a copy of the routing history, oldest first.
func (s *Session) History() []types.RoutingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.RoutingRecord, len(s.history))
	copy(out, s.history)
	return out
}

// LastSelectedAgent returns the agent id of the most recent selection.
func (s *Session) LastSelectedAgent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSelectedAgent
}

// LastIntent returns the most recent non-empty classified intent.
func (s *Session) LastIntent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastIntent
}

// LastConfidence returns the confidence of the most recent selection.
func (s *Session) LastConfidence() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastConfidence
}

// LastInput returns the previous turn's user input.
func (s *Session) LastInput() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastInput
}

// SetLastInput stores the current turn's user input for the next turn.
func (s *Session) SetLastInput(input string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastInput = input
	s.updatedAt = time.Now()
}

// LastInteractionAt returns when the session last committed a selection.
func (s *Session) LastInteractionAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastInteractionAt
}

// SetLastInteractionAt overrides the recency clock, mainly for tests and
// for restoring persisted sessions.
func (s *Session) SetLastInteractionAt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastInteractionAt = t
}

// ContinueWithSameAgent reports the explicit continuity flag.
func (s *Session) ContinueWithSameAgent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.continueWithSame
}

// SetContinueWithSameAgent sets or clears the explicit continuity flag.
func (s *Session) SetContinueWithSameAgent(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.continueWithSame = v
	s.updatedAt = time.Now()
}

// Ended reports whether an agent closed the conversation.
func (s *Session) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

// SetEnded marks the conversation closed or reopened.
func (s *Session) SetEnded(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = v
	s.updatedAt = time.Now()
}

// UpdatedAt returns the time of the last mutation, used for idle eviction.
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Snapshot captures a deep copy of the session state for persistence.
func (s *Session) Snapshot() *types.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	working := make(map[string]any, len(s.working))
	for k, v := range s.working {
		working[k] = v
	}
	entities := make(map[string]string, len(s.entities))
	for k, v := range s.entities {
		entities[k] = v
	}
	history := make([]types.RoutingRecord, len(s.history))
	copy(history, s.history)

	return &types.SessionSnapshot{
		ID:                    s.id,
		LastSelectedAgent:     s.lastSelectedAgent,
		LastIntent:            s.lastIntent,
		LastConfidence:        s.lastConfidence,
		LastInput:             s.lastInput,
		LastInteractionAt:     s.lastInteractionAt,
		ContinueWithSameAgent: s.continueWithSame,
		Ended:                 s.ended,
		Working:               working,
		Entities:              entities,
		History:               history,
		UpdatedAt:             s.updatedAt,
	}
}

func sessionFromSnapshot(snap *types.SessionSnapshot, maxHistory int) *Session {
	s := newSession(snap.ID, maxHistory)
	s.lastSelectedAgent = snap.LastSelectedAgent
	s.lastIntent = snap.LastIntent
	s.lastConfidence = snap.LastConfidence
	s.lastInput = snap.LastInput
	s.lastInteractionAt = snap.LastInteractionAt
	s.continueWithSame = snap.ContinueWithSameAgent
	s.ended = snap.Ended
	for k, v := range snap.Working {
		s.working[k] = v
	}
	for k, v := range snap.Entities {
		s.entities[k] = v
	}
	s.history = append(s.history, snap.History...)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	if !snap.UpdatedAt.IsZero() {
		s.updatedAt = snap.UpdatedAt
	}
	return s
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// MaxHistory bounds each session's routing history.
	MaxHistory int

	// Store optionally persists sessions across restarts. Nil keeps
	// sessions in memory only.
	Store types.SessionStore
}

// Manager maps session ids to Sessions, creating them lazily. Insert and
// lookup are synchronized; per-session mutation is the host's serialization
// concern.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maxHistory int
	store      types.SessionStore
	log        zerolog.Logger
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		maxHistory: maxHistory,
		store:      cfg.Store,
		log:        logging.Component("memory"),
	}
}

// GetOrCreate returns the session for id, creating it on first reference.
// With a store configured, an unknown id is first looked up there so
// sessions survive restarts; load failures fall back to a fresh session.
func (m *Manager) GetOrCreate(ctx context.Context, id string) *Session {
	if id == "" {
		id = types.DefaultSessionID
	}

	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s
	}

	var restored *Session
	if m.store != nil {
		snap, err := m.store.Load(ctx, id)
		switch {
		case err != nil:
			m.log.Warn().Err(err).Str("session", id).Msg("session load failed, starting fresh")
		case snap != nil:
			restored = sessionFromSnapshot(snap, m.maxHistory)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	if restored != nil {
		m.sessions[id] = restored
		return restored
	}
	s = newSession(id, m.maxHistory)
	m.sessions[id] = s
	return s
}

// Get returns the live session for id without creating one.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete evicts a session and removes its persisted state.
func (m *Manager) Delete(ctx context.Context, id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx, id); err != nil {
			m.log.Warn().Err(err).Str("session", id).Msg("session delete failed")
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle drops sessions untouched for longer than maxAge from memory and
// returns how many were evicted. Persisted state is kept, so an evicted
// session can be restored on its next turn.
func (m *Manager) EvictIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, s := range m.sessions {
		if s.UpdatedAt().Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Persist writes the session's snapshot through to the store, if any.
func (m *Manager) Persist(ctx context.Context, s *Session) {
	if m.store == nil || s == nil {
		return
	}
	if err := m.store.Save(ctx, s.Snapshot()); err != nil {
		m.log.Warn().Err(err).Str("session", s.ID()).Msg("session persist failed")
	}
}

// PersistAll flushes every live session to the store, typically at
// shutdown.
func (m *Manager) PersistAll(ctx context.Context) {
	if m.store == nil {
		return
	}
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		m.Persist(ctx, s)
	}
}
