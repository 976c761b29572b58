// Package registry owns the authoritative set of domain agents available to
// the routing engine. It is read-mostly after startup: registration usually
// happens once, lookups happen on every turn.
package registry

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/northbridge-ai/switchboard/internal/logging"
	"github.com/northbridge-ai/switchboard/pkg/types"
)

// Registry indexes agents by identifier and display name and preserves
// registration order, which later pipeline stages rely on for deterministic
// tie-breaking.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]types.Agent
	order []string
	log   zerolog.Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byID: make(map[string]types.Agent),
		log:  logging.Component("registry"),
	}
}

// Register adds an agent, replacing any agent already registered under the
// same ID. Replacement is logged, never an error: last write wins, and the
// ID keeps its original position in the iteration order.
func (r *Registry) Register(a types.Agent) {
	if a == nil || a.ID() == "" {
		r.log.Warn().Msg("ignoring registration of nil or unidentified agent")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[a.ID()]; exists {
		r.log.Warn().Str("agent", a.ID()).Msg("replacing registered agent")
	} else {
		r.order = append(r.order, a.ID())
	}
	r.byID[a.ID()] = a
}

// ByID returns the agent registered under id.
func (r *Registry) ByID(id string) (types.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// ByName returns the first-registered agent whose display name matches,
// case-insensitively. Name collisions beyond "first registered wins" are
// undefined.
func (r *Registry) ByName(name string) (types.Agent, bool) {
	if strings.TrimSpace(name) == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if a := r.byID[id]; strings.EqualFold(a.Name(), name) {
			return a, true
		}
	}
	return nil, false
}

// All returns the agents in registration order. The slice is a copy.
func (r *Registry) All() []types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
