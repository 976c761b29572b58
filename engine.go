package switchboard

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/northbridge-ai/switchboard/internal/logging"
	"github.com/northbridge-ai/switchboard/internal/memory"
	"github.com/northbridge-ai/switchboard/internal/registry"
	"github.com/northbridge-ai/switchboard/internal/scoring"
	"github.com/northbridge-ai/switchboard/internal/topic"
	"github.com/northbridge-ai/switchboard/pkg/events"
	"github.com/northbridge-ai/switchboard/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// Orchestrator
// ═══════════════════════════════════════════════════════════════════════════

// Orchestrator routes conversational turns to the registered agent best
// suited to handle them. Each turn runs a staged pipeline: explicit
// overrides and greetings first, then intent-based short-circuiting, then
// conversation continuity, then a full scoring pass over every agent.
//
// Turns for different sessions may run concurrently. Turns for the same
// session must be serialized by the host; the orchestrator assumes at most
// one in-flight turn per session id.
type Orchestrator struct {
	cfg *Config
	log zerolog.Logger

	reg      *registry.Registry
	mem      *memory.Manager
	scorer   *scoring.Scorer
	detector *topic.Detector
	bus      *events.Bus
	stats    *statsCollector

	rules []compiledRule

	// store is an externally supplied session store; ownStore is one the
	// orchestrator opened itself from config and is responsible for closing.
	store    types.SessionStore
	ownStore types.SessionStore
	ownBus   bool
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the engine logger. Component loggers for the registry,
// memory and scoring subsystems still derive from the process-wide default.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// WithSessionStore sets an external session store. The caller keeps
// ownership: Close will not close a store supplied here. Takes precedence
// over session.store_path in the configuration.
func WithSessionStore(store types.SessionStore) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithBus sets an external event bus, letting several engines share one
// stream. The caller keeps ownership: Close will not close a bus supplied
// here.
func WithBus(b *events.Bus) Option {
	return func(o *Orchestrator) {
		o.bus = b
	}
}

// New builds an orchestrator from cfg. A nil cfg uses DefaultConfig. The
// configuration is validated first and any failure is fatal: a broken
// config misroutes every turn, so the engine refuses to start instead.
func New(cfg *Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:   cfg,
		log:   logging.Component("orchestrator"),
		reg:   registry.New(),
		stats: newStatsCollector(),
	}
	for _, opt := range opts {
		opt(o)
	}

	rules, err := compileRules(cfg.Routing.PriorityOverrides)
	if err != nil {
		return nil, err
	}
	o.rules = rules

	o.scorer = scoring.New(scoring.Config{
		PrimaryThreshold:  cfg.Thresholds.Primary,
		HighThreshold:     cfg.Thresholds.High,
		FallbackThreshold: cfg.Thresholds.Fallback,
		ContinuityBonus:   cfg.Continuity.Bonus,
		IntentBoost:       cfg.Scoring.IntentBoost,
		EntityBoost:       cfg.Scoring.EntityBoost,
		IntentMappings:    cfg.Routing.IntentMappings,
		EntityAlignments:  cfg.Routing.EntityAlignments,
	})

	transitions := make(map[string]topic.Transition, len(cfg.Topic.Transitions))
	for agent, tr := range cfg.Topic.Transitions {
		transitions[agent] = topic.Transition{Keywords: tr.Keywords, Target: tr.Target}
	}
	o.detector = topic.NewDetector(topic.Config{
		DivergenceMargin: cfg.Topic.DivergenceMargin,
		MinWords:         cfg.Topic.MinWords,
		IntentMappings:   cfg.Routing.IntentMappings,
		Transitions:      transitions,
	}, o.reg)

	store := o.store
	if store == nil && cfg.Session.StorePath != "" {
		st, err := memory.NewSQLiteStore(cfg.Session.StorePath)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		store = st
		o.ownStore = st
	}
	o.mem = memory.NewManager(memory.ManagerConfig{
		MaxHistory: cfg.Session.MaxHistory,
		Store:      store,
	})

	if o.bus == nil {
		o.bus = events.NewBus()
		o.ownBus = true
	}

	o.log.Info().
		Float64("primary_threshold", cfg.Thresholds.Primary).
		Float64("high_threshold", cfg.Thresholds.High).
		Int("priority_rules", len(o.rules)).
		Bool("persistent", store != nil).
		Msg("orchestrator ready")

	return o, nil
}

// NewSQLiteSessionStore opens the bundled SQLite-backed session store at
// path, for hosts that want to share it or wrap it before handing it to
// WithSessionStore.
func NewSQLiteSessionStore(path string) (types.SessionStore, error) {
	return memory.NewSQLiteStore(path)
}

// ═══════════════════════════════════════════════════════════════════════════
// Registration and introspection
// ═══════════════════════════════════════════════════════════════════════════

// RegisterAgent adds an agent to the routing pool. Registering twice under
// the same id replaces the earlier agent. Registration normally happens
// once at startup, before the first turn.
func (o *Orchestrator) RegisterAgent(a types.Agent) {
	o.reg.Register(a)
}

// RegisterAgents adds several agents in order.
func (o *Orchestrator) RegisterAgents(agents ...types.Agent) {
	for _, a := range agents {
		o.reg.Register(a)
	}
}

// Agents returns the registered agents in registration order.
func (o *Orchestrator) Agents() []types.Agent {
	return o.reg.All()
}

// SessionHistory returns the routing records for a session, oldest first,
// or nil when the session is unknown.
func (o *Orchestrator) SessionHistory(sessionID string) []types.RoutingRecord {
	if sessionID == "" {
		sessionID = types.DefaultSessionID
	}
	s, ok := o.mem.Get(sessionID)
	if !ok {
		return nil
	}
	return s.History()
}

// SessionCount returns the number of live sessions.
func (o *Orchestrator) SessionCount() int {
	return o.mem.Len()
}

// EndSession drops a session's memory and any persisted copy of it.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) {
	if sessionID == "" {
		sessionID = types.DefaultSessionID
	}
	o.mem.Delete(ctx, sessionID)

	ev := events.New(events.EventSessionEnded)
	ev.SessionID = sessionID
	o.bus.Publish(ev)
}

// Stats returns a snapshot of routing statistics since startup.
func (o *Orchestrator) Stats() Stats {
	return o.stats.snapshot()
}

// Subscribe registers a handler for one event type. An empty type
// subscribes to every event.
func (o *Orchestrator) Subscribe(t events.EventType, h events.Handler) events.SubscriptionID {
	return o.bus.Subscribe(t, h)
}

// SubscribeAll registers a handler for every event type.
func (o *Orchestrator) SubscribeAll(h events.Handler) events.SubscriptionID {
	return o.bus.SubscribeAll(h)
}

// Unsubscribe removes a subscription.
func (o *Orchestrator) Unsubscribe(id events.SubscriptionID) error {
	return o.bus.Unsubscribe(id)
}

// RecentEvents returns a copy of the most recent n routing events, oldest
// first. n <= 0 returns the full retained history.
func (o *Orchestrator) RecentEvents(n int) []events.Event {
	return o.bus.History(n)
}

// Close flushes live sessions to the store, closes the store the engine
// opened and shuts down the engine-owned event bus. Stores and buses
// supplied through options stay open. The orchestrator must not be used
// after Close.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mem.PersistAll(ctx)

	var firstErr error
	if o.ownStore != nil {
		if err := o.ownStore.Close(); err != nil {
			firstErr = fmt.Errorf("close session store: %w", err)
		}
	}
	if o.ownBus {
		if err := o.bus.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ═══════════════════════════════════════════════════════════════════════════
// Priority rules
// ═══════════════════════════════════════════════════════════════════════════

// compiledRule is a PriorityRule with its patterns compiled and zero-value
// boost and cap replaced by defaults.
type compiledRule struct {
	name     string
	patterns []*regexp.Regexp
	keywords []string
	agentID  string
	boost    float64
	cap      float64
}

func compileRules(rules []PriorityRule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		cr := compiledRule{
			name:    r.Name,
			agentID: r.AgentID,
			boost:   r.Boost,
			cap:     r.Cap,
		}
		if cr.name == "" {
			cr.name = fmt.Sprintf("rule_%d", i)
		}
		if cr.boost <= 0 {
			cr.boost = DefaultPriorityBoost
		}
		if cr.cap <= 0 {
			cr.cap = DefaultPriorityCap
		}
		for _, p := range r.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("%w: priority override %q pattern %q: %v", ErrInvalidConfig, cr.name, p, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				cr.keywords = append(cr.keywords, k)
			}
		}
		out = append(out, cr)
	}
	return out, nil
}

// matches reports whether any of the rule's patterns or keywords occur in
// the input. Single-word keywords match whole words only, so "near" does
// not fire on "nearly"; keywords with spaces match as substrings.
func (r compiledRule) matches(input string) bool {
	for _, re := range r.patterns {
		if re.MatchString(input) {
			return true
		}
	}
	if len(r.keywords) == 0 {
		return false
	}

	lowered := strings.ToLower(input)
	words := tokenizeWords(lowered)
	for _, kw := range r.keywords {
		if strings.ContainsRune(kw, ' ') {
			if strings.Contains(lowered, kw) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == kw {
				return true
			}
		}
	}
	return false
}

// tokenizeWords splits lowered input on every non-letter, non-digit rune.
func tokenizeWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
