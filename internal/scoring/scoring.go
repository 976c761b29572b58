// Package scoring turns an agent's raw self-reported confidence into a
// decision-ready score. It applies contextual boosts (intent and entity
// alignment), applies or withholds continuity bonuses, ranks candidates,
// and gates scores against the configured thresholds.
package scoring

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/northbridge-ai/switchboard/internal/logging"
	"github.com/northbridge-ai/switchboard/pkg/types"
)

// Default tuning values. Thresholds and the continuity bonus are the main
// knobs of the whole engine and normally come from configuration.
const (
	DefaultPrimaryThreshold = 0.7
	DefaultHighThreshold    = 0.85
	DefaultContinuityBonus  = 0.2
	DefaultIntentBoost      = 0.10
	DefaultEntityBoost      = 0.15

	// FallbackThresholdRatio derives the fallback threshold from the
	// primary one when no explicit value is configured.
	FallbackThresholdRatio = 0.7

	// Explicit continuity guarantees a floor before the bonus and a
	// ceiling after it.
	explicitContinuityFloor   = 0.5
	explicitContinuityCeiling = 0.95

	// Time-based continuity earns half the bonus: recency alone is a
	// weaker signal than an agent asking to keep the turn.
	timeBasedBonusFactor = 0.5
)

// Config carries the scorer's tuning values and alignment tables.
type Config struct {
	// PrimaryThreshold gates final selection.
	PrimaryThreshold float64

	// HighThreshold gates intent-based short-circuiting.
	HighThreshold float64

	// FallbackThreshold gates time-based continuity. Zero derives
	// FallbackThresholdRatio of the primary threshold.
	FallbackThreshold float64

	// ContinuityBonus favors the agent that owned the previous turn.
	ContinuityBonus float64

	// IntentBoost is added when the classified intent maps to the agent.
	IntentBoost float64

	// EntityBoost is added when an aligned entity key is known.
	EntityBoost float64

	// IntentMappings maps classified intents to agent ids.
	IntentMappings map[string]string

	// EntityAlignments maps agent ids to the entity keys that signal
	// their domain.
	EntityAlignments map[string][]string
}

// DefaultConfig returns the standard tuning with empty alignment tables.
func DefaultConfig() Config {
	return Config{
		PrimaryThreshold: DefaultPrimaryThreshold,
		HighThreshold:    DefaultHighThreshold,
		ContinuityBonus:  DefaultContinuityBonus,
		IntentBoost:      DefaultIntentBoost,
		EntityBoost:      DefaultEntityBoost,
	}
}

// Candidate pairs an agent with its raw and adjusted scores during ranking.
type Candidate struct {
	Agent       types.Agent
	Raw         float64
	Adjusted    float64
	ContextUsed bool
}

// Scorer applies the scoring rules. It holds no per-turn state and is safe
// for concurrent use.
type Scorer struct {
	cfg Config
	log zerolog.Logger
}

// New creates a scorer for cfg. The config is used as given; callers wanting
// defaults start from DefaultConfig.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg, log: logging.Component("scoring")}
}

// AgentForIntent returns the configured agent id for a classified intent.
func (s *Scorer) AgentForIntent(intent string) (string, bool) {
	if intent == "" {
		return "", false
	}
	id, ok := s.cfg.IntentMappings[intent]
	return id, ok
}

// ContextualBoost adjusts a raw confidence with the intent and entity
// alignment boosts, clamped to 1.0. The second return reports whether any
// context contributed.
func (s *Scorer) ContextualBoost(agentID string, base float64, intent string, known map[string]string) (float64, bool) {
	adjusted := Clamp01(base)
	used := false

	if intent != "" {
		if target, ok := s.cfg.IntentMappings[intent]; ok && target == agentID {
			adjusted += s.cfg.IntentBoost
			used = true
		}
	}

	for _, key := range s.cfg.EntityAlignments[agentID] {
		if known[key] != "" {
			adjusted += s.cfg.EntityBoost
			used = true
			break
		}
	}

	if used {
		s.log.Debug().
			Str("agent", agentID).
			Float64("base", base).
			Float64("adjusted", Clamp01(adjusted)).
			Msg("contextual boost applied")
	}
	return Clamp01(adjusted), used
}

// ContinuityBonus adjusts a base confidence for conversational continuity.
// A detected topic change suppresses the bonus entirely. Explicit
// continuity gets a floor of 0.5 before the bonus and a ceiling of 0.95
// after it; time-based continuity gets half the bonus with no floor.
func (s *Scorer) ContinuityBonus(base float64, topicChanged, explicit bool) float64 {
	if topicChanged {
		return Clamp01(base)
	}
	if explicit {
		return math.Min(explicitContinuityCeiling, math.Max(explicitContinuityFloor, base)+s.cfg.ContinuityBonus)
	}
	return Clamp01(base + s.cfg.ContinuityBonus*timeBasedBonusFactor)
}

// Rank returns the candidates sorted by adjusted confidence, descending.
// The sort is stable so equal scores keep registration order, which makes
// tie-breaking deterministic. The input slice is not modified.
func (s *Scorer) Rank(cands []Candidate) []Candidate {
	out := make([]Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Adjusted > out[j].Adjusted
	})
	return out
}

// AboveThreshold reports whether c clears the primary selection threshold.
func (s *Scorer) AboveThreshold(c float64) bool {
	return c >= s.cfg.PrimaryThreshold
}

// AboveFallback reports whether c clears the fallback threshold used for
// time-based continuity.
func (s *Scorer) AboveFallback(c float64) bool {
	return c >= s.FallbackThreshold()
}

// AboveFallbackWith is AboveFallback with a per-call override; a
// non-positive override falls back to the configured threshold.
func (s *Scorer) AboveFallbackWith(c, override float64) bool {
	if override > 0 {
		return c >= override
	}
	return s.AboveFallback(c)
}

// HighConfidence reports whether c exceeds the high threshold that gates
// intent-based short-circuiting.
func (s *Scorer) HighConfidence(c float64) bool {
	return c > s.cfg.HighThreshold
}

// FallbackThreshold returns the effective fallback threshold.
func (s *Scorer) FallbackThreshold() float64 {
	if s.cfg.FallbackThreshold > 0 {
		return s.cfg.FallbackThreshold
	}
	return s.cfg.PrimaryThreshold * FallbackThresholdRatio
}

// Thresholds returns the effective primary, high, and fallback thresholds.
func (s *Scorer) Thresholds() (primary, high, fallback float64) {
	return s.cfg.PrimaryThreshold, s.cfg.HighThreshold, s.FallbackThreshold()
}

// Clamp01 clamps v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
