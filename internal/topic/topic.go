// Package topic decides whether a conversation has drifted away from the
// agent that currently owns it. Detection is a composite of three
// independent strategies (confidence divergence, intent mapping, keyword
// transitions); any single strategy reporting drift counts as a topic
// change. Very short inputs such as clarifications never trigger one.
package topic

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/northbridge-ai/switchboard/internal/logging"
	"github.com/northbridge-ai/switchboard/internal/registry"
	"github.com/northbridge-ai/switchboard/pkg/types"
)

const (
	// DefaultDivergenceMargin is how far a rival agent's capability score
	// must exceed the current agent's before divergence counts as drift.
	DefaultDivergenceMargin = 0.3

	// DefaultMinWords is the word count an input must exceed before any
	// strategy runs. Shorter inputs are treated as clarifications.
	DefaultMinWords = 2
)

// Transition names the keywords that pull a conversation away from one
// agent toward another, e.g. "store" or "nearest" while the account agent
// owns the session.
type Transition struct {
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
	Target   string   `mapstructure:"target" yaml:"target"`
}

// Config carries the tuning knobs for all three strategies.
type Config struct {
	DivergenceMargin float64               `mapstructure:"divergence_margin" yaml:"divergence_margin"`
	MinWords         int                   `mapstructure:"min_words" yaml:"min_words"`
	IntentMappings   map[string]string     `mapstructure:"-" yaml:"-"`
	Transitions      map[string]Transition `mapstructure:"transitions" yaml:"transitions"`
}

// DefaultConfig returns the detection defaults. Intent mappings and
// transition tables are domain data and ship empty here.
func DefaultConfig() Config {
	return Config{
		DivergenceMargin: DefaultDivergenceMargin,
		MinWords:         DefaultMinWords,
	}
}

// Input is the fixed tuple every strategy evaluates: the utterance, the
// agent currently owning the session, the turn context, and the registry
// of candidates.
type Input struct {
	Utterance    string
	CurrentAgent string
	Turn         types.Context
	Registry     *registry.Registry
}

// Strategy is one independent drift detector.
type Strategy interface {
	// Name identifies the strategy in logs and events.
	Name() string

	// Detect reports whether the input signals a topic change, with a
	// human-readable reason when it does.
	Detect(ctx context.Context, in Input) (bool, string)
}

// ─────────────────────────────────────────────────────────────────────────────
// Confidence divergence
// ─────────────────────────────────────────────────────────────────────────────

// DivergenceStrategy asks every registered agent to score the input and
// declares drift when any rival beats the current agent by more than the
// margin.
type DivergenceStrategy struct {
	margin float64
	log    zerolog.Logger
}

var _ Strategy = (*DivergenceStrategy)(nil)

// NewDivergenceStrategy builds the strategy with the given margin. A
// non-positive margin falls back to the default.
func NewDivergenceStrategy(margin float64) *DivergenceStrategy {
	if margin <= 0 {
		margin = DefaultDivergenceMargin
	}
	return &DivergenceStrategy{
		margin: margin,
		log:    logging.Component("topic"),
	}
}

func (s *DivergenceStrategy) Name() string { return "divergence" }

func (s *DivergenceStrategy) Detect(ctx context.Context, in Input) (bool, string) {
	if in.Registry == nil {
		return false, ""
	}
	current, ok := in.Registry.ByID(in.CurrentAgent)
	if !ok {
		return false, ""
	}

	base, err := current.CanHandle(ctx, in.Utterance, in.Turn)
	if err != nil {
		// A current agent that cannot even score the input is maximally
		// vulnerable to rivals.
		s.log.Warn().Err(err).Str("agent", in.CurrentAgent).Msg("current agent failed to score input")
		base = 0
	}

	for _, agent := range in.Registry.All() {
		if agent.ID() == current.ID() {
			continue
		}
		score, err := agent.CanHandle(ctx, in.Utterance, in.Turn)
		if err != nil {
			s.log.Warn().Err(err).Str("agent", agent.ID()).Msg("rival agent failed to score input")
			continue
		}
		if score > base+s.margin {
			return true, fmt.Sprintf("agent %s scores %.2f against current %.2f", agent.ID(), score, base)
		}
	}
	return false, ""
}

// ─────────────────────────────────────────────────────────────────────────────
// Intent mapping
// ─────────────────────────────────────────────────────────────────────────────

// IntentStrategy declares drift when the turn's classified intent maps to
// a different agent than the one owning the session.
type IntentStrategy struct {
	mappings map[string]string
}

var _ Strategy = (*IntentStrategy)(nil)

func NewIntentStrategy(mappings map[string]string) *IntentStrategy {
	return &IntentStrategy{mappings: mappings}
}

func (s *IntentStrategy) Name() string { return "intent" }

func (s *IntentStrategy) Detect(_ context.Context, in Input) (bool, string) {
	intent := strings.TrimSpace(in.Turn.Intent)
	if intent == "" {
		return false, ""
	}
	target, ok := s.mappings[intent]
	if !ok || target == "" || target == in.CurrentAgent {
		return false, ""
	}
	return true, fmt.Sprintf("intent %q maps to agent %s", intent, target)
}

// ─────────────────────────────────────────────────────────────────────────────
// Keyword transitions
// ─────────────────────────────────────────────────────────────────────────────

// KeywordStrategy declares drift when the input contains a keyword from
// the current agent's transition entry.
type KeywordStrategy struct {
	transitions map[string]Transition
}

var _ Strategy = (*KeywordStrategy)(nil)

func NewKeywordStrategy(transitions map[string]Transition) *KeywordStrategy {
	return &KeywordStrategy{transitions: transitions}
}

func (s *KeywordStrategy) Name() string { return "keyword" }

func (s *KeywordStrategy) Detect(_ context.Context, in Input) (bool, string) {
	tr, ok := s.transitions[in.CurrentAgent]
	if !ok || len(tr.Keywords) == 0 {
		return false, ""
	}

	lowered := strings.ToLower(in.Utterance)
	words := tokenize(lowered)
	for _, kw := range tr.Keywords {
		if containsKeyword(lowered, words, strings.ToLower(kw)) {
			return true, fmt.Sprintf("keyword %q suggests agent %s", kw, tr.Target)
		}
	}
	return false, ""
}

// containsKeyword matches single-word keywords against whole tokens so
// that "store" does not fire on "restore"; phrases fall back to substring
// matching.
func containsKeyword(lowered string, words []string, kw string) bool {
	if kw == "" {
		return false
	}
	if strings.ContainsRune(kw, ' ') {
		return strings.Contains(lowered, kw)
	}
	for _, w := range words {
		if w == kw {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Composite detector
// ─────────────────────────────────────────────────────────────────────────────

// Detector runs the three strategies in order and reports the first drift
// signal. Inputs at or below the word minimum never drift.
type Detector struct {
	cfg        Config
	reg        *registry.Registry
	strategies []Strategy
	log        zerolog.Logger
}

// NewDetector wires the standard strategy set against the given registry.
func NewDetector(cfg Config, reg *registry.Registry) *Detector {
	if cfg.DivergenceMargin <= 0 {
		cfg.DivergenceMargin = DefaultDivergenceMargin
	}
	if cfg.MinWords < 0 {
		cfg.MinWords = DefaultMinWords
	}
	return &Detector{
		cfg: cfg,
		reg: reg,
		strategies: []Strategy{
			NewDivergenceStrategy(cfg.DivergenceMargin),
			NewIntentStrategy(cfg.IntentMappings),
			NewKeywordStrategy(cfg.Transitions),
		},
		log: logging.Component("topic"),
	}
}

// Changed reports whether the conversation has drifted away from
// currentAgent, with the triggering strategy and reason when it has.
func (d *Detector) Changed(ctx context.Context, utterance, currentAgent string, turn types.Context) (bool, string) {
	if currentAgent == "" {
		return false, ""
	}
	if len(strings.Fields(utterance)) <= d.cfg.MinWords {
		return false, ""
	}

	in := Input{
		Utterance:    utterance,
		CurrentAgent: currentAgent,
		Turn:         turn,
		Registry:     d.reg,
	}
	for _, s := range d.strategies {
		changed, reason := s.Detect(ctx, in)
		if !changed {
			continue
		}
		d.log.Debug().
			Str("strategy", s.Name()).
			Str("agent", currentAgent).
			Str("reason", reason).
			Msg("topic change detected")
		return true, fmt.Sprintf("%s: %s", s.Name(), reason)
	}
	return false, ""
}
