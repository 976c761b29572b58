package topic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbridge-ai/switchboard/internal/registry"
	"github.com/northbridge-ai/switchboard/pkg/types"
)

type scoredAgent struct {
	id    string
	score float64
	err   error
}

func (a *scoredAgent) ID() string          { return a.id }
func (a *scoredAgent) Name() string        { return a.id }
func (a *scoredAgent) Description() string { return a.id }

func (a *scoredAgent) CanHandle(context.Context, string, types.Context) (float64, error) {
	return a.score, a.err
}

func (a *scoredAgent) Process(context.Context, string, types.Context) (*types.HandlerResult, error) {
	return &types.HandlerResult{Text: "ok"}, nil
}

func buildRegistry(t *testing.T, agents ...*scoredAgent) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, a := range agents {
		reg.Register(a)
	}
	return reg
}

func TestDivergenceStrategy(t *testing.T) {
	tests := []struct {
		name        string
		current     *scoredAgent
		rival       *scoredAgent
		wantChanged bool
	}{
		{
			name:        "rival well ahead",
			current:     &scoredAgent{id: "account", score: 0.4},
			rival:       &scoredAgent{id: "stores", score: 0.8},
			wantChanged: true,
		},
		{
			name:        "rival inside the margin",
			current:     &scoredAgent{id: "account", score: 0.4},
			rival:       &scoredAgent{id: "stores", score: 0.65},
			wantChanged: false,
		},
		{
			name:        "rival exactly at the margin",
			current:     &scoredAgent{id: "account", score: 0.4},
			rival:       &scoredAgent{id: "stores", score: 0.7},
			wantChanged: false,
		},
		{
			name:        "current agent error treated as zero",
			current:     &scoredAgent{id: "account", err: errors.New("boom")},
			rival:       &scoredAgent{id: "stores", score: 0.35},
			wantChanged: true,
		},
		{
			name:        "failing rival skipped",
			current:     &scoredAgent{id: "account", score: 0.4},
			rival:       &scoredAgent{id: "stores", score: 0.9, err: errors.New("boom")},
			wantChanged: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewDivergenceStrategy(0.3)
			in := Input{
				Utterance:    "where is the nearest store",
				CurrentAgent: "account",
				Registry:     buildRegistry(t, tt.current, tt.rival),
			}
			changed, reason := s.Detect(context.Background(), in)
			assert.Equal(t, tt.wantChanged, changed)
			if tt.wantChanged {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestDivergenceStrategyUnknownCurrentAgent(t *testing.T) {
	s := NewDivergenceStrategy(0.3)
	in := Input{
		Utterance:    "where is the nearest store",
		CurrentAgent: "ghost",
		Registry:     buildRegistry(t, &scoredAgent{id: "stores", score: 0.9}),
	}
	changed, _ := s.Detect(context.Background(), in)
	assert.False(t, changed)
}

func TestIntentStrategy(t *testing.T) {
	s := NewIntentStrategy(map[string]string{
		"password_reset": "account",
		"order_status":   "shipping",
	})

	tests := []struct {
		name        string
		intent      string
		current     string
		wantChanged bool
	}{
		{name: "intent maps to current agent", intent: "password_reset", current: "account"},
		{name: "intent maps elsewhere", intent: "order_status", current: "account", wantChanged: true},
		{name: "unmapped intent", intent: "small_talk", current: "account"},
		{name: "no intent", intent: "", current: "account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed, _ := s.Detect(context.Background(), Input{
				Utterance:    "I forgot my password again",
				CurrentAgent: tt.current,
				Turn:         types.Context{Intent: tt.intent},
			})
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestKeywordStrategy(t *testing.T) {
	s := NewKeywordStrategy(map[string]Transition{
		"account": {Keywords: []string{"store", "location", "near me"}, Target: "stores"},
	})

	tests := []struct {
		name        string
		utterance   string
		current     string
		wantChanged bool
	}{
		{name: "keyword match", utterance: "is there a store nearby", current: "account", wantChanged: true},
		{name: "phrase match", utterance: "anything near me today", current: "account", wantChanged: true},
		{name: "substring does not fire", utterance: "please restore my account", current: "account"},
		{name: "case insensitive", utterance: "WHERE IS YOUR STORE", current: "account", wantChanged: true},
		{name: "agent without transitions", utterance: "is there a store nearby", current: "shipping"},
		{name: "no keyword", utterance: "change my email address", current: "account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed, _ := s.Detect(context.Background(), Input{
				Utterance:    tt.utterance,
				CurrentAgent: tt.current,
			})
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestDetectorShortInputsNeverChange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transitions = map[string]Transition{
		"account": {Keywords: []string{"store"}, Target: "stores"},
	}
	reg := buildRegistry(t,
		&scoredAgent{id: "account", score: 0.1},
		&scoredAgent{id: "stores", score: 0.9},
	)
	d := NewDetector(cfg, reg)

	// Two words or fewer, even when every strategy would fire.
	for _, input := range []string{"store", "store location", "ok"} {
		changed, _ := d.Changed(context.Background(), input, "account", types.Context{})
		assert.False(t, changed, "input %q", input)
	}

	changed, reason := d.Changed(context.Background(), "where is the store", "account", types.Context{})
	require.True(t, changed)
	assert.NotEmpty(t, reason)
}

func TestDetectorAnyStrategyTriggers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IntentMappings = map[string]string{"order_status": "shipping"}
	cfg.Transitions = map[string]Transition{
		"account": {Keywords: []string{"store"}, Target: "stores"},
	}
	reg := buildRegistry(t,
		&scoredAgent{id: "account", score: 0.6},
		&scoredAgent{id: "shipping", score: 0.6},
		&scoredAgent{id: "stores", score: 0.6},
	)
	d := NewDetector(cfg, reg)
	ctx := context.Background()

	// Same capability everywhere: divergence stays quiet.
	changed, _ := d.Changed(ctx, "tell me something new", "account", types.Context{})
	assert.False(t, changed)

	// Intent alone is enough.
	changed, reason := d.Changed(ctx, "what about my delivery", "account", types.Context{Intent: "order_status"})
	assert.True(t, changed)
	assert.Contains(t, reason, "intent")

	// Keyword alone is enough.
	changed, reason = d.Changed(ctx, "where is the store", "account", types.Context{})
	assert.True(t, changed)
	assert.Contains(t, reason, "keyword")
}

func TestDetectorNoCurrentAgent(t *testing.T) {
	d := NewDetector(DefaultConfig(), buildRegistry(t, &scoredAgent{id: "stores", score: 0.9}))
	changed, _ := d.Changed(context.Background(), "where is the nearest store", "", types.Context{})
	assert.False(t, changed)
}
