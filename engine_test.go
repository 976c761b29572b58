package switchboard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbridge-ai/switchboard/pkg/events"
	"github.com/northbridge-ai/switchboard/pkg/types"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds.Primary = 0

	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewNilConfigUsesDefaults(t *testing.T) {
	o, err := New(nil, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close(context.Background()) })

	assert.Empty(t, o.Agents())
	assert.Zero(t, o.SessionCount())
}

func TestRegisterAgentReplacementKeepsOrder(t *testing.T) {
	o, err := New(nil, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close(context.Background()) })

	o.RegisterAgents(
		&stubAgent{id: "account", name: "Account v1"},
		&stubAgent{id: "shipping"},
	)
	o.RegisterAgent(&stubAgent{id: "account", name: "Account v2"})

	agents := o.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, "account", agents[0].ID())
	assert.Equal(t, "Account v2", agents[0].Name())
	assert.Equal(t, "shipping", agents[1].ID())
}

func TestEndSessionDropsMemory(t *testing.T) {
	account := &stubAgent{id: "account", score: 0.9, reply: "ok"}
	o := newTestOrchestrator(t, nil, account)

	res := o.Process(context.Background(), "reset my password please", types.Context{SessionID: "s1"})
	require.True(t, res.Selected())
	require.Equal(t, 1, o.SessionCount())

	o.EndSession(context.Background(), "s1")

	assert.Zero(t, o.SessionCount())
	assert.Empty(t, o.SessionHistory("s1"))
}

func TestSessionsPersistAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	mkCfg := func() *Config {
		cfg := DefaultConfig()
		cfg.Session.StorePath = path
		return cfg
	}

	first, err := New(mkCfg(), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	first.RegisterAgent(&stubAgent{id: "account", score: 0.9, reply: "ok"})

	res := first.Process(context.Background(), "I need to reset my password", types.Context{SessionID: "s1"})
	require.Equal(t, "account", res.SelectedAgent)
	require.NoError(t, first.Close(context.Background()))

	second, err := New(mkCfg(), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close(context.Background()) })
	second.RegisterAgent(&stubAgent{id: "account", score: 0.9, reply: "welcome back"})

	// The greeting resumes the restored conversation, which only works if
	// the previous turn survived the restart.
	resumed := second.Process(context.Background(), "hello", types.Context{SessionID: "s1"})
	require.Equal(t, "account", resumed.SelectedAgent)
	assert.Equal(t, types.BasisContinuity, resumed.Basis)
	assert.InDelta(t, 0.8, resumed.Confidence, 1e-9)
	assert.Len(t, second.SessionHistory("s1"), 2)
}

func TestCloseLeavesExternalStoreOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewSQLiteSessionStore(path)
	require.NoError(t, err)
	defer store.Close()

	o, err := New(DefaultConfig(), WithSessionStore(store), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	o.RegisterAgent(&stubAgent{id: "account", score: 0.9, reply: "ok"})

	res := o.Process(context.Background(), "reset my password please", types.Context{SessionID: "s1"})
	require.True(t, res.Selected())
	require.NoError(t, o.Close(context.Background()))

	// The engine flushed to the store but did not close it.
	snap, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "account", snap.LastSelectedAgent)
}

func TestStatsAggregation(t *testing.T) {
	account := &stubAgent{id: "account", score: 0.9, reply: "ok"}
	o := newTestOrchestrator(t, nil, account)

	sel := o.Process(context.Background(), "reset my password for me", types.Context{SessionID: "a"})
	require.True(t, sel.Selected())

	menu := o.Process(context.Background(), "hi", types.Context{SessionID: "b"})
	require.True(t, menu.Success)
	require.False(t, menu.Selected())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	failed := o.Process(cancelled, "reset my password for me", types.Context{SessionID: "c"})
	require.False(t, failed.Success)

	stats := o.Stats()
	assert.Equal(t, int64(3), stats.Turns)
	assert.Equal(t, int64(1), stats.Selections)
	assert.Equal(t, int64(1), stats.NoSelections)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, int64(1), stats.ByBasis[types.BasisEvaluation.String()])
	assert.Equal(t, int64(1), stats.ByBasis[types.BasisNone.String()])
	assert.Equal(t, int64(1), stats.ByAgent["account"])
	assert.InDelta(t, sel.Confidence, stats.AvgConfidence, 1e-9)
	assert.Greater(t, stats.AvgLatency, time.Duration(0))
}

func TestStatsSnapshotIsDetached(t *testing.T) {
	account := &stubAgent{id: "account", score: 0.9, reply: "ok"}
	o := newTestOrchestrator(t, nil, account)

	o.Process(context.Background(), "reset my password for me", types.Context{SessionID: "a"})

	snap := o.Stats()
	snap.ByAgent["account"] = 99

	assert.Equal(t, int64(1), o.Stats().ByAgent["account"])
}

func TestRecentEventsKeepsTurnOrder(t *testing.T) {
	account := &stubAgent{id: "account", score: 0.9, reply: "ok"}
	o := newTestOrchestrator(t, nil, account)

	res := o.Process(context.Background(), "reset my password for me", types.Context{SessionID: "s1"})
	require.True(t, res.Success)

	got := o.RecentEvents(0)
	require.NotEmpty(t, got)
	assert.Equal(t, events.EventTurnStarted, got[0].Type)
	assert.Equal(t, events.EventTurnCompleted, got[len(got)-1].Type)
	for _, ev := range got {
		assert.Equal(t, res.TurnID, ev.TurnID)
	}
}

func TestUnsubscribe(t *testing.T) {
	o, err := New(nil, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close(context.Background()) })

	id := o.SubscribeAll(func(events.Event) {})
	require.NotEmpty(t, id)

	require.NoError(t, o.Unsubscribe(id))
	assert.Error(t, o.Unsubscribe(id))
}

func TestEndSessionPublishesEvent(t *testing.T) {
	account := &stubAgent{id: "account", score: 0.9, reply: "ok"}
	o := newTestOrchestrator(t, nil, account)

	ended := make(chan events.Event, 1)
	o.Subscribe(events.EventSessionEnded, func(ev events.Event) {
		select {
		case ended <- ev:
		default:
		}
	})

	o.Process(context.Background(), "reset my password for me", types.Context{SessionID: "s1"})
	o.EndSession(context.Background(), "s1")

	select {
	case ev := <-ended:
		assert.Equal(t, "s1", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("expected a session.ended event")
	}
}
