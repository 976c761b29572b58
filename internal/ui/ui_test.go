package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbridge-ai/switchboard/pkg/types"
)

// stubAgent satisfies types.Agent for welcome and name-resolution tests.
type stubAgent struct {
	id, name, desc string
}

func (a stubAgent) ID() string          { return a.id }
func (a stubAgent) Name() string        { return a.name }
func (a stubAgent) Description() string { return a.desc }

func (a stubAgent) CanHandle(context.Context, string, types.Context) (float64, error) {
	return 0, nil
}

func (a stubAgent) Process(context.Context, string, types.Context) (*types.HandlerResult, error) {
	return &types.HandlerResult{Text: "stub"}, nil
}

// stubEngine plays back scripted results and records the inputs it saw.
type stubEngine struct {
	agents  []types.Agent
	results []*types.RoutingResult
	history []types.RoutingRecord
	inputs  []string
}

func (s *stubEngine) Process(_ context.Context, input string, tc types.Context) *types.RoutingResult {
	s.inputs = append(s.inputs, input)
	if len(s.results) == 0 {
		return &types.RoutingResult{Success: true, Response: "ok", SessionID: tc.SessionID}
	}
	res := s.results[0]
	s.results = s.results[1:]
	return res
}

func (s *stubEngine) SessionHistory(string) []types.RoutingRecord { return s.history }

func (s *stubEngine) Agents() []types.Agent { return s.agents }

func defaultStub() *stubEngine {
	return &stubEngine{
		agents: []types.Agent{
			stubAgent{id: "account", name: "Account Support", desc: "Passwords and profiles"},
			stubAgent{id: "shipping", name: "Shipping", desc: "Orders and tracking"},
		},
	}
}

// newTestModel builds a sized, ready model around the stub.
func newTestModel(t *testing.T, eng Engine) Model {
	t.Helper()
	m := newModel(Config{Engine: eng, SessionID: "test"})
	got, _ := update(m, tea.WindowSizeMsg{Width: 100, Height: 40})
	return got.(Model)
}

// collectBatch executes a command tree synchronously and returns every
// message it produces.
func collectBatch(t *testing.T, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	require.NotNil(t, cmd)

	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		if c != nil {
			out = append(out, c())
		}
	}
	return out
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{SessionID: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine is required")

	_, err = New(Config{Engine: defaultStub()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session id is required")

	prog, err := New(Config{Engine: defaultStub(), SessionID: "s"})
	require.NoError(t, err)
	assert.NotNil(t, prog)
}

func TestWelcomeListsAgents(t *testing.T) {
	m := newModel(Config{Engine: defaultStub(), SessionID: "s"})

	require.Len(t, m.transcript, 1)
	assert.Equal(t, entrySystem, m.transcript[0].kind)
	assert.Contains(t, m.transcript[0].text, "Account Support")
	assert.Contains(t, m.transcript[0].text, "Orders and tracking")
}

func TestWindowSizeMakesModelReady(t *testing.T) {
	m := newModel(Config{Engine: defaultStub(), SessionID: "s"})
	require.False(t, m.ready)

	got, _ := update(m, tea.WindowSizeMsg{Width: 100, Height: 40})
	mm := got.(Model)

	assert.True(t, mm.ready)
	assert.Equal(t, 100, mm.width)
	assert.Equal(t, 100, mm.viewport.Width)
	assert.Greater(t, mm.viewport.Height, 0)
}

func TestEnterSendsInput(t *testing.T) {
	eng := defaultStub()
	m := newTestModel(t, eng)
	m.input.SetValue("where is my order 482193")

	got, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
	mm := got.(Model)

	assert.True(t, mm.busy)
	assert.Empty(t, mm.input.Value())
	require.Len(t, mm.transcript, 2)
	assert.Equal(t, entryUser, mm.transcript[1].kind)
	assert.Equal(t, "where is my order 482193", mm.transcript[1].text)

	var res *types.RoutingResult
	for _, msg := range collectBatch(t, cmd) {
		if rr, ok := msg.(routeResultMsg); ok {
			res = rr.res
		}
	}
	require.NotNil(t, res, "send should produce a route result")
	assert.Equal(t, []string{"where is my order 482193"}, eng.inputs)
}

func TestEnterIgnoresEmptyInput(t *testing.T) {
	m := newTestModel(t, defaultStub())
	m.input.SetValue("   ")

	got, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
	mm := got.(Model)

	assert.False(t, mm.busy)
	assert.Nil(t, cmd)
	assert.Len(t, mm.transcript, 1)
}

func TestSendIgnoredWhileBusy(t *testing.T) {
	eng := defaultStub()
	m := newTestModel(t, eng)
	m.busy = true
	m.input.SetValue("second message")

	got, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
	mm := got.(Model)

	assert.Nil(t, cmd)
	assert.Equal(t, "second message", mm.input.Value())
	assert.Empty(t, eng.inputs)
}

func TestRouteResultAppendsAgentReply(t *testing.T) {
	eng := defaultStub()
	m := newTestModel(t, eng)
	m.busy = true

	res := &types.RoutingResult{
		Success:        true,
		Response:       "Order #482193 has shipped.",
		SelectedAgent:  "shipping",
		Basis:          types.BasisEvaluation,
		Confidence:     0.82,
		Intent:         "order_status",
		ContextUsed:    true,
		ProcessingTime: 2 * time.Millisecond,
	}
	got, _ := update(m, routeResultMsg{res: res})
	mm := got.(Model)

	assert.False(t, mm.busy)
	last := mm.transcript[len(mm.transcript)-1]
	assert.Equal(t, entryAgent, last.kind)
	assert.Equal(t, "Shipping", last.agent, "agent ID should resolve to its display name")
	assert.Equal(t, "Order #482193 has shipped.", last.text)
	assert.Contains(t, last.meta, "evaluation")
	assert.Contains(t, last.meta, "0.82")
	assert.Contains(t, last.meta, "order_status")
	assert.Contains(t, last.meta, "context")
}

func TestRouteResultNoSelectionShowsSuggestions(t *testing.T) {
	m := newTestModel(t, defaultStub())
	m.busy = true

	res := &types.RoutingResult{
		Success:  true,
		Response: "No agent is confident enough to take this.",
		Basis:    types.BasisNone,
		SuggestedActions: []types.SuggestedAction{
			{ID: "account", Name: "Account Support", Description: "Passwords and profiles"},
		},
	}
	got, _ := update(m, routeResultMsg{res: res})
	mm := got.(Model)

	last := mm.transcript[len(mm.transcript)-1]
	assert.Equal(t, entrySystem, last.kind)
	assert.Contains(t, last.text, "No agent is confident")
	assert.Contains(t, last.text, "Account Support: Passwords and profiles")
}

func TestRouteResultFailureShowsError(t *testing.T) {
	m := newTestModel(t, defaultStub())
	m.busy = true

	res := &types.RoutingResult{Success: false, Response: "agent failed to process the request"}
	got, _ := update(m, routeResultMsg{res: res})
	mm := got.(Model)

	last := mm.transcript[len(mm.transcript)-1]
	assert.Equal(t, entryError, last.kind)
	assert.Contains(t, last.text, "failed to process")
}

func TestRouteResultConversationEndedNotice(t *testing.T) {
	m := newTestModel(t, defaultStub())
	m.busy = true

	res := &types.RoutingResult{
		Success:           true,
		Response:          "Goodbye!",
		SelectedAgent:     "account",
		Basis:             types.BasisContinuity,
		Confidence:        0.85,
		ConversationEnded: true,
	}
	got, _ := update(m, routeResultMsg{res: res})
	mm := got.(Model)

	require.GreaterOrEqual(t, len(mm.transcript), 2)
	last := mm.transcript[len(mm.transcript)-1]
	assert.Equal(t, entrySystem, last.kind)
	assert.Contains(t, last.text, "closed")
	reply := mm.transcript[len(mm.transcript)-2]
	assert.Equal(t, entryAgent, reply.kind)
}

func TestQuitKeys(t *testing.T) {
	m := newTestModel(t, defaultStub())

	_, cmd := update(m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	_, cmd = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestHistoryToggle(t *testing.T) {
	eng := defaultStub()
	eng.history = []types.RoutingRecord{
		{AgentID: "account", Confidence: 0.71, Intent: "password_reset", At: time.Now()},
	}
	m := newTestModel(t, eng)
	require.False(t, m.showHistory)
	baseHeight := m.viewport.Height

	got, _ := update(m, tea.KeyMsg{Type: tea.KeyCtrlR})
	mm := got.(Model)
	assert.True(t, mm.showHistory)
	assert.Less(t, mm.viewport.Height, baseHeight, "history pane should shrink the transcript")
	assert.Contains(t, mm.historyTable.View(), "account")

	got, _ = update(mm, tea.KeyMsg{Type: tea.KeyCtrlR})
	mm = got.(Model)
	assert.False(t, mm.showHistory)
	assert.Equal(t, baseHeight, mm.viewport.Height)
}

func TestClearResetsTranscript(t *testing.T) {
	m := newTestModel(t, defaultStub())
	m.transcript = append(m.transcript,
		entry{kind: entryUser, text: "hello"},
		entry{kind: entryAgent, agent: "Shipping", text: "hi"},
	)

	got, _ := update(m, tea.KeyMsg{Type: tea.KeyCtrlL})
	mm := got.(Model)

	require.Len(t, mm.transcript, 1)
	assert.Equal(t, entrySystem, mm.transcript[0].kind)
}

func TestSlashCommands(t *testing.T) {
	t.Run("quit", func(t *testing.T) {
		m := newTestModel(t, defaultStub())
		m.input.SetValue("/quit")
		_, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	})

	t.Run("history", func(t *testing.T) {
		m := newTestModel(t, defaultStub())
		m.input.SetValue("/history")
		got, _ := update(m, tea.KeyMsg{Type: tea.KeyEnter})
		assert.True(t, got.(Model).showHistory)
	})

	t.Run("clear", func(t *testing.T) {
		m := newTestModel(t, defaultStub())
		m.transcript = append(m.transcript, entry{kind: entryUser, text: "hello"})
		m.input.SetValue("/clear")
		got, _ := update(m, tea.KeyMsg{Type: tea.KeyEnter})
		assert.Len(t, got.(Model).transcript, 1)
	})

	t.Run("unknown", func(t *testing.T) {
		m := newTestModel(t, defaultStub())
		m.input.SetValue("/frobnicate")
		got, _ := update(m, tea.KeyMsg{Type: tea.KeyEnter})
		mm := got.(Model)
		last := mm.transcript[len(mm.transcript)-1]
		assert.Equal(t, entrySystem, last.kind)
		assert.Contains(t, last.text, "Unknown command")
		assert.False(t, mm.busy)
	})
}

func TestTypingReachesInput(t *testing.T) {
	m := newTestModel(t, defaultStub())

	got, _ := update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("hi")})
	mm := got.(Model)

	assert.Equal(t, "hi", mm.input.Value())
}

func TestMetaLine(t *testing.T) {
	res := &types.RoutingResult{
		Basis:          types.BasisEvaluation,
		Confidence:     0.82,
		Intent:         "order_status",
		ContextUsed:    true,
		ProcessingTime: 2 * time.Millisecond,
	}
	assert.Equal(t, "evaluation · 0.82 · intent order_status · context · 2ms", metaLine(res))

	bare := &types.RoutingResult{
		Basis:          types.BasisContinuity,
		Confidence:     0.85,
		ProcessingTime: 900 * time.Microsecond,
	}
	assert.Equal(t, "continuity · 0.85 · 1ms", metaLine(bare))
}

func TestAgentNameFallsBackToID(t *testing.T) {
	m := newTestModel(t, defaultStub())

	assert.Equal(t, "Account Support", m.agentName("account"))
	assert.Equal(t, "ghost", m.agentName("ghost"))
}

func TestHistoryTableOrdersNewestFirst(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	records := []types.RoutingRecord{
		{AgentID: "account", Confidence: 0.71, Intent: "password_reset", At: at},
		{AgentID: "shipping", Confidence: 0.92, Intent: "order_status", ContextUsed: true, At: at.Add(time.Minute)},
	}

	view := historyTable(records, lipgloss.NewStyle(), 100).View()

	assert.Contains(t, view, "shipping")
	assert.Contains(t, view, "account")
	assert.Contains(t, view, "0.92")
	assert.Contains(t, view, "yes")
	assert.Less(t, strings.Index(view, "shipping"), strings.Index(view, "account"),
		"newest record should be listed first")
}

func TestEmptyHistoryTableRenders(t *testing.T) {
	view := emptyHistoryTable().View()

	assert.Contains(t, view, "Agent")
	assert.Contains(t, view, "Conf")
}

func TestRenderMarkdown(t *testing.T) {
	out := renderMarkdown("**Order #482193** has shipped.", "dark", 60)
	assert.Contains(t, out, "Order #482193")
	assert.Contains(t, out, "has shipped")

	assert.Equal(t, "", renderMarkdown("   ", "dark", 60))
}

func TestKeyMapHelp(t *testing.T) {
	k := DefaultKeyMap()

	assert.Len(t, k.ShortHelp(), 4)
	assert.Len(t, k.FullHelp(), 3)
}

func TestViewBeforeReady(t *testing.T) {
	m := newModel(Config{Engine: defaultStub(), SessionID: "s"})

	assert.Contains(t, view(m), "Starting")
}

func TestViewRendersFrame(t *testing.T) {
	m := newTestModel(t, defaultStub())

	frame := view(m)
	assert.Contains(t, frame, "switchboard")
	assert.Contains(t, frame, "session test")

	m.showHistory = true
	m.refreshHistory()
	frame = view(m)
	assert.Contains(t, frame, "Routing history")
}