package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/northbridge-ai/switchboard/pkg/types"
)

// routeResultMsg delivers a completed routing turn back to the UI loop.
type routeResultMsg struct {
	res *types.RoutingResult
}

// sendCmd runs one engine turn off the UI goroutine.
func sendCmd(engine Engine, sessionID, input string) tea.Cmd {
	return func() tea.Msg {
		res := engine.Process(context.Background(), input, types.Context{SessionID: sessionID})
		return routeResultMsg{res: res}
	}
}

func update(m Model, msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.applyLayout()
		m.viewport.SetContent(renderTranscript(m))
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Send):
			return handleSend(m)

		case key.Matches(msg, m.keys.Clear):
			m.transcript = []entry{welcomeEntry(m.engine)}
			m.viewport.SetContent(renderTranscript(m))
			m.viewport.GotoTop()
			return m, nil

		case key.Matches(msg, m.keys.History):
			m.showHistory = !m.showHistory
			if m.showHistory {
				m.refreshHistory()
			}
			m.applyLayout()
			m.viewport.SetContent(renderTranscript(m))
			return m, nil

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil

		case key.Matches(msg, m.keys.PageUp):
			m.viewport.ViewUp()
			return m, nil

		case key.Matches(msg, m.keys.PageDown):
			m.viewport.ViewDown()
			return m, nil
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case routeResultMsg:
		m.busy = false
		m.transcript = append(m.transcript, m.entriesFor(msg.res)...)
		if m.showHistory {
			m.refreshHistory()
		}
		m.viewport.SetContent(renderTranscript(m))
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleSend submits the input box. Empty input is ignored; a leading
// slash is treated as a command rather than a message.
func handleSend(m Model) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if strings.HasPrefix(text, "/") {
		return handleCommand(m, text)
	}

	m.input.Reset()
	m.transcript = append(m.transcript, entry{kind: entryUser, text: text})
	m.busy = true
	m.viewport.SetContent(renderTranscript(m))
	m.viewport.GotoBottom()
	return m, tea.Batch(m.spin.Tick, sendCmd(m.engine, m.sessionID, text))
}

// handleCommand handles /help, /history, /clear and /quit.
func handleCommand(m Model, input string) (tea.Model, tea.Cmd) {
	m.input.Reset()
	cmd := strings.ToLower(strings.TrimPrefix(strings.Fields(input)[0], "/"))
	switch cmd {
	case "help", "h":
		m.help.ShowAll = !m.help.ShowAll

	case "history", "r":
		m.showHistory = !m.showHistory
		if m.showHistory {
			m.refreshHistory()
		}
		m.applyLayout()
		m.viewport.SetContent(renderTranscript(m))

	case "clear", "c":
		m.transcript = []entry{welcomeEntry(m.engine)}
		m.viewport.SetContent(renderTranscript(m))
		m.viewport.GotoTop()

	case "quit", "q", "exit":
		return m, tea.Quit

	default:
		m.transcript = append(m.transcript, entry{
			kind: entrySystem,
			text: fmt.Sprintf("Unknown command %q. Try /help, /history, /clear or /quit.", "/"+cmd),
		})
		m.viewport.SetContent(renderTranscript(m))
		m.viewport.GotoBottom()
	}
	return m, nil
}

// entriesFor converts a routing result into transcript entries.
func (m Model) entriesFor(res *types.RoutingResult) []entry {
	if !res.Success {
		return []entry{{kind: entryError, text: res.Response}}
	}
	if !res.Selected() {
		text := res.Response
		for _, action := range res.SuggestedActions {
			text += fmt.Sprintf("\n  %s: %s", action.Name, action.Description)
		}
		return []entry{{kind: entrySystem, text: text}}
	}

	out := []entry{{
		kind:  entryAgent,
		agent: m.agentName(res.SelectedAgent),
		text:  res.Response,
		meta:  metaLine(res),
	}}
	if res.ConversationEnded {
		out = append(out, entry{kind: entrySystem, text: "The agent closed this conversation. Your next message starts a fresh one."})
	}
	return out
}

// metaLine summarizes how a turn was routed, e.g.
// "continuity · 0.85 · intent order_status · context · 2ms".
func metaLine(res *types.RoutingResult) string {
	parts := []string{string(res.Basis), fmt.Sprintf("%.2f", res.Confidence)}
	if res.Intent != "" {
		parts = append(parts, "intent "+res.Intent)
	}
	if res.ContextUsed {
		parts = append(parts, "context")
	}
	parts = append(parts, res.ProcessingTime.Round(time.Millisecond).String())
	return strings.Join(parts, " · ")
}

// agentName resolves an agent ID to its display name.
func (m Model) agentName(id string) string {
	for _, a := range m.engine.Agents() {
		if a.ID() == id {
			return a.Name()
		}
	}
	return id
}

// refreshHistory rebuilds the routing history pane from the engine.
func (m *Model) refreshHistory() {
	m.historyTable = historyTable(m.engine.SessionHistory(m.sessionID), m.styles.HistoryBase, m.width)
}

// applyLayout distributes the terminal height between the transcript,
// the optional history pane, the input box and the footer.
func (m *Model) applyLayout() {
	historyHeight := 0
	if m.showHistory {
		historyHeight = historyPaneHeight
	}

	// Header and footer take one line each, the bordered input three.
	m.viewport.Width = m.width
	m.viewport.Height = m.height - 1 - 3 - 1 - historyHeight - 1
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}

	m.input.SetWidth(m.width - 4)
	m.help.Width = m.width
	if m.showHistory && m.width > 0 {
		m.historyTable = m.historyTable.WithTargetWidth(m.width)
	}
}
