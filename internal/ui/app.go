package ui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Config holds the options for starting the chat TUI.
type Config struct {
	// Engine is the routing engine the chat drives. Required.
	Engine Engine

	// SessionID scopes the conversation. Required so the history pane and
	// the engine agree on the session.
	SessionID string
}

// New builds the Bubble Tea program for the chat UI.
func New(cfg Config) (*tea.Program, error) {
	if cfg.Engine == nil {
		return nil, errors.New("ui: engine is required")
	}
	if cfg.SessionID == "" {
		return nil, errors.New("ui: session id is required")
	}

	m := newModel(cfg)
	return tea.NewProgram(m, tea.WithAltScreen()), nil
}

// Run starts the chat UI and blocks until it exits.
func Run(cfg Config) error {
	prog, err := New(cfg)
	if err != nil {
		return err
	}
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("chat ui: %w", err)
	}
	return nil
}

func newModel(cfg Config) Model {
	ti := textarea.New()
	ti.Placeholder = "Ask about your account, an order, or a store... (enter to send)"
	ti.Focus()
	ti.CharLimit = 2000
	ti.SetHeight(1)
	ti.ShowLineNumbers = false
	ti.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(0, 0)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	h := help.New()

	styles := NewStyles(ThemeDefault)
	sp.Style = styles.Spinner

	m := Model{
		styles:       styles,
		keys:         DefaultKeyMap(),
		viewport:     vp,
		input:        ti,
		spin:         sp,
		help:         h,
		historyTable: emptyHistoryTable(),
		engine:       cfg.Engine,
		sessionID:    cfg.SessionID,
	}
	m.transcript = append(m.transcript, welcomeEntry(cfg.Engine))

	return m
}

// welcomeEntry builds the opening system message listing the registered
// agents, mirroring the suggested actions a caller gets on a missed route.
func welcomeEntry(engine Engine) entry {
	text := "Connected. Type a message to get routed."
	if agents := engine.Agents(); len(agents) > 0 {
		text += " Available services:"
		for _, a := range agents {
			text += fmt.Sprintf("\n  %s: %s", a.Name(), a.Description())
		}
	}
	return entry{kind: entrySystem, text: text}
}
