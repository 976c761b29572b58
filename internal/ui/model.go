// Package ui provides the Bubble Tea chat front-end for the switchboard
// routing engine. It renders a transcript viewport, a textarea input, a
// spinner while a turn is in flight, and a toggleable routing history pane.
package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/evertras/bubble-table/table"

	"github.com/northbridge-ai/switchboard/pkg/types"
)

// Engine is the slice of the routing engine the TUI drives. The orchestrator
// satisfies it directly; tests substitute a scripted stub.
type Engine interface {
	// Process routes one turn and returns its outcome. It may block on the
	// selected agent's handler.
	Process(ctx context.Context, input string, tc types.Context) *types.RoutingResult

	// SessionHistory returns the routing records for a session, oldest first.
	SessionHistory(id string) []types.RoutingRecord

	// Agents lists the registered agents in registration order.
	Agents() []types.Agent
}

// entryKind classifies a transcript line for styling.
type entryKind int

const (
	entryUser entryKind = iota
	entryAgent
	entrySystem
	entryError
)

// entry is one rendered block in the transcript.
type entry struct {
	kind entryKind

	// agent is the display name for agent entries.
	agent string

	// text is the body; agent entries render it through glamour.
	text string

	// meta is the routing metadata line shown under agent entries.
	meta string
}

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	// Terminal dimensions; ready flips after the first WindowSizeMsg.
	width  int
	height int
	ready  bool

	styles Styles
	keys   KeyMap

	// Transcript state.
	transcript []entry
	viewport   viewport.Model

	// Input and in-flight state.
	input textarea.Model
	spin  spinner.Model
	busy  bool

	help help.Model

	// Routing history pane.
	showHistory  bool
	historyTable table.Model

	engine    Engine
	sessionID string
}

// Init starts the input cursor blink. It implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles one message. It implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	return update(m, msg)
}

// View renders the full frame. It implements tea.Model.
func (m Model) View() string {
	return view(m)
}
