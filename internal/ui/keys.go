package ui

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the keyboard shortcuts available in the chat TUI.
// It implements the help.KeyMap interface for automatic help text generation.
type KeyMap struct {
	// Send sends the current input line
	Send key.Binding

	// Quit exits the application
	Quit key.Binding

	// Clear clears the visible transcript
	Clear key.Binding

	// History toggles the routing history pane
	History key.Binding

	// Help toggles the expanded key help
	Help key.Binding

	// PageUp scrolls the transcript up one page
	PageUp key.Binding

	// PageDown scrolls the transcript down one page
	PageDown key.Binding
}

// DefaultKeyMap returns the default keyboard shortcuts.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("ctrl+c", "quit"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "clear transcript"),
		),
		History: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "routing history"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("f1", "help"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
	}
}

// ShortHelp returns the key bindings for the one-line help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.History, k.Help, k.Quit}
}

// FullHelp returns the key bindings for the expanded help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Quit},
		{k.PageUp, k.PageDown},
		{k.History, k.Clear, k.Help},
	}
}
