package ui

import "github.com/charmbracelet/lipgloss"

// Theme is the color palette for the chat TUI. Colors are hex strings for
// lipgloss.Color compatibility.
type Theme struct {
	Name string

	Foreground string
	Border     string

	Primary   string
	Secondary string
	Success   string
	Warning   string
	Error     string
	Muted     string

	// GlamourStyle is the glamour theme used for markdown replies.
	GlamourStyle string
}

// ThemeDefault is a dark palette tuned for readability on common terminals.
var ThemeDefault = Theme{
	Name: "default",

	Foreground: "#d4d4d4",
	Border:     "#3e3e42",

	Primary:   "#007acc",
	Secondary: "#9cdcfe",
	Success:   "#4ec9b0",
	Warning:   "#dcdcaa",
	Error:     "#f48771",
	Muted:     "#6a737d",

	GlamourStyle: "dark",
}

// Styles holds the pre-computed lipgloss styles for every UI region, so the
// view functions never build styles per frame.
type Styles struct {
	theme Theme

	// Header is the top title bar.
	Header lipgloss.Style

	// Footer is the bottom status and help bar.
	Footer lipgloss.Style

	// UserLabel prefixes messages typed by the user.
	UserLabel lipgloss.Style

	// AgentLabel prefixes agent replies; the agent name is rendered with it.
	AgentLabel lipgloss.Style

	// Meta renders the routing metadata line under each reply.
	Meta lipgloss.Style

	// System renders engine notices (no selection, conversation closed).
	System lipgloss.Style

	// ErrorText renders failed-turn notices.
	ErrorText lipgloss.Style

	// InputBox frames the textarea.
	InputBox lipgloss.Style

	// HistoryTitle heads the routing history pane.
	HistoryTitle lipgloss.Style

	// HistoryBase is the base style handed to the history table.
	HistoryBase lipgloss.Style

	// Spinner colors the in-flight indicator.
	Spinner lipgloss.Style
}

// NewStyles pre-computes all styles from a theme.
func NewStyles(theme Theme) Styles {
	s := Styles{theme: theme}

	s.Header = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Primary)).
		Bold(true).
		Padding(0, 1)

	s.Footer = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Muted)).
		Padding(0, 1)

	s.UserLabel = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Success)).
		Bold(true)

	s.AgentLabel = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Secondary)).
		Bold(true)

	s.Meta = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Muted))

	s.System = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Warning))

	s.ErrorText = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Error))

	s.InputBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.Border)).
		Padding(0, 1)

	s.HistoryTitle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Primary)).
		Bold(true).
		Padding(0, 1)

	s.HistoryBase = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Foreground)).
		BorderForeground(lipgloss.Color(theme.Border))

	s.Spinner = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Primary))

	return s
}
