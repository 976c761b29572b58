package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

func view(m Model) string {
	if !m.ready {
		return "\n  Starting switchboard..."
	}

	var b strings.Builder
	b.WriteString(m.styles.Header.Render(fmt.Sprintf(" switchboard · session %s ", m.sessionID)))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.showHistory {
		b.WriteString(m.styles.HistoryTitle.Render("Routing history"))
		b.WriteString("\n")
		b.WriteString(m.historyTable.View())
		b.WriteString("\n")
	}

	b.WriteString(m.styles.InputBox.Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(renderFooter(m))
	return b.String()
}

func renderFooter(m Model) string {
	if m.busy {
		return m.styles.Footer.Render(m.spin.View() + " routing...")
	}
	return m.styles.Footer.Render(m.help.View(m.keys))
}

// renderTranscript lays out the conversation so far. Agent responses are
// rendered as markdown; everything else is plain styled text.
func renderTranscript(m Model) string {
	if len(m.transcript) == 0 {
		return ""
	}
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}

	blocks := make([]string, 0, len(m.transcript))
	for _, e := range m.transcript {
		blocks = append(blocks, renderEntry(m, e, width))
	}
	return strings.Join(blocks, "\n\n")
}

func renderEntry(m Model, e entry, width int) string {
	switch e.kind {
	case entryUser:
		return m.styles.UserLabel.Render("You") + "\n" + e.text

	case entryAgent:
		block := m.styles.AgentLabel.Render(e.agent) + "\n" +
			renderMarkdown(e.text, m.styles.theme.GlamourStyle, width-2)
		if e.meta != "" {
			block += "\n" + m.styles.Meta.Render(e.meta)
		}
		return block

	case entryError:
		return m.styles.ErrorText.Render(e.text)

	default:
		return m.styles.System.Render(e.text)
	}
}

// renderMarkdown renders agent output through glamour, falling back to
// the raw text when the renderer is unavailable.
func renderMarkdown(content, style string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width < 20 {
		width = 20
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}
