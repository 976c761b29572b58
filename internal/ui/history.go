package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"

	"github.com/northbridge-ai/switchboard/pkg/types"
)

// Routing history pane column keys.
const (
	columnAgent      = "agent"
	columnIntent     = "intent"
	columnConfidence = "conf"
	columnContext    = "ctx"
	columnAt         = "time"
)

// historyPageSize is how many records the pane shows at once.
const historyPageSize = 6

// historyPaneHeight is the vertical space the pane consumes: title line,
// table borders and header, plus one line per visible record.
const historyPaneHeight = historyPageSize + 6

func historyColumns() []table.Column {
	return []table.Column{
		table.NewFlexColumn(columnAgent, "Agent", 2),
		table.NewFlexColumn(columnIntent, "Intent", 2),
		table.NewColumn(columnConfidence, "Conf", 6),
		table.NewColumn(columnContext, "Ctx", 5),
		table.NewColumn(columnAt, "Time", 10),
	}
}

// emptyHistoryTable is the pane before any turn has completed. Flex columns
// need a target width to lay out; the real width arrives with the first
// WindowSizeMsg.
func emptyHistoryTable() table.Model {
	return table.New(historyColumns()).
		WithFooterVisibility(false).
		WithPageSize(historyPageSize).
		WithTargetWidth(80)
}

// historyTable renders routing records newest-first into the pane.
func historyTable(records []types.RoutingRecord, base lipgloss.Style, width int) table.Model {
	rows := make([]table.Row, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		ctx := ""
		if r.ContextUsed {
			ctx = "yes"
		}
		rows = append(rows, table.NewRow(table.RowData{
			columnAgent:      r.AgentID,
			columnIntent:     r.Intent,
			columnConfidence: fmt.Sprintf("%.2f", r.Confidence),
			columnContext:    ctx,
			columnAt:         r.At.Format("15:04:05"),
		}))
	}

	if width <= 0 {
		width = 80
	}
	return table.New(historyColumns()).
		WithRows(rows).
		WithBaseStyle(base).
		WithFooterVisibility(false).
		WithPageSize(historyPageSize).
		WithTargetWidth(width)
}
