package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/monica/pkg/models"
)

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("238")).
		BorderBottom(true).
		Bold(true).
		Foreground(lipgloss.Color("252"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("63")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func newSuggestionsTable() table.Model {
	return newTable([]table.Column{
		{Title: "Task", Width: 28},
		{Title: "Window", Width: 24},
		{Title: "Source", Width: 12},
		{Title: "Score", Width: 6},
		{Title: "Offer", Width: 5},
		{Title: "Offered", Width: 8},
	})
}

func newLedgerTable() table.Model {
	return newTable([]table.Column{
		{Title: "Recorded", Width: 16},
		{Title: "Task", Width: 24},
		{Title: "Outcome", Width: 40},
	})
}

// suggestionRows renders pending suggestions in local time.
func suggestionRows(recs []models.SuggestionRecord, loc *time.Location) []table.Row {
	rows := make([]table.Row, 0, len(recs))
	for _, r := range recs {
		title := r.TaskTitle
		if title == "" {
			title = r.TaskID
		}
		start := r.Window.Start.In(loc)
		end := r.Window.End.In(loc)
		rows = append(rows, table.Row{
			truncate(title, 28),
			fmt.Sprintf("%s %s-%s", start.Format("Mon 02"), start.Format("15:04"), end.Format("15:04")),
			truncate(r.Window.Source, 12),
			fmt.Sprintf("%.2f", r.Score),
			fmt.Sprintf("#%d", r.Seq),
			r.OfferedAt.In(loc).Format("15:04"),
		})
	}
	return rows
}

// ledgerRows renders ledger entries in local time.
func ledgerRows(entries []models.LedgerEntry, loc *time.Location) []table.Row {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, table.Row{
			e.RecordedAt.In(loc).Format("2006-01-02 15:04"),
			truncate(e.TaskID, 24),
			truncate(e.Outcome.String(), 40),
		})
	}
	return rows
}
