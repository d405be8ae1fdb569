package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/monica/internal/budget"
	"github.com/ShayCichocki/monica/internal/events"
	"github.com/ShayCichocki/monica/pkg/models"
)

// DefaultRefreshRate is how often the dashboard re-reads the state database.
const DefaultRefreshRate = 2 * time.Second

// DefaultLedgerLimit is the number of ledger entries shown.
const DefaultLedgerLimit = 50

// Source is the read side of the state database the dashboard polls.
type Source interface {
	ListSuggestions(response *models.SuggestionResponse) ([]models.SuggestionRecord, error)
	ListEntries(kind *models.OutcomeKind, limit int) ([]models.LedgerEntry, error)
}

// BudgetReporter reports the current period's model spend.
type BudgetReporter interface {
	Usage() budget.Usage
}

// Config configures a Dashboard.
type Config struct {
	Source Source
	// Budget is optional; without it the gauge is hidden.
	Budget BudgetReporter
	// Events is optional; it feeds the live event log.
	Events      <-chan events.Event
	RefreshRate time.Duration
	LedgerLimit int
	Location    *time.Location
}

// Snapshot is one read of the state database.
type Snapshot struct {
	Usage   *budget.Usage
	Pending []models.SuggestionRecord
	Ledger  []models.LedgerEntry
	Err     error
	At      time.Time
}

// LoadSnapshot reads everything the dashboard shows.
func LoadSnapshot(src Source, guard BudgetReporter, ledgerLimit int) Snapshot {
	snap := Snapshot{At: time.Now()}
	if guard != nil {
		u := guard.Usage()
		snap.Usage = &u
	}

	pending := models.ResponsePending
	recs, err := src.ListSuggestions(&pending)
	if err != nil {
		snap.Err = fmt.Errorf("list suggestions: %w", err)
		return snap
	}
	snap.Pending = recs

	entries, err := src.ListEntries(nil, ledgerLimit)
	if err != nil {
		snap.Err = fmt.Errorf("list ledger: %w", err)
		return snap
	}
	snap.Ledger = entries
	return snap
}

// SnapshotMsg carries a fresh Snapshot into the model.
type SnapshotMsg struct {
	Snapshot Snapshot
}

// EventMsg carries one engine event into the model.
type EventMsg struct {
	Event events.Event
}

type refreshMsg struct{}

type eventsClosedMsg struct{}

// Dashboard is the bubbletea model for the operator dashboard.
type Dashboard struct {
	cfg Config

	header      *Header
	tabs        TabBar
	suggestions table.Model
	ledger      table.Model
	logs        *LogsPanel

	width    int
	height   int
	last     Snapshot
	loaded   bool
	ticking  bool
	quitting bool

	errorStyle lipgloss.Style
	helpStyle  lipgloss.Style
}

// NewDashboard creates a Dashboard.
func NewDashboard(cfg Config) *Dashboard {
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = DefaultRefreshRate
	}
	if cfg.LedgerLimit <= 0 {
		cfg.LedgerLimit = DefaultLedgerLimit
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	d := &Dashboard{
		cfg:         cfg,
		header:      NewHeader(),
		tabs:        NewTabBar(),
		suggestions: newSuggestionsTable(),
		ledger:      newLedgerTable(),
		logs:        NewLogsPanel(),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
	d.focusActive()
	return d
}

// Init implements tea.Model.
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.load(), d.waitForEvent())
}

func (d *Dashboard) load() tea.Cmd {
	src, guard, limit := d.cfg.Source, d.cfg.Budget, d.cfg.LedgerLimit
	return func() tea.Msg {
		return SnapshotMsg{Snapshot: LoadSnapshot(src, guard, limit)}
	}
}

func (d *Dashboard) scheduleRefresh() tea.Cmd {
	return tea.Tick(d.cfg.RefreshRate, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (d *Dashboard) waitForEvent() tea.Cmd {
	ch := d.cfg.Events
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// Update implements tea.Model.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			d.quitting = true
			return d, tea.Quit
		case "r":
			return d, d.load()
		case "tab", "shift+tab", "1", "2", "3":
			d.tabs, _ = d.tabs.Update(msg)
			d.focusActive()
			return d, nil
		}
		return d, d.updateActive(msg)

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.layout()
		return d, nil

	case refreshMsg:
		d.ticking = false
		return d, d.load()

	case SnapshotMsg:
		d.applySnapshot(msg.Snapshot)
		// Only one refresh timer runs however many loads are in flight.
		if d.ticking {
			return d, nil
		}
		d.ticking = true
		return d, d.scheduleRefresh()

	case EventMsg:
		d.logs.AddLog(EntryFromEvent(msg.Event))
		d.tabs.SetCount(TabIndexEvents, d.logs.LogCount())
		// Engine activity usually changes what the tables show.
		return d, tea.Batch(d.waitForEvent(), d.load())

	case eventsClosedMsg:
		d.cfg.Events = nil
		return d, nil
	}

	return d, nil
}

func (d *Dashboard) applySnapshot(snap Snapshot) {
	d.last = snap
	d.loaded = true
	if snap.Err != nil {
		return
	}
	d.header.SetUsage(snap.Usage)
	d.suggestions.SetRows(suggestionRows(snap.Pending, d.cfg.Location))
	d.ledger.SetRows(ledgerRows(snap.Ledger, d.cfg.Location))
	d.tabs.SetCount(TabIndexSuggestions, len(snap.Pending))
	d.tabs.SetCount(TabIndexLedger, len(snap.Ledger))
	d.layout()
}

func (d *Dashboard) updateActive(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch d.tabs.Active() {
	case TabIndexSuggestions:
		d.suggestions, cmd = d.suggestions.Update(msg)
	case TabIndexLedger:
		d.ledger, cmd = d.ledger.Update(msg)
	case TabIndexEvents:
		d.logs, cmd = d.logs.Update(msg)
	}
	return cmd
}

func (d *Dashboard) focusActive() {
	d.suggestions.Blur()
	d.ledger.Blur()
	d.logs.SetFocused(false)

	switch d.tabs.Active() {
	case TabIndexSuggestions:
		d.suggestions.Focus()
	case TabIndexLedger:
		d.ledger.Focus()
	case TabIndexEvents:
		d.logs.SetFocused(true)
	}
}

// layout sizes the panels to the terminal.
func (d *Dashboard) layout() {
	if d.width == 0 || d.height == 0 {
		return
	}
	d.header.SetWidth(d.width)

	// tab bar (2) and help line (2)
	body := d.height - d.header.Height() - 4
	if body < 3 {
		body = 3
	}
	d.suggestions.SetWidth(d.width)
	d.suggestions.SetHeight(body)
	d.ledger.SetWidth(d.width)
	d.ledger.SetHeight(body)
	d.logs.SetSize(d.width, body)
}

// View implements tea.Model.
func (d *Dashboard) View() string {
	if d.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(d.header.View())
	b.WriteString("\n")
	b.WriteString(d.tabs.View())
	b.WriteString("\n")

	switch {
	case !d.loaded:
		b.WriteString(d.helpStyle.Render("  Loading..."))
	case d.last.Err != nil:
		b.WriteString(d.errorStyle.Render(fmt.Sprintf("Error: %v", d.last.Err)))
	default:
		switch d.tabs.Active() {
		case TabIndexSuggestions:
			b.WriteString(d.suggestions.View())
		case TabIndexLedger:
			b.WriteString(d.ledger.View())
		case TabIndexEvents:
			b.WriteString(d.logs.View())
		}
	}

	b.WriteString("\n\n")
	help := "1-3/tab switch  r refresh  q quit"
	if d.tabs.Active() == TabIndexEvents {
		help += "  f filter  g/G top/bottom"
	}
	if d.loaded {
		help += "  updated " + d.last.At.In(d.cfg.Location).Format("15:04:05")
	}
	b.WriteString(d.helpStyle.Render(help))
	b.WriteString("\n")
	return b.String()
}

// NewProgram creates a bubbletea program for the dashboard.
func NewProgram(cfg Config) (*tea.Program, *Dashboard) {
	d := NewDashboard(cfg)
	return tea.NewProgram(d, tea.WithAltScreen()), d
}
