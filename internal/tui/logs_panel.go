package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/monica/internal/events"
)

// LogLevel represents the severity of a log message.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelDebug LogLevel = "DEBUG"
)

// PanelLogEntry represents a single line in the event log.
type PanelLogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Kind      events.Type
	TaskID    string
	Message   string
}

// EntryFromEvent converts an engine event into a log line.
func EntryFromEvent(ev events.Event) PanelLogEntry {
	entry := PanelLogEntry{
		Timestamp: ev.Timestamp,
		Level:     LogLevelInfo,
		Kind:      ev.Type,
		TaskID:    ev.TaskID,
		Message:   ev.Message,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	switch ev.Type {
	case events.CompletionRetryable, events.TickSkipped:
		entry.Level = LogLevelWarn
	case events.CompletionReplayed, events.SuggestionExpired:
		entry.Level = LogLevelDebug
	}
	if ev.Error != nil {
		entry.Level = LogLevelError
		if entry.Message == "" {
			entry.Message = ev.Error.Error()
		} else {
			entry.Message = fmt.Sprintf("%s: %v", entry.Message, ev.Error)
		}
	}
	if entry.Message == "" {
		entry.Message = string(ev.Type)
	}
	return entry
}

// LogsPanel displays a filterable, scrollable event log.
type LogsPanel struct {
	logs          []PanelLogEntry
	filter        string // "all" or an event type
	filterOptions []string
	filterIndex   int
	scrollOffset  int
	autoScroll    bool
	width         int
	height        int
	focused       bool
	maxLogs       int

	titleStyle   lipgloss.Style
	filterStyle  lipgloss.Style
	infoStyle    lipgloss.Style
	warnStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	debugStyle   lipgloss.Style
	timeStyle    lipgloss.Style
	taskStyle    lipgloss.Style
	messageStyle lipgloss.Style
}

// NewLogsPanel creates a new LogsPanel instance.
func NewLogsPanel() *LogsPanel {
	return &LogsPanel{
		filter:        "all",
		filterOptions: []string{"all"},
		autoScroll:    true,
		width:         80,
		height:        20,
		maxLogs:       1000,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1),

		filterStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),

		infoStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),  // Green
		warnStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")), // Orange
		errorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("196")), // Red
		debugStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("244")), // Gray

		timeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		taskStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")),

		messageStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
	}
}

// AddLog adds a new log entry.
func (p *LogsPanel) AddLog(entry PanelLogEntry) {
	p.logs = append(p.logs, entry)

	if len(p.logs) > p.maxLogs {
		p.logs = p.logs[len(p.logs)-p.maxLogs:]
	}

	if entry.Kind != "" {
		p.addFilterOption(string(entry.Kind))
	}

	if p.autoScroll {
		p.scrollToBottom()
	}
}

func (p *LogsPanel) addFilterOption(kind string) {
	for _, opt := range p.filterOptions {
		if opt == kind {
			return
		}
	}
	p.filterOptions = append(p.filterOptions, kind)
}

// SetSize updates the panel dimensions.
func (p *LogsPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	if p.autoScroll {
		p.scrollToBottom()
	}
}

// SetFocused sets whether this panel has keyboard focus.
func (p *LogsPanel) SetFocused(focused bool) {
	p.focused = focused
}

// Update handles input messages.
func (p *LogsPanel) Update(msg tea.Msg) (*LogsPanel, tea.Cmd) {
	if !p.focused {
		return p, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			if p.scrollOffset > 0 {
				p.scrollOffset--
				p.autoScroll = false
			}
		case "down", "j":
			if p.scrollOffset < len(p.filteredLogs())-p.visibleLines() {
				p.scrollOffset++
			}
		case "f":
			p.filterIndex = (p.filterIndex + 1) % len(p.filterOptions)
			p.filter = p.filterOptions[p.filterIndex]
			p.scrollToBottom()
		case "g":
			p.scrollOffset = 0
			p.autoScroll = false
		case "G":
			p.scrollToBottom()
			p.autoScroll = true
		}
	}

	return p, nil
}

func (p *LogsPanel) visibleLines() int {
	lines := p.height - 5 // title, scroll indicator, borders
	if lines < 1 {
		lines = 1
	}
	return lines
}

func (p *LogsPanel) scrollToBottom() {
	p.scrollOffset = len(p.filteredLogs()) - p.visibleLines()
	if p.scrollOffset < 0 {
		p.scrollOffset = 0
	}
}

func (p *LogsPanel) filteredLogs() []PanelLogEntry {
	if p.filter == "all" {
		return p.logs
	}

	var filtered []PanelLogEntry
	for _, entry := range p.logs {
		if string(entry.Kind) == p.filter {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// View renders the logs panel.
func (p *LogsPanel) View() string {
	var b strings.Builder

	b.WriteString(p.titleStyle.Render("Events"))
	filterText := fmt.Sprintf(" [%s]", p.filter)
	if p.autoScroll {
		filterText += " (auto)"
	}
	b.WriteString(p.filterStyle.Render(filterText))
	b.WriteString("\n")

	filtered := p.filteredLogs()
	visible := p.visibleLines()

	if len(filtered) == 0 {
		b.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Render("  No events"))
	} else {
		start := p.scrollOffset
		if start < 0 {
			start = 0
		}
		end := start + visible
		if end > len(filtered) {
			end = len(filtered)
		}

		for i := start; i < end; i++ {
			b.WriteString(p.renderLogLine(filtered[i]))
			b.WriteString("\n")
		}

		if len(filtered) > visible {
			pct := float64(p.scrollOffset) / float64(len(filtered)-visible) * 100
			b.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Render(fmt.Sprintf(" [%d/%d %.0f%%]", end, len(filtered), pct)))
			b.WriteString("\n")
		}
	}

	borderColor := lipgloss.Color("240")
	if p.focused {
		borderColor = lipgloss.Color("63")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Width(max(p.width-2, 1)).
		Height(max(p.height-2, 1)).
		Render(b.String())
}

func (p *LogsPanel) renderLogLine(entry PanelLogEntry) string {
	parts := []string{p.timeStyle.Render(entry.Timestamp.Local().Format("15:04:05"))}

	levelStyle := p.infoStyle
	levelIcon := "I"
	switch entry.Level {
	case LogLevelWarn:
		levelStyle = p.warnStyle
		levelIcon = "W"
	case LogLevelError:
		levelStyle = p.errorStyle
		levelIcon = "E"
	case LogLevelDebug:
		levelStyle = p.debugStyle
		levelIcon = "D"
	}
	parts = append(parts, levelStyle.Render(levelIcon))

	if entry.TaskID != "" {
		parts = append(parts, p.taskStyle.Render("["+truncate(entry.TaskID, 16)+"]"))
	}

	maxMsgLen := p.width - 35
	if maxMsgLen < 20 {
		maxMsgLen = 20
	}
	parts = append(parts, p.messageStyle.Render(truncate(entry.Message, maxMsgLen)))

	return strings.Join(parts, " ")
}

// LogCount returns the total number of logs.
func (p *LogsPanel) LogCount() int {
	return len(p.logs)
}

// FilteredCount returns the number of logs matching the current filter.
func (p *LogsPanel) FilteredCount() int {
	return len(p.filteredLogs())
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
