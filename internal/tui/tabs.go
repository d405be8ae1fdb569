package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Tab index constants.
const (
	TabIndexSuggestions = iota
	TabIndexLedger
	TabIndexEvents
)

var defaultTabs = []string{"Suggestions", "Ledger", "Events"}

// TabBar is a navigation component for switching between panels.
type TabBar struct {
	tabs   []string
	counts []int
	active int

	activeStyle   lipgloss.Style
	inactiveStyle lipgloss.Style
	barStyle      lipgloss.Style
}

// NewTabBar creates a new TabBar with default tabs.
func NewTabBar() TabBar {
	return TabBar{
		tabs:   defaultTabs,
		counts: make([]int, len(defaultTabs)),
		active: TabIndexSuggestions,

		activeStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Background(lipgloss.Color("236")).
			Padding(0, 2),

		inactiveStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Padding(0, 2),

		barStyle: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")),
	}
}

// Update handles keyboard input for tab navigation.
func (t TabBar) Update(msg tea.Msg) (TabBar, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "tab":
			t.active = (t.active + 1) % len(t.tabs)
		case "shift+tab":
			t.active = (t.active - 1 + len(t.tabs)) % len(t.tabs)
		case "1":
			t.SetActive(TabIndexSuggestions)
		case "2":
			t.SetActive(TabIndexLedger)
		case "3":
			t.SetActive(TabIndexEvents)
		}
	}
	return t, nil
}

// View renders the tab bar.
func (t TabBar) View() string {
	var renderedTabs []string

	for i, tab := range t.tabs {
		label := fmt.Sprintf("%d %s (%d)", i+1, tab, t.counts[i])
		if i == t.active {
			renderedTabs = append(renderedTabs, t.activeStyle.Render(label))
		} else {
			renderedTabs = append(renderedTabs, t.inactiveStyle.Render(label))
		}
	}

	return t.barStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...))
}

// SetActive sets the active tab by index, clamped to the valid range.
func (t *TabBar) SetActive(index int) {
	switch {
	case index < 0:
		t.active = 0
	case index >= len(t.tabs):
		t.active = len(t.tabs) - 1
	default:
		t.active = index
	}
}

// SetCount sets the item count shown next to a tab label.
func (t *TabBar) SetCount(index, n int) {
	if index >= 0 && index < len(t.counts) {
		t.counts[index] = n
	}
}

// Active returns the currently active tab index.
func (t TabBar) Active() int {
	return t.active
}

// Tabs returns the list of tab labels.
func (t TabBar) Tabs() []string {
	return t.tabs
}
