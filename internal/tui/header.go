package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/monica/internal/budget"
)

// Header renders the title bar and the budget gauge.
type Header struct {
	width int
	usage *budget.Usage

	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	statusStyles  map[budget.Status]lipgloss.Style
}

// NewHeader creates a new Header.
func NewHeader() *Header {
	return &Header{
		width: 80,

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		statusStyles: map[budget.Status]lipgloss.Style{
			budget.StatusOK:        lipgloss.NewStyle().Foreground(lipgloss.Color("34")).Bold(true),
			budget.StatusWarning:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
			budget.StatusExhausted: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		},
	}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// SetUsage sets the budget snapshot. Nil hides the gauge.
func (h *Header) SetUsage(u *budget.Usage) {
	h.usage = u
}

// View renders the header.
func (h *Header) View() string {
	colors := []string{"#FF6B6B", "#FF8E53", "#FFC857", "#4ECDC4", "#45B7D1", "#96E6A1"}

	var title strings.Builder
	for i, r := range "monica" {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(colors[i%len(colors)])).Bold(true)
		title.WriteString(style.Render(string(r)))
	}

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Italic(true).
		Render("task chaining & context suggestions")

	lines := []string{title.String() + "  " + subtitle}
	if h.usage != nil {
		lines = append(lines, h.renderBudget(*h.usage))
	}

	return lipgloss.NewStyle().
		Width(h.width).
		PaddingBottom(1).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (h *Header) renderBudget(u budget.Usage) string {
	status := h.statusStyles[u.Status].Render(u.Status.String())
	if u.Cap <= 0 {
		return fmt.Sprintf("%s %s  %s",
			h.labelStyle.Render("Budget "+u.Period+":"),
			h.valueStyle.Render("model calls disabled"),
			status)
	}
	return fmt.Sprintf("%s %s %s  %s",
		h.labelStyle.Render("Budget "+u.Period+":"),
		h.valueStyle.Render(fmt.Sprintf("$%.2f / $%.2f", u.Spent, u.Cap)),
		h.renderProgressBar(u.Percentage*100, 20),
		status)
}

func (h *Header) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	filled := int(pct / 100 * float64(width))
	empty := width - filled

	bar := h.progressFull.Render(strings.Repeat("█", filled)) +
		h.progressEmpty.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("%s %.0f%%", bar, pct)
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	if h.usage != nil {
		return 3
	}
	return 2
}
