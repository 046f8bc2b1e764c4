// Package watch implements the monitor-relay workflow dashboard and the
// static status table.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	// Status colors
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusQueued  lipgloss.Style
	StatusNone    lipgloss.Style

	// UI elements
	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	// Indicators
	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusQueued:  lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		StatusNone:    lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		TickerActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}

// StateStyle picks the color for a run state or conclusion.
func (t Theme) StateStyle(state string) lipgloss.Style {
	switch state {
	case "success":
		return t.StatusOK
	case "failure", "timed_out", "startup_failure", "action_required":
		return t.StatusFailed
	case "in_progress":
		return t.StatusRunning
	case "queued", "waiting", "pending", "requested":
		return t.StatusQueued
	default:
		return t.StatusNone
	}
}

// StateIcon is a one-glyph summary of a run state.
func StateIcon(state string) string {
	switch state {
	case "success":
		return "✅"
	case "failure", "timed_out", "startup_failure":
		return "❌"
	case "cancelled", "skipped":
		return "⊘"
	case "in_progress":
		return "▶"
	case "queued", "waiting", "pending", "requested":
		return "…"
	default:
		return "·"
	}
}
