package watch

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/mattjoyce/monitor-relay/internal/relay"
)

// StatusFunc loads the latest run of every workflow.
type StatusFunc func(ctx context.Context) ([]relay.WorkflowStatus, error)

type statusesMsg []relay.WorkflowStatus
type errMsg error

var columnTitles = []string{"ST", "Workflow", "State", "Event", "Created", "Run"}

func fetchStatuses(fetch StatusFunc, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		statuses, err := fetch(ctx)
		if err != nil {
			return errMsg(err)
		}
		return statusesMsg(statuses)
	}
}

func statusRow(s relay.WorkflowStatus) []string {
	state := s.State()
	if s.Run == nil {
		return []string{StateIcon(state), s.Workflow.Label, state, "", "", ""}
	}
	return []string{
		StateIcon(state),
		s.Workflow.Label,
		state,
		s.Run.Event,
		relay.FormatTime(s.Run.CreatedAt),
		s.Run.HTMLURL,
	}
}

func tableRows(statuses []relay.WorkflowStatus) []table.Row {
	rows := make([]table.Row, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, table.Row(statusRow(s)))
	}
	return rows
}

func newWorkflowTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: columnTitles[0], Width: 2},
			{Title: columnTitles[1], Width: 22},
			{Title: columnTitles[2], Width: 12},
			{Title: columnTitles[3], Width: 18},
			{Title: columnTitles[4], Width: 23},
			{Title: columnTitles[5], Width: 50},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func countFailing(statuses []relay.WorkflowStatus) int {
	n := 0
	for _, s := range statuses {
		switch s.State() {
		case "failure", "timed_out", "startup_failure":
			n++
		}
	}
	return n
}

// RenderStatus renders statuses as a bordered table for one-shot output.
func RenderStatus(statuses []relay.WorkflowStatus, theme Theme) string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, statusRow(s))
	}

	t := ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#874BFD"))).
		Headers(columnTitles...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			if row == ltable.HeaderRow {
				return theme.Header.Padding(0, 1)
			}
			if col == 2 && row >= 0 && row < len(statuses) {
				return theme.StateStyle(statuses[row].State()).Padding(0, 1)
			}
			return base
		})

	return t.Render()
}
