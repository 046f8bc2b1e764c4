package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/monitor-relay/internal/relay"
)

const fetchTimeout = 30 * time.Second

// refreshMsg carries the generation it was scheduled for so a manual refresh
// does not leave a second timer chain running.
type refreshMsg struct{ gen int }

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	fetch      StatusFunc
	every      time.Duration
	repository string
	workflows  int

	width  int
	height int

	// State
	statuses  []relay.WorkflowStatus
	loading   bool
	gen       int
	lastError string

	// Live indicators
	ticker  Ticker
	spinner spinner.Model

	// UI state
	theme Theme
	table table.Model
}

// New creates a new watch TUI model that refreshes every interval.
func New(fetch StatusFunc, every time.Duration, repository string, workflows int) *Model {
	theme := NewDefaultTheme()
	return &Model{
		fetch:      fetch,
		every:      every,
		repository: repository,
		workflows:  workflows,
		loading:    true,
		ticker:     NewTicker(),
		spinner:    newSpinner(theme),
		theme:      theme,
		table:      newWorkflowTable(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchStatuses(m.fetch, fetchTimeout),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			return m, tea.Batch(fetchStatuses(m.fetch, fetchTimeout), m.spinner.Tick)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(m.width - 6)
		if h := m.height - 12; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case statusesMsg:
		m.statuses = msg
		m.table.SetRows(tableRows(m.statuses))
		m.lastError = ""
		m.ticker.Tick()
		return m.scheduleRefresh()

	case errMsg:
		m.lastError = msg.Error()
		return m.scheduleRefresh()

	case refreshMsg:
		if msg.gen != m.gen || m.loading {
			return m, nil
		}
		m.loading = true
		return m, tea.Batch(fetchStatuses(m.fetch, fetchTimeout), m.spinner.Tick)

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) scheduleRefresh() (tea.Model, tea.Cmd) {
	m.loading = false
	m.gen++
	if m.every <= 0 {
		return m, nil
	}
	gen := m.gen
	return m, tea.Tick(m.every, func(time.Time) tea.Msg { return refreshMsg{gen: gen} })
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading workflow status..."
	}

	header := renderHeader(HeaderState{
		Repository: m.repository,
		Workflows:  m.workflows,
		Failing:    countFailing(m.statuses),
		Loading:    m.loading,
		LastError:  m.lastError,
	}, m.ticker, m.spinner.View(), m.theme, m.width)

	body := m.theme.Border.Width(m.width - 4).Render(m.table.View())

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(fmt.Sprintf(" [q] Quit • [r] Refresh • [↑/↓] Navigate • auto-refresh %s", m.every))

	parts := []string{header, body}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
