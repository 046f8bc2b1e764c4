package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HeaderState is what the header shows about the last refresh.
type HeaderState struct {
	Repository string
	Workflows  int
	Failing    int
	Loading    bool
	LastError  string
}

func renderHeader(h HeaderState, ticker Ticker, spin string, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("ALL GREEN")
	statusIcon := "✅"
	switch {
	case ticker.LastTick().IsZero():
		statusText = theme.StatusQueued.Render("LOADING")
		statusIcon = "…"
	case h.LastError != "":
		statusText = theme.StatusFailed.Render("UNREACHABLE")
		statusIcon = "🔌"
	case h.Failing > 0:
		statusText = theme.StatusFailed.Render(fmt.Sprintf("%d FAILING", h.Failing))
		statusIcon = "⚠️"
	}

	lastRefresh := "never"
	if !ticker.LastTick().IsZero() {
		lastRefresh = fmt.Sprintf("%s ago", time.Since(ticker.LastTick()).Round(time.Second))
	}

	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(time.Now().UTC().Format("15:04:05 UTC"))
	titleText := fmt.Sprintf(" MONITOR RELAY WATCH %s", tickerStr)

	titleWidth := lipgloss.Width(titleText)
	clockWidth := lipgloss.Width(clock)
	pad := innerWidth - titleWidth - clockWidth - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s %s  Repo: %s  Workflows: %d",
		statusIcon, statusText,
		theme.Header.Render(h.Repository),
		h.Workflows,
	)

	activity := ""
	if h.Loading {
		activity = spin + " refreshing"
	}
	activityLine := fmt.Sprintf(" Last refresh: %s %s", lastRefresh, activity)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		activityLine,
	)

	return theme.Border.Width(innerWidth).Render(content)
}
