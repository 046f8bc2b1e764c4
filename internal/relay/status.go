package relay

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/monitor-relay/internal/github"
)

// Operator-facing messages.
const (
	MessageAlive            = "✅ monitor-relay is alive."
	MessageTriggerStarting  = "🚀 Triggering monitor workflows..."
	MessageTriggerSucceeded = "✅ All monitor workflows triggered."
	MessageTriggerFailed    = "❌ Failed to trigger monitor workflows. Check the relay logs."
	MessageStatusFailed     = "❌ Failed to fetch workflow status. Check the relay logs."
	NoRunsYet               = "no runs yet"
)

const reportTimeLayout = "2006-01-02 15:04:05 UTC"

// MaxReportRunes leaves room under Telegram's 4096-rune message limit for the
// overflow marker.
const MaxReportRunes = 4000

// WorkflowStatus pairs a workflow with its latest run. Run is nil when the
// workflow has never run.
type WorkflowStatus struct {
	Workflow Workflow
	Run      *github.Run
}

// CollectStatuses queries the latest run of every workflow concurrently.
// Results keep the order of workflows. Any failure fails the whole call.
func CollectStatuses(ctx context.Context, gw Gateway, workflows []Workflow) ([]WorkflowStatus, error) {
	statuses := make([]WorkflowStatus, len(workflows))
	g, gctx := errgroup.WithContext(ctx)

	for i, wf := range workflows {
		g.Go(func() error {
			run, err := gw.LatestRun(gctx, wf.ID)
			if err != nil {
				return fmt.Errorf("latest run for %s: %w", wf.ID, err)
			}
			statuses[i] = WorkflowStatus{Workflow: wf, Run: run}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

// State returns the conclusion of a completed run, otherwise its status.
func (s WorkflowStatus) State() string {
	if s.Run == nil {
		return NoRunsYet
	}
	if s.Run.Completed() && s.Run.Conclusion != "" {
		return s.Run.Conclusion
	}
	return s.Run.Status
}

// FormatReport renders exactly one HTML line per workflow in the given order.
// Lines are dropped from the end, never cut, to fit MaxReportRunes.
func FormatReport(statuses []WorkflowStatus) string {
	lines := make([]string, 0, len(statuses))
	size := 0
	for i, s := range statuses {
		line := formatLine(s)
		n := utf8.RuneCountInString(line) + 1
		if size+n > MaxReportRunes {
			lines = append(lines, fmt.Sprintf("… %d more", len(statuses)-i))
			break
		}
		lines = append(lines, line)
		size += n
	}
	return strings.Join(lines, "\n")
}

func formatLine(s WorkflowStatus) string {
	label := html.EscapeString(s.Workflow.Label)
	if s.Run == nil {
		return fmt.Sprintf("• <b>%s</b>: %s", label, NoRunsYet)
	}
	return fmt.Sprintf("• <b>%s</b>: %s · %s · %s",
		label,
		html.EscapeString(s.State()),
		html.EscapeString(s.Run.Event),
		FormatTime(s.Run.CreatedAt),
	)
}

// FormatTime renders t in UTC with an explicit zone suffix.
func FormatTime(t time.Time) string {
	return t.UTC().Format(reportTimeLayout)
}
