package github

import (
	"fmt"
	"time"
)

// Run is the projection of a workflow run the relay reports on.
type Run struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`     // queued, in_progress, completed, ...
	Conclusion string    `json:"conclusion"` // success, failure, cancelled, ... once completed
	Event      string    `json:"event"`
	CreatedAt  time.Time `json:"created_at"`
	HTMLURL    string    `json:"html_url"`
}

// Completed reports whether the run reached a terminal state.
func (r *Run) Completed() bool {
	return r.Status == "completed"
}

type runsResponse struct {
	TotalCount   int   `json:"total_count"`
	WorkflowRuns []Run `json:"workflow_runs"`
}

// APIError is returned for any non-success response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GitHub API returned %d: %s", e.StatusCode, e.Body)
}
