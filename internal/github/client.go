// Package github triggers GitHub Actions workflows and reads their latest runs.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxErrorBody = 4 * 1024

// Client talks to the Actions REST API for one repository and ref.
type Client struct {
	apiBase    string
	token      string
	repository string // owner/name
	ref        string
	httpClient *http.Client
}

// NewClient returns a client for one repository, dispatching workflows on ref.
func NewClient(apiBase, token, repository, ref string, requestTimeout time.Duration) *Client {
	return &Client{
		apiBase:    strings.TrimRight(apiBase, "/"),
		token:      token,
		repository: repository,
		ref:        ref,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// TriggerWorkflow issues a workflow_dispatch for workflowID on the configured ref.
func (c *Client) TriggerWorkflow(ctx context.Context, workflowID string) error {
	body, err := json.Marshal(map[string]string{"ref": c.ref})
	if err != nil {
		return fmt.Errorf("encode dispatch payload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.workflowPath(workflowID)+"/dispatches", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", workflowID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// LatestRun returns the most recent run of workflowID, or nil when it has never run.
func (c *Client) LatestRun(ctx context.Context, workflowID string) (*Run, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.workflowPath(workflowID)+"/runs?per_page=1", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list runs for %s: %w", workflowID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var runs runsResponse
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		return nil, fmt.Errorf("parse runs for %s: %w", workflowID, err)
	}
	if len(runs.WorkflowRuns) == 0 {
		return nil, nil
	}
	run := runs.WorkflowRuns[0]
	return &run, nil
}

func (c *Client) workflowPath(workflowID string) string {
	return fmt.Sprintf("/repos/%s/actions/workflows/%s", c.repository, url.PathEscape(workflowID))
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
