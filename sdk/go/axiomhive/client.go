// Package axiomhive provides a small Go SDK for the AxiomHive REST API.
package axiomhive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the AxiomHive REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// TaskSubmission represents the payload required to create a new task.
type TaskSubmission struct {
	ID           string         `json:"id,omitempty"`
	Description  string         `json:"description"`
	Params       map[string]any `json:"params,omitempty"`
	MaxTokens    int            `json:"max_tokens,omitempty"`
	Temperature  *float64       `json:"temperature,omitempty"`
	OutputFormat string         `json:"output_format,omitempty"`
	TrackUsage   *bool          `json:"track_usage,omitempty"`
}

// ExecutionRecord holds the structured output and per-run accounting of a task.
type ExecutionRecord struct {
	Output           any     `json:"output,omitempty"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
	WithinBudget     bool    `json:"within_budget"`
}

// TaskView is the server side representation of a submitted task.
type TaskView struct {
	ID           string           `json:"id"`
	Description  string           `json:"description"`
	Params       map[string]any   `json:"params,omitempty"`
	MaxTokens    int              `json:"max_tokens"`
	Temperature  float64          `json:"temperature"`
	OutputFormat string           `json:"output_format"`
	TrackUsage   bool             `json:"track_usage"`
	Status       string           `json:"status"`
	LastError    string           `json:"last_error,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	Result       *ExecutionRecord `json:"result,omitempty"`
	CreatedAt    int64            `json:"created_at"`
	UpdatedAt    int64            `json:"updated_at"`
}

// Terminal reports whether the task reached a final state.
func (t TaskView) Terminal() bool {
	return t.Status == "succeeded" || t.Status == "failed"
}

// Stats aggregates task counts by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// UsageSnapshot mirrors the executor's cumulative accounting.
type UsageSnapshot struct {
	TotalTokens      int      `json:"total_tokens"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	EstimatedCost    float64  `json:"estimated_cost"`
	Calls            int      `json:"calls"`
	BudgetLimit      *float64 `json:"budget_limit"`
	BudgetRemaining  *float64 `json:"budget_remaining"`
}

// UsageEvent is a single accounting entry.
type UsageEvent struct {
	Tokens    int     `json:"tokens"`
	Cost      float64 `json:"cost"`
	Label     string  `json:"label,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// UsageSummary bundles the snapshot with the per-call history.
type UsageSummary struct {
	Usage  UsageSnapshot `json:"usage"`
	Events []UsageEvent  `json:"events"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("axiomhive api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("axiomhive api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the AxiomHive API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SubmitTask creates a new task submission.
func (c *Client) SubmitTask(ctx context.Context, submission TaskSubmission) (TaskView, error) {
	var view TaskView
	if err := c.post(ctx, "/api/v1/tasks", nil, submission, &view); err != nil {
		return TaskView{}, err
	}
	return view, nil
}

// GetTask fetches a task by identifier.
func (c *Client) GetTask(ctx context.Context, taskID string) (TaskView, error) {
	var view TaskView
	query := url.Values{"id": []string{taskID}}
	if err := c.get(ctx, "/api/v1/tasks", query, &view); err != nil {
		return TaskView{}, err
	}
	return view, nil
}

// ListTasks returns tasks filtered by the optional status, newest first.
func (c *Client) ListTasks(ctx context.Context, status string, limit int) ([]TaskView, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	var views []TaskView
	if err := c.get(ctx, "/api/v1/tasks", query, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// Stats returns aggregated task counts.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/api/v1/tasks/stats", nil, &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Usage returns the executor's cumulative usage and accounting history.
func (c *Client) Usage(ctx context.Context) (UsageSummary, error) {
	var summary UsageSummary
	if err := c.get(ctx, "/api/v1/usage", nil, &summary); err != nil {
		return UsageSummary{}, err
	}
	return summary, nil
}

// WaitForTask polls the task until it reaches a terminal state or the
// context is cancelled.
func (c *Client) WaitForTask(ctx context.Context, taskID string, interval time.Duration) (TaskView, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		view, err := c.GetTask(ctx, taskID)
		if err != nil {
			return TaskView{}, err
		}
		if view.Terminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return TaskView{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, query url.Values, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, query, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("read error response: %w", readErr)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return &apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
