package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/noetl/noetl/internal/model"
)

// HTTPAdapter executes kind="http" tasks: config is {method, url, headers,
// payload}. Grounded on the ambient HTTP client wrapper's request/response
// shape, generalized from a fixed-header client into a tool adapter that
// classifies every failure into the outcome error taxonomy (spec §4.8).
type HTTPAdapter struct {
	client *http.Client
}

// NewHTTPAdapter builds an HTTPAdapter with the given per-request timeout.
func NewHTTPAdapter(timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAdapter{client: &http.Client{Timeout: timeout}}
}

// Execute implements Adapter.
func (a *HTTPAdapter) Execute(ctx context.Context, config map[string]any, auth Auth, tc TaskContext) (*model.Outcome, error) {
	started := time.Now()

	url, _ := config["url"].(string)
	if url == "" {
		return errOutcome(model.ErrValidation, "missing or empty url", false, 0, started), nil
	}
	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if payload, ok := config["payload"].(string); ok && payload != "" {
		body = bytes.NewReader([]byte(payload))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return errOutcome(model.ErrValidation, err.Error(), false, 0, started), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}
	for k, v := range authHeaders(auth) {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		kind := model.ErrNetwork
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = model.ErrTimeout
		}
		return errOutcome(kind, err.Error(), true, 0, started), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errOutcome(model.ErrSerializationFailure, err.Error(), true, 0, started), nil
	}

	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		parsed = string(respBody)
	}

	ended := time.Now()
	result, _ := json.Marshal(map[string]any{
		"status_code": resp.StatusCode,
		"body":        parsed,
		"url":         url,
		"method":      method,
	})

	outcome := &model.Outcome{
		Status: model.OutcomeOK,
		Result: result,
		Meta: model.OutcomeMeta{
			Attempt: tc.Attempt, DurationMs: ended.Sub(started).Milliseconds(),
			StartedAt: started, EndedAt: ended,
		},
		HTTP: &model.HTTPOutcome{Status: resp.StatusCode},
	}
	if resp.StatusCode >= 400 {
		outcome.Status = model.OutcomeError
		outcome.Error = &model.OutcomeError{
			Kind:      httpErrorKind(resp.StatusCode),
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == 429,
			Message:   fmt.Sprintf("http %d", resp.StatusCode),
			Code:      fmt.Sprintf("%d", resp.StatusCode),
		}
	}
	return outcome, nil
}

func httpErrorKind(status int) model.ErrorKind {
	switch {
	case status == 401 || status == 403:
		return model.ErrAuth
	case status == 404:
		return model.ErrNotFound
	case status == 429:
		return model.ErrRateLimit
	case status >= 500:
		return model.ErrInternal
	default:
		return model.ErrValidation
	}
}

func authHeaders(auth Auth) map[string]string {
	if auth.CredentialType != "bearer" {
		return nil
	}
	token, ok := auth.Fields["token"]
	if !ok || token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func errOutcome(kind model.ErrorKind, message string, retryable bool, attempt int, started time.Time) *model.Outcome {
	ended := time.Now()
	return &model.Outcome{
		Status: model.OutcomeError,
		Error:  &model.OutcomeError{Kind: kind, Retryable: retryable, Message: message},
		Meta:   model.OutcomeMeta{Attempt: attempt, DurationMs: ended.Sub(started).Milliseconds(), StartedAt: started, EndedAt: ended},
	}
}
