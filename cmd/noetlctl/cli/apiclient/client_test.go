package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRunPlaybookDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/run/playbook", r.URL.Path)
		var req RunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "playbooks/foo.yaml", req.Path)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(RunResponse{ExecutionID: 42, Status: "running"})
	}))
	defer srv.Close()

	client := New(srv.URL)
	resp, err := client.RunPlaybook(context.Background(), RunRequest{Path: "playbooks/foo.yaml"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), resp.ExecutionID)
	assert.Equal(t, "running", resp.Status)
}

func TestClientGetExecutionNotFoundReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("execution not found"))
	}))
	defer srv.Close()

	client := New(srv.URL)
	_, err := client.GetExecution(context.Background(), 7)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestExecutionResponseTerminal(t *testing.T) {
	for status, want := range map[string]bool{
		"running":   false,
		"pending":   false,
		"done":      true,
		"failed":    true,
		"cancelled": true,
	} {
		exec := &ExecutionResponse{}
		exec.Workflow.Status = status
		assert.Equal(t, want, exec.Terminal(), "status=%s", status)
	}
}

func TestClientCancelExecutionSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/cancel/5", r.URL.Path)
		var req CancelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user requested", req.Reason)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"cancelled":1}`))
	}))
	defer srv.Close()

	client := New(srv.URL)
	err := client.CancelExecution(context.Background(), 5, CancelRequest{Reason: "user requested"})
	require.NoError(t, err)
}
