package model

import (
	"encoding/json"
	"time"
)

// OutcomeStatus is the coarse result a tool adapter reports for one task
// attempt; the task policy then decides continue/retry/jump/break/fail
// from this plus the scope bundle (spec §4.5).
type OutcomeStatus string

const (
	OutcomeOK    OutcomeStatus = "ok"
	OutcomeError OutcomeStatus = "error"
)

// ErrorKind enumerates the taxonomy a tool adapter classifies its failures
// into (spec §7). Policy rules can key off this; default routing, with no
// matching rule, looks only at the outcome status.
type ErrorKind string

const (
	ErrRateLimit            ErrorKind = "rate_limit"
	ErrTimeout              ErrorKind = "timeout"
	ErrNetwork              ErrorKind = "network"
	ErrAuth                 ErrorKind = "auth"
	ErrPermission           ErrorKind = "permission"
	ErrNotFound             ErrorKind = "not_found"
	ErrSerializationFailure ErrorKind = "serialization_failure"
	ErrDeadlock             ErrorKind = "deadlock"
	ErrValidation           ErrorKind = "validation"
	ErrInternal             ErrorKind = "internal"
	ErrLeaseExpired         ErrorKind = "lease_expired"
	ErrTemplateUnresolved   ErrorKind = "template_unresolved"
	ErrCatalogUnresolved    ErrorKind = "catalog_unresolved"
	ErrCancelled            ErrorKind = "cancelled"
)

// OutcomeError is the structured failure a tool adapter or the runtime
// itself attaches to an Outcome with Status=error.
type OutcomeError struct {
	Kind      ErrorKind      `json:"kind"`
	Retryable bool           `json:"retryable"`
	Message   string         `json:"message"`
	Code      string         `json:"code,omitempty"`
	Extras    map[string]any `json:"extras,omitempty"`
}

// OutcomeMeta carries attempt accounting and timing, populated by the tool
// adapter that produced the outcome.
type OutcomeMeta struct {
	Attempt     int       `json:"attempt"`
	DurationMs  int64     `json:"duration_ms"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

// HTTPOutcome carries transport detail for http-kind tasks.
type HTTPOutcome struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
}

// PGOutcome carries transport detail for postgres-kind tasks.
type PGOutcome struct {
	Code     string `json:"code,omitempty"`
	SQLState string `json:"sqlstate,omitempty"`
}

// PyOutcome carries transport detail for python-kind tasks.
type PyOutcome struct {
	ExceptionType string `json:"exception_type,omitempty"`
}

// Outcome is the envelope a tool adapter returns and the worker runtime
// reports back to the server (spec §4.5, §6). Result is either a small
// inline JSON value or a ResultRef envelope, never raw secret bytes.
type Outcome struct {
	Status OutcomeStatus   `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *OutcomeError   `json:"error,omitempty"`
	Meta   OutcomeMeta     `json:"meta"`
	HTTP   *HTTPOutcome    `json:"http,omitempty"`
	PG     *PGOutcome      `json:"pg,omitempty"`
	Py     *PyOutcome      `json:"py,omitempty"`
}

// AsScope renders the outcome into the flat map the `outcome` scope
// bundle field exposes to task policy `when` expressions.
func (o *Outcome) AsScope() map[string]any {
	m := map[string]any{
		"status": string(o.Status),
	}
	var result any
	if len(o.Result) > 0 {
		_ = json.Unmarshal(o.Result, &result)
	}
	m["result"] = result
	if o.Error != nil {
		m["error"] = map[string]any{
			"kind":      string(o.Error.Kind),
			"retryable": o.Error.Retryable,
			"message":   o.Error.Message,
			"code":      o.Error.Code,
		}
	}
	return m
}
