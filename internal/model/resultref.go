package model

import (
	"encoding/json"
	"time"
)

// ResultRefScope controls how long an externalized result payload lives
// and who can address it (spec §4.7).
type ResultRefScope string

const (
	ResultScopeStep      ResultRefScope = "step"
	ResultScopeExecution ResultRefScope = "execution"
	ResultScopeWorkflow  ResultRefScope = "workflow"
	ResultScopePermanent ResultRefScope = "permanent"
)

// ResultRef is the envelope left in an event's Result field in place of a
// large payload: a pointer any scope holder can resolve back to bytes.
type ResultRef struct {
	RefID       string         `json:"ref_id"`
	Store       string         `json:"store"` // memory | postgres
	Scope       ResultRefScope `json:"scope"`
	ExecutionID int64          `json:"execution_id"`
	NodeID      int64          `json:"node_id"`
	SizeBytes   int64          `json:"size_bytes"`
	ContentType string         `json:"content_type,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Manifest    *Manifest      `json:"manifest,omitempty"`
	// Extracted holds the spec.result.select fields pulled out of the
	// payload at write time, keyed by selector, so a router or admission
	// `when` can branch on them without resolving the full ref (spec §4.4,
	// §4.7).
	Extracted map[string]any `json:"extracted,omitempty"`
}

// ManifestMergeMode controls how successive writes to the same ref combine,
// used by paginated tool results that append across multiple task attempts.
type ManifestMergeMode string

const (
	ManifestAppend  ManifestMergeMode = "append"
	ManifestConcat  ManifestMergeMode = "concat"
	ManifestMerge   ManifestMergeMode = "merge"
	ManifestReplace ManifestMergeMode = "replace"
)

// Manifest records the parts composing a multi-write ResultRef and the mode
// used to combine them.
type Manifest struct {
	Mode  ManifestMergeMode `json:"mode"`
	Parts []ManifestPart    `json:"parts"`
}

// ManifestPart is one contribution to a Manifest.
type ManifestPart struct {
	Index     int       `json:"index"`
	SizeBytes int64     `json:"size_bytes"`
	WrittenAt time.Time `json:"written_at"`
}

// Resolved is the materialized form returned by a resultref resolve call:
// either the inline bytes were small enough to keep in the event already,
// or they are fetched from the backing store.
type Resolved struct {
	RefID   string          `json:"ref_id"`
	Payload json.RawMessage `json:"payload"`
}
