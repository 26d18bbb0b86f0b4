package model

// TaskAction is the enum the policy evaluator returns for a task outcome,
// replacing the source system's exception-driven control flow (spec §9).
type TaskAction string

const (
	ActionContinue TaskAction = "continue"
	ActionRetry    TaskAction = "retry"
	ActionJump     TaskAction = "jump"
	ActionBreak    TaskAction = "break"
	ActionFail     TaskAction = "fail"
)

// Backoff selects the delay growth function for a retry action.
type Backoff string

const (
	BackoffNone        Backoff = "none"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// TaskPolicyRule is one `when`/`then` rule evaluated against the task
// outcome envelope and scopes after a task attempt.
type TaskPolicyRule struct {
	When *string        `json:"when,omitempty"` // CEL expression; nil means unconditional (used for else/default)
	Then TaskPolicyThen `json:"then"`
}

// TaskPolicyThen is the action a matching rule prescribes.
type TaskPolicyThen struct {
	Do         TaskAction         `json:"do"`
	Attempts   int                `json:"attempts,omitempty"`
	Backoff    Backoff            `json:"backoff,omitempty"`
	Delay      float64            `json:"delay,omitempty"` // seconds, base delay
	To         string             `json:"to,omitempty"`    // jump target task label
	SetIter    map[string]any     `yaml:"set_iter,omitempty" json:"set_iter,omitempty"`
	SetCtx     map[string]any     `yaml:"set_ctx,omitempty" json:"set_ctx,omitempty"`
}

// TaskPolicy is the full per-task policy block: an ordered rule list.
type TaskPolicy struct {
	Rules []TaskPolicyRule `json:"rules"`
}

// ResultSpec controls whether a task's result is kept inline in the event
// payload or externalized as a ResultRef (spec §4.7).
type ResultSpec struct {
	InlineMaxBytes int      `yaml:"inline_max_bytes,omitempty" json:"inline_max_bytes,omitempty"`
	Store          string   `json:"store,omitempty"` // memory | postgres; no other backend is implemented, other names fail as unknown stores
	Scope          string   `json:"scope,omitempty"` // step | execution | workflow | permanent
	Select         []string `json:"select,omitempty"` // JSONPath-like extraction rules -> extracted.*
}

// AdmitRule is one `when`/`then.allow` rule in a step's admission policy
// (spec §4.3.1).
type AdmitRule struct {
	When  *string `json:"when,omitempty"`
	Allow bool    `json:"allow"`
}

// AdmitPolicy is the ordered admission rule list for a step. Default
// admit=allow if no rule matches and there is no else branch.
type AdmitPolicy struct {
	Rules []AdmitRule `json:"rules"`
}
