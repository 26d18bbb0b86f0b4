package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Playbook is the root of the YAML grammar (spec §6): metadata, keychain
// declarations, executor options, the immutable workload defaults, the
// step graph, and an optional workbook of reusable fragments.
type Playbook struct {
	Metadata PlaybookMetadata       `yaml:"metadata" json:"metadata"`
	Keychain []KeychainDecl         `yaml:"keychain,omitempty" json:"keychain,omitempty"`
	Executor ExecutorSpec           `yaml:"executor,omitempty" json:"executor,omitempty"`
	Workload map[string]interface{} `yaml:"workload,omitempty" json:"workload,omitempty"`
	Workflow []Step                 `yaml:"workflow" json:"workflow"`
	Workbook map[string]interface{} `yaml:"workbook,omitempty" json:"workbook,omitempty"`
}

// PlaybookMetadata identifies a playbook's catalog entry.
type PlaybookMetadata struct {
	Name    string `yaml:"name" json:"name"`
	Path    string `yaml:"path" json:"path"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// KeychainDecl declares a credential a playbook consumes, by name and scope.
type KeychainDecl struct {
	Name           string         `yaml:"name" json:"name"`
	Scope          KeychainScope  `yaml:"scope" json:"scope"`
	CredentialType string         `yaml:"credential_type,omitempty" json:"credential_type,omitempty"`
	TTLSeconds     int            `yaml:"ttl_seconds,omitempty" json:"ttl_seconds,omitempty"`
	AutoRenew      bool           `yaml:"auto_renew,omitempty" json:"auto_renew,omitempty"`
	RenewConfig    map[string]any `yaml:"renew_config,omitempty" json:"renew_config,omitempty"`
}

// ExecutorSpec holds executor-level overrides.
type ExecutorSpec struct {
	EntryStep      string `yaml:"entry_step,omitempty" json:"entry_step,omitempty"`
	NoNextIsError  bool   `yaml:"no_next_is_error,omitempty" json:"no_next_is_error,omitempty"`
	FinalStep      string `yaml:"final_step,omitempty" json:"final_step,omitempty"`
}

// Step is one node of the workflow step graph.
type Step struct {
	Step string    `yaml:"step" json:"step"`
	Spec StepSpec  `yaml:"spec,omitempty" json:"spec,omitempty"`
	Loop *LoopSpec `yaml:"loop,omitempty" json:"loop,omitempty"`
	Tool []Task    `yaml:"tool,omitempty" json:"tool,omitempty"`
	Next *NextSpec `yaml:"next,omitempty" json:"next,omitempty"`
}

// StepSpec carries step-level policy (admission rules).
type StepSpec struct {
	Policy StepPolicy `yaml:"policy,omitempty" json:"policy,omitempty"`
}

// StepPolicy wraps the admission policy of a step.
type StepPolicy struct {
	Admit AdmitPolicy `yaml:"admit,omitempty" json:"admit,omitempty"`
}

// LoopSpec configures loop expansion for a step (spec §4.3.3).
type LoopSpec struct {
	In          string `yaml:"in" json:"in"` // expression evaluating to a finite ordered sequence
	Iterator    string `yaml:"iterator" json:"iterator"`
	Spec        LoopModeSpec `yaml:"spec,omitempty" json:"spec,omitempty"`
}

// LoopModeSpec selects sequential vs parallel iteration scheduling.
type LoopModeSpec struct {
	Mode        LoopMode `yaml:"mode,omitempty" json:"mode,omitempty"`
	MaxInFlight int      `yaml:"max_in_flight,omitempty" json:"max_in_flight,omitempty"`
}

// LoopMode selects how loop iterations are scheduled.
type LoopMode string

const (
	LoopSequential LoopMode = "sequential"
	LoopParallel   LoopMode = "parallel"
)

// Task is one labeled entry of a step's tool pipeline.
type Task struct {
	Label  string                 `yaml:"-" json:"label"` // the map key; populated by the loader
	Kind   string                 `yaml:"kind" json:"kind"`
	Config map[string]interface{} `yaml:",inline" json:"config"`
	Spec   TaskSpec               `yaml:"spec,omitempty" json:"spec,omitempty"`
}

// TaskSpec carries per-task policy, result handling and timeout.
type TaskSpec struct {
	Policy  TaskPolicy  `yaml:"policy,omitempty" json:"policy,omitempty"`
	Result  ResultSpec  `yaml:"result,omitempty" json:"result,omitempty"`
	Timeout int         `yaml:"timeout,omitempty" json:"timeout,omitempty"` // seconds
}

// UnmarshalYAML decodes a pipeline entry shaped `- <label>: {kind: ..., ...}`:
// a single-key mapping whose key is the task's label and whose value holds
// `kind`, an optional `spec` block, and the remaining adapter config.
func (t *Task) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return fmt.Errorf("task entry must be a single-key mapping, got kind=%v len=%d", value.Kind, len(value.Content))
	}

	var raw map[string]interface{}
	if err := value.Content[1].Decode(&raw); err != nil {
		return fmt.Errorf("decode task body: %w", err)
	}

	t.Label = value.Content[0].Value
	if kind, ok := raw["kind"].(string); ok {
		t.Kind = kind
	}
	delete(raw, "kind")

	if specNode := findMapChild(value.Content[1], "spec"); specNode != nil {
		if err := specNode.Decode(&t.Spec); err != nil {
			return fmt.Errorf("decode task %q spec: %w", t.Label, err)
		}
	}
	delete(raw, "spec")

	t.Config = raw
	return nil
}

func findMapChild(mapping *yaml.Node, key string) *yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// UnmarshalYAML decodes an admission rule shaped `{when: ..., then: {allow: ...}}`.
func (r *AdmitRule) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		When *string `yaml:"when"`
		Then struct {
			Allow bool `yaml:"allow"`
		} `yaml:"then"`
	}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode admit rule: %w", err)
	}
	r.When = raw.When
	r.Allow = raw.Then.Allow
	return nil
}

// NextSpec is a step's outgoing routing: a fan-out mode plus arc list.
type NextSpec struct {
	Spec  RouterModeSpec `yaml:"spec,omitempty" json:"spec,omitempty"`
	Arcs  []Arc          `yaml:"arcs" json:"arcs"`
}

// RouterModeSpec selects exclusive (first match) vs inclusive (fan-out) routing.
type RouterModeSpec struct {
	Mode RouterMode `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// RouterMode is the `next.spec.mode` enum (spec §4.3.4).
type RouterMode string

const (
	RouterExclusive RouterMode = "exclusive"
	RouterInclusive RouterMode = "inclusive"
)

// Arc is one outgoing transition from a step.
type Arc struct {
	Step string                 `yaml:"step" json:"step"`
	When *string                `yaml:"when,omitempty" json:"when,omitempty"`
	Args map[string]interface{} `yaml:"args,omitempty" json:"args,omitempty"`
}
