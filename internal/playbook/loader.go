// Package playbook loads and validates the YAML workflow grammar described
// in spec §6: metadata, keychain declarations, workload defaults, and the
// step graph (admission policy, tool pipeline, loop, routing arcs).
package playbook

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/noetl/noetl/internal/model"
)

// EndStepName is the mandatory convergence point every playbook routes
// failures (and un-routed steps) to. It is injected at load time if the
// author did not define it explicitly.
const EndStepName = "end"

// Load parses and validates playbook YAML, injecting an implicit `end`
// step when the author omitted one.
func Load(data []byte) (*model.Playbook, error) {
	var pb model.Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("playbook: parse yaml: %w", err)
	}
	if err := Validate(&pb); err != nil {
		return nil, err
	}
	ensureEndStep(&pb)
	return &pb, nil
}

// ensureEndStep appends a bare `end` step if the playbook's workflow does
// not already define one.
func ensureEndStep(pb *model.Playbook) {
	for _, s := range pb.Workflow {
		if s.Step == EndStepName {
			return
		}
	}
	pb.Workflow = append(pb.Workflow, model.Step{Step: EndStepName})
}

// Validate checks structural invariants Load relies on: a non-empty
// workflow, unique step names, and arc targets that resolve to a defined
// step (or to the implicit `end`).
func Validate(pb *model.Playbook) error {
	if len(pb.Workflow) == 0 {
		return fmt.Errorf("playbook: workflow must define at least one step")
	}

	names := make(map[string]bool, len(pb.Workflow))
	for _, s := range pb.Workflow {
		if s.Step == "" {
			return fmt.Errorf("playbook: step with empty name")
		}
		if names[s.Step] {
			return fmt.Errorf("playbook: duplicate step name %q", s.Step)
		}
		names[s.Step] = true
	}
	names[EndStepName] = true

	for i := range pb.Workflow {
		s := &pb.Workflow[i]
		if s.Next == nil {
			continue
		}
		for _, arc := range s.Next.Arcs {
			if !names[arc.Step] {
				return fmt.Errorf("playbook: step %q next.arcs references undefined step %q", s.Step, arc.Step)
			}
		}
		if s.Next.Spec.Mode == "" {
			s.Next.Spec.Mode = model.RouterExclusive
		}
	}

	if pb.Metadata.Name == "" {
		return fmt.Errorf("playbook: metadata.name is required")
	}
	return nil
}

// StepByName returns the step with the given name, or nil if absent.
func StepByName(pb *model.Playbook, name string) *model.Step {
	for i := range pb.Workflow {
		if pb.Workflow[i].Step == name {
			return &pb.Workflow[i]
		}
	}
	return nil
}
