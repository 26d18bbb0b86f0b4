package orchestrator

import (
	"fmt"

	"github.com/noetl/noetl/internal/model"
	"github.com/noetl/noetl/internal/scope"
)

// RenderPipeline resolves every task's config templates against bundle,
// producing the snapshot a worker executes verbatim (spec §4.3.2: the
// orchestrator is the sole authoritative renderer; workers never
// re-merge). Rendering happens once per step admission, not per attempt.
func RenderPipeline(eng *scope.Engine, tasks []model.Task, bundle *model.ScopeBundle) ([]model.RenderedTask, error) {
	rendered := make([]model.RenderedTask, 0, len(tasks))
	for _, t := range tasks {
		configAny, err := eng.RenderValue(map[string]any(t.Config), bundle)
		if err != nil {
			return nil, fmt.Errorf("render task %q: %w", t.Label, err)
		}
		config, ok := configAny.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("render task %q: rendered config is not an object", t.Label)
		}

		rt := model.RenderedTask{
			Label:          t.Label,
			Kind:           t.Kind,
			Config:         config,
			TimeoutSeconds: t.Spec.Timeout,
		}
		if len(t.Spec.Policy.Rules) > 0 {
			policy := t.Spec.Policy
			rt.Policy = &policy
		}
		if t.Spec.Result.Store != "" || t.Spec.Result.Scope != "" {
			result := t.Spec.Result
			rt.Result = &result
		}
		rendered = append(rendered, rt)
	}
	return rendered, nil
}
