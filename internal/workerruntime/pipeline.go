package workerruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noetl/noetl/internal/keychain"
	"github.com/noetl/noetl/internal/model"
	"github.com/noetl/noetl/internal/resultref"
	"github.com/noetl/noetl/internal/tools"
)

// pipelineResult is what running a step's rendered_pipeline produces: a
// terminal step.done/step.failed outcome plus the result payload to carry
// on that event.
type pipelineResult struct {
	Status    model.Status
	Result    json.RawMessage
	Extracted map[string]any
}

// runPipeline executes payload.RenderedPipeline task by task against
// bundle, applying each task's policy after its attempt (spec §4.5). It
// stops as soon as a `break` or `fail` action (or pipeline exhaustion)
// produces a terminal status; `retry`/`jump`/`continue` keep it going.
// heartbeatFailed is polled between tasks and between retry sleeps; a
// failed heartbeat aborts the pipeline immediately (lease presumed lost).
func (r *Runner) runPipeline(ctx context.Context, executionID, nodeID int64, nodeName string, payload *model.StepRunPayload, bundle *model.ScopeBundle, heartbeatFailed func() bool) (pipelineResult, error) {
	tasks := payload.RenderedPipeline
	labelIndex := make(map[string]int, len(tasks))
	for i, t := range tasks {
		labelIndex[t.Label] = i
	}

	var prev json.RawMessage
	iter := copyMap(bundle.Iter)
	// extracted accumulates every task's select-derived fields across the
	// whole pipeline (last write per selector wins) so the step.done/failed
	// event can carry them forward into the orchestrator's routing scope.
	extracted := map[string]any{}

	pc := 0
	for pc < len(tasks) {
		if heartbeatFailed() {
			return pipelineResult{}, ErrLeaseLost
		}
		task := tasks[pc]

		taskBundle := *bundle
		taskBundle.Iter = iter
		taskBundle.Prev = map[string]any{"result": decodeAny(prev)}
		taskBundle.Task = map[string]any{"label": task.Label, "kind": task.Kind}
		taskBundle.Extracted = extracted

		outcome, attempt, exhaustedRuleIdx, err := r.runTaskWithRetry(ctx, executionID, nodeID, nodeName, &task, &taskBundle, heartbeatFailed)
		if err != nil {
			return pipelineResult{}, err
		}

		taskBundle.Attempt = map[string]any{"count": attempt}
		taskBundle.Outcome = outcome.AsScope()

		// A retry rule that exhausted its attempts must not be allowed to
		// match again on the same unchanged outcome: resume scanning the
		// rule list right after it instead of from the top (spec §4.5
		// point 3, "fall through to subsequent rules or default-fail").
		var then model.TaskPolicyThen
		if exhaustedRuleIdx >= 0 {
			then, _, err = evalPolicyFrom(r.eng, task.Policy, outcome, &taskBundle, exhaustedRuleIdx+1)
		} else {
			then, _, err = evalPolicyFrom(r.eng, task.Policy, outcome, &taskBundle, 0)
		}
		if err != nil {
			return pipelineResult{}, fmt.Errorf("evaluate policy for task %q: %w", task.Label, err)
		}

		if len(then.SetIter) > 0 {
			for k, v := range then.SetIter {
				iter[k] = v
			}
		}
		if len(then.SetCtx) > 0 {
			if err := r.applyCtxPatch(ctx, executionID, then.SetCtx); err != nil {
				return pipelineResult{}, err
			}
		}

		switch then.Do {
		case model.ActionContinue:
			prev = outcomeResultJSON(outcome)
			pc++
		case model.ActionBreak:
			return pipelineResult{Status: model.StatusDone, Result: outcomeResultJSON(outcome), Extracted: extracted}, nil
		case model.ActionFail:
			return pipelineResult{Status: model.StatusFailed, Result: errorJSON(outcome), Extracted: extracted}, nil
		case model.ActionJump:
			target, ok := labelIndex[then.To]
			if !ok {
				return pipelineResult{}, fmt.Errorf("jump target %q not found in pipeline", then.To)
			}
			pc = target
		default:
			prev = outcomeResultJSON(outcome)
			pc++
		}
	}

	return pipelineResult{Status: model.StatusDone, Result: prev, Extracted: extracted}, nil
}

// runTaskWithRetry invokes the tool adapter for task once, then keeps
// retrying in place (sleeping per backoff/delay, never advancing pc) while
// the evaluated policy says `retry` and attempts remain. It returns the
// outcome of whichever attempt the caller's policy evaluation should act
// on, plus exhaustedRuleIdx: -1 if the task ended on a non-retry rule (or
// no policy matched at all), or the index of the retry rule that ran out
// of attempts, so the caller resumes rule matching after it rather than
// re-matching the same exhausted retry rule on the unchanged outcome.
func (r *Runner) runTaskWithRetry(ctx context.Context, executionID, nodeID int64, nodeName string, task *model.RenderedTask, bundle *model.ScopeBundle, heartbeatFailed func() bool) (outcome *model.Outcome, attempt int, exhaustedRuleIdx int, err error) {
	attempt = 1
	for {
		outcome, err = r.runOneAttempt(ctx, executionID, nodeID, nodeName, task, bundle, attempt)
		if err != nil {
			return nil, attempt, -1, err
		}

		scopedBundle := *bundle
		scopedBundle.Outcome = outcome.AsScope()
		scopedBundle.Attempt = map[string]any{"count": attempt}
		then, ruleIdx, err := evalPolicyFrom(r.eng, task.Policy, outcome, &scopedBundle, 0)
		if err != nil {
			return nil, attempt, -1, err
		}
		if then.Do != model.ActionRetry {
			return outcome, attempt, -1, nil
		}

		maxAttempts := then.Attempts
		if maxAttempts <= 0 {
			maxAttempts = 1
		}
		if attempt >= maxAttempts {
			return outcome, attempt, ruleIdx, nil
		}
		if heartbeatFailed() {
			return nil, attempt, -1, ErrLeaseLost
		}

		delay := backoffDelaySeconds(then.Backoff, then.Delay, attempt)
		select {
		case <-ctx.Done():
			return nil, attempt, -1, ctx.Err()
		case <-time.After(time.Duration(delay * float64(time.Second))):
		}
		attempt++
	}
}

func (r *Runner) runOneAttempt(ctx context.Context, executionID, nodeID int64, nodeName string, task *model.RenderedTask, bundle *model.ScopeBundle, attempt int) (*model.Outcome, error) {
	attemptMeta, _ := json.Marshal(map[string]any{"label": task.Label, "attempt": attempt})
	startEv := &model.Event{
		ExecutionID: executionID, NodeID: &nodeID, NodeName: &nodeName,
		EventType: model.EventTaskAttemptStarted, Status: model.StatusRunning, Attempt: &attempt, Meta: attemptMeta,
	}
	if _, err := r.events.Emit(ctx, startEv); err != nil {
		return nil, fmt.Errorf("emit task.attempt.started: %w", err)
	}

	auth, err := r.resolveAuth(ctx, task)
	if err != nil {
		return nil, err
	}

	adapter, err := r.tools.Resolve(task.Kind)
	if err != nil {
		return nil, err
	}

	taskCtx := ctx
	var cancel context.CancelFunc
	if task.TimeoutSeconds > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, time.Duration(task.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	outcome, err := adapter.Execute(taskCtx, task.Config, auth, tools.TaskContext{ExecutionID: executionID, NodeName: nodeName, Attempt: attempt})
	if err != nil {
		return nil, fmt.Errorf("adapter %q execute: %w", task.Kind, err)
	}

	if task.Result != nil && resultref.ShouldExternalize(outcome.Result, task.Result) {
		ref, err := r.results.Externalize(ctx, executionID, nodeID, outcome.Result, task.Result)
		if err != nil {
			return nil, fmt.Errorf("externalize task %q result: %w", task.Label, err)
		}
		for k, v := range ref.Extracted {
			bundle.Extracted[k] = v
		}
		refJSON, _ := json.Marshal(ref)
		outcome.Result = refJSON
	}

	doneType := model.EventTaskAttemptDone
	if outcome.Status == model.OutcomeError {
		doneType = model.EventTaskAttemptFailed
	}
	doneEv := &model.Event{
		ExecutionID: executionID, NodeID: &nodeID, NodeName: &nodeName,
		EventType: doneType, Status: model.StatusDone, Attempt: &attempt, Result: outcome.Result,
	}
	if outcome.Status == model.OutcomeError {
		doneEv.Status = model.StatusFailed
		doneEv.Result, _ = json.Marshal(outcome.Error)
	}
	if _, err := r.events.Emit(ctx, doneEv); err != nil {
		return nil, fmt.Errorf("emit %s: %w", doneType, err)
	}

	return outcome, nil
}

func (r *Runner) resolveAuth(ctx context.Context, task *model.RenderedTask) (tools.Auth, error) {
	name, _ := task.Config["credential"].(string)
	if name == "" {
		return tools.Auth{}, nil
	}
	resolution, err := r.keychainStore.Resolve(ctx, name)
	if err != nil && err != keychain.ErrMiss {
		return tools.Auth{}, fmt.Errorf("resolve credential %q: %w", name, err)
	}
	if err == keychain.ErrMiss || resolution.Status != "ok" {
		return tools.Auth{}, nil
	}
	return tools.Auth{CredentialType: task.Kind, Fields: resolution.Fields}, nil
}

func (r *Runner) applyCtxPatch(ctx context.Context, executionID int64, setCtx map[string]any) error {
	patchDoc, err := buildCtxPatch(setCtx)
	if err != nil {
		return fmt.Errorf("encode set_ctx patch: %w", err)
	}
	ev := &model.Event{ExecutionID: executionID, EventType: model.EventCtxPatched, Status: model.StatusDone, Context: patchDoc}
	if _, err := r.events.Emit(ctx, ev); err != nil {
		return fmt.Errorf("emit ctx.patched: %w", err)
	}
	return r.orch.ReconsiderPending(ctx, executionID)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func decodeAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}

func outcomeResultJSON(outcome *model.Outcome) json.RawMessage {
	if len(outcome.Result) > 0 {
		return outcome.Result
	}
	return json.RawMessage(`null`)
}

func errorJSON(outcome *model.Outcome) json.RawMessage {
	if outcome.Error == nil {
		return json.RawMessage(`{}`)
	}
	b, _ := json.Marshal(outcome.Error)
	return b
}
