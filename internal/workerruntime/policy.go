// Package workerruntime is the background consumer that leases a
// step-run, executes its rendered_pipeline in order, applies task policy
// after each attempt, and emits events (spec §4.5). It never writes queue
// rows itself; it only leases, heartbeats, completes or fails them.
package workerruntime

import (
	"fmt"

	"github.com/noetl/noetl/internal/model"
	"github.com/noetl/noetl/internal/scope"
)

// evalPolicy scans policy.Rules in order against bundle (which must carry
// outcome/_prev/_task/_attempt) and returns the first matching rule's
// Then, or the default outcome routing (ok -> continue, error -> fail)
// when no rule matches or no policy is configured (spec §4.5 point 4).
func evalPolicy(eng *scope.Engine, policy *model.TaskPolicy, outcome *model.Outcome, bundle *model.ScopeBundle) (model.TaskPolicyThen, error) {
	then, _, err := evalPolicyFrom(eng, policy, outcome, bundle, 0)
	return then, err
}

// evalPolicyFrom scans policy.Rules starting at index from, returning the
// first matching rule's Then along with its index, or the default outcome
// routing (ok -> continue, error -> fail) with index -1 when no rule from
// that point matches or no policy is configured. A retry rule whose
// attempts are exhausted re-enters here at matchedIndex+1 so the rules
// after it still get a chance to fire rather than re-matching the same
// retry rule forever (spec §4.5 point 3).
func evalPolicyFrom(eng *scope.Engine, policy *model.TaskPolicy, outcome *model.Outcome, bundle *model.ScopeBundle, from int) (model.TaskPolicyThen, int, error) {
	if policy != nil {
		for i := from; i < len(policy.Rules); i++ {
			rule := policy.Rules[i]
			matched := rule.When == nil
			if rule.When != nil {
				var err error
				matched, err = eng.EvalBool(*rule.When, bundle)
				if err != nil {
					return model.TaskPolicyThen{}, -1, fmt.Errorf("task policy rule %q: %w", *rule.When, err)
				}
			}
			if matched {
				return rule.Then, i, nil
			}
		}
	}
	if outcome.Status == model.OutcomeOK {
		return model.TaskPolicyThen{Do: model.ActionContinue}, -1, nil
	}
	return model.TaskPolicyThen{Do: model.ActionFail}, -1, nil
}

// backoffDelaySeconds computes a retry's sleep duration per spec §4.5:
// none has no growth, linear scales by attempt count, exponential doubles.
func backoffDelaySeconds(kind model.Backoff, base float64, attempt int) float64 {
	switch kind {
	case model.BackoffLinear:
		return base * float64(attempt)
	case model.BackoffExponential:
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
		}
		return d
	default:
		return base
	}
}
