package orchestrator

import (
	"fmt"

	"github.com/noetl/noetl/internal/model"
	"github.com/noetl/noetl/internal/scope"
)

// Admit evaluates a step's admission policy (spec §4.3.1) against bundle:
// rules are checked in order, the first rule whose `when` matches (or is
// nil, i.e. an else/default) decides the outcome. With no rules at all,
// admission defaults to allow.
func Admit(eng *scope.Engine, policy model.AdmitPolicy, bundle *model.ScopeBundle) (bool, error) {
	if len(policy.Rules) == 0 {
		return true, nil
	}
	for _, rule := range policy.Rules {
		if rule.When == nil {
			return rule.Allow, nil
		}
		matched, err := eng.EvalBool(*rule.When, bundle)
		if err != nil {
			return false, fmt.Errorf("admission rule %q: %w", *rule.When, err)
		}
		if matched {
			return rule.Allow, nil
		}
	}
	return true, nil
}
