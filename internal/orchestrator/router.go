package orchestrator

import (
	"fmt"

	"github.com/noetl/noetl/internal/model"
	"github.com/noetl/noetl/internal/scope"
)

// MatchedArc is one arc a router evaluation selected.
type MatchedArc struct {
	Arc         model.Arc
	MatchedWhen *string
}

// Route evaluates a step's next.arcs against bundle per spec §4.3.4:
// exclusive mode returns at most the first matching arc; inclusive mode
// returns every matching arc (fan-out). An arc with a nil `when` always
// matches (the default/else branch).
func Route(eng *scope.Engine, next *model.NextSpec, bundle *model.ScopeBundle) ([]MatchedArc, error) {
	if next == nil {
		return nil, nil
	}

	var matched []MatchedArc
	for _, arc := range next.Arcs {
		ok := true
		if arc.When != nil {
			var err error
			ok, err = eng.EvalBool(*arc.When, bundle)
			if err != nil {
				return nil, fmt.Errorf("router arc to %q: %w", arc.Step, err)
			}
		}
		if !ok {
			continue
		}
		matched = append(matched, MatchedArc{Arc: arc, MatchedWhen: arc.When})
		if next.Spec.Mode == model.RouterExclusive {
			break
		}
	}
	return matched, nil
}
