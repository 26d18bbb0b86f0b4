package orchestrator

import (
	"fmt"

	"github.com/noetl/noetl/internal/model"
	"github.com/noetl/noetl/internal/scope"
)

// Iteration is one element of an expanded loop: its index and the iter
// context it binds into the step-run's scope.
type Iteration struct {
	Index int
	Iter  map[string]any
}

// ExpandLoop evaluates loop.in to a finite ordered sequence and binds each
// element to loop.iterator, per spec §4.3.3. A non-slice result is an
// error: loop.in must name something iterable.
func ExpandLoop(eng *scope.Engine, loop *model.LoopSpec, bundle *model.ScopeBundle) ([]Iteration, error) {
	v, err := eng.Eval(loop.In, bundle)
	if err != nil {
		return nil, fmt.Errorf("loop.in: %w", err)
	}

	seq, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("loop.in %q did not evaluate to a list, got %T", loop.In, v)
	}

	iterations := make([]Iteration, len(seq))
	for i, elem := range seq {
		iterations[i] = Iteration{
			Index: i,
			Iter:  map[string]any{loop.Iterator: elem},
		}
	}
	return iterations, nil
}

// InFlightCap returns how many loop iterations may be concurrently
// in-flight: parallel loops use spec.max_in_flight (at least 1); sequential
// loops always cap at 1.
func InFlightCap(loop *model.LoopSpec) int {
	if loop.Spec.Mode != model.LoopParallel {
		return 1
	}
	if loop.Spec.MaxInFlight <= 0 {
		return 1
	}
	return loop.Spec.MaxInFlight
}
