// Package scope is the deterministic expression evaluator the orchestrator
// and worker runtime use to resolve `when` rules and render pipeline
// templates against a typed scope bundle (workload, keychain, ctx, iter,
// args, event, _prev, _task, _attempt, outcome). It is intentionally not a
// general-purpose templating language: every expression is a single CEL
// program, compiled once and cached by source text.
package scope

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/noetl/noetl/internal/model"
)

// Engine compiles and evaluates CEL expressions against ScopeBundle
// activations, caching compiled programs by expression text.
type Engine struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// New builds an Engine with every scope bundle field declared as a dyn
// variable, so an expression referencing an unused scope binds to an
// empty map instead of failing to compile.
func New() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("workload", cel.DynType),
		cel.Variable("keychain", cel.DynType),
		cel.Variable("ctx", cel.DynType),
		cel.Variable("iter", cel.DynType),
		cel.Variable("args", cel.DynType),
		cel.Variable("event", cel.DynType),
		cel.Variable("_prev", cel.DynType),
		cel.Variable("_task", cel.DynType),
		cel.Variable("_attempt", cel.DynType),
		cel.Variable("outcome", cel.DynType),
		cel.Variable("extracted", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("scope: create CEL env: %w", err)
	}
	return &Engine{env: env, cache: make(map[string]cel.Program)}, nil
}

func (e *Engine) compile(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrTemplateUnresolved, expr, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrTemplateUnresolved, expr, err)
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// Eval evaluates expr against bundle and returns the raw result value.
func (e *Engine) Eval(expr string, bundle *model.ScopeBundle) (any, error) {
	prg, err := e.compile(expr)
	if err != nil {
		return nil, err
	}
	out, _, err := prg.Eval(bundle.AsActivation())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrTemplateUnresolved, expr, err)
	}
	return out.Value(), nil
}

// EvalBool evaluates expr and requires a boolean result, used for
// admission rules, router arc `when`, and task policy `when` clauses.
func (e *Engine) EvalBool(expr string, bundle *model.ScopeBundle) (bool, error) {
	v, err := e.Eval(expr, bundle)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expression %q produced %T, want bool", ErrTypeMismatch, expr, v)
	}
	return b, nil
}

// delimOpen/delimClose mark an inline expression inside a config value, e.g.
// `"{{ workload.url }}/items/{{ iter.id }}"`. A value containing exactly
// one delimited span that spans its whole string evaluates to the raw CEL
// result (preserving type); otherwise each span is stringified and spliced
// back into the surrounding text.
const (
	delimOpen  = "{{"
	delimClose = "}}"
)

// RenderValue recursively walks v (as produced by a YAML/JSON unmarshal:
// map[string]any, []any, or scalars) and resolves every templated string
// it finds against bundle. Non-string scalars and plain strings without a
// `{{ }}` span pass through unchanged.
func (e *Engine) RenderValue(v any, bundle *model.ScopeBundle) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			rendered, err := e.RenderValue(child, bundle)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			rendered, err := e.RenderValue(child, bundle)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	case string:
		return e.renderString(val, bundle)
	default:
		return v, nil
	}
}

func (e *Engine) renderString(s string, bundle *model.ScopeBundle) (any, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, delimOpen) && strings.HasSuffix(trimmed, delimClose) &&
		strings.Count(trimmed, delimOpen) == 1 {
		expr := strings.TrimSpace(trimmed[len(delimOpen) : len(trimmed)-len(delimClose)])
		return e.Eval(expr, bundle)
	}

	if !strings.Contains(s, delimOpen) {
		return s, nil
	}

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, delimOpen)
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], delimClose)
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start
		b.WriteString(rest[:start])
		expr := strings.TrimSpace(rest[start+len(delimOpen) : end])
		val, err := e.Eval(expr, bundle)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "%v", val)
		rest = rest[end+len(delimClose):]
	}
	return b.String(), nil
}
