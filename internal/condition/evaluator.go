// Package condition implements the sandboxed expression language used by
// conditional nodes and eval-node policy rules: boolean, arithmetic, and
// comparison operators, member access, len(), and access to
// output/nodes/input only — no arbitrary function calls, no attribute
// lookups outside the declared variables, no imports. CEL's environment
// only ever exposes variables it was explicitly given, which is what
// makes it safe to run against untrusted workflow definitions.
package condition

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// Evaluator evaluates CEL boolean expressions with a compiled-program
// cache; a single instance is safe for concurrent use across executions.
type Evaluator struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// New creates a condition evaluator with the fixed variable set the
// interpreter and eval executor populate: output (the upstream mapped
// output), ctx (free-form execution context), input (the workflow's
// original input), nodes (a map of node id -> that node's raw output, for
// expressions that reach further back than the immediate predecessor).
// output/ctx alone covers simple branching; input/nodes let an expression
// reference the original trigger payload or an arbitrary earlier node.
func New() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("output", cel.DynType),
		cel.Variable("ctx", cel.DynType),
		cel.Variable("input", cel.DynType),
		cel.Variable("nodes", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("condition: create CEL env: %w", err)
	}
	return &Evaluator{env: env, cache: make(map[string]cel.Program)}, nil
}

// Vars is the input binding for one evaluation.
type Vars struct {
	Output interface{}
	Ctx    map[string]interface{}
	Input  map[string]interface{}
	Nodes  map[string]interface{}
}

// EvaluateBool evaluates expr and requires it to return a boolean, which
// is the contract for conditional-node condition_expression and eval-node
// policy predicates.
func (e *Evaluator) EvaluateBool(expr string, vars Vars) (bool, error) {
	out, err := e.Evaluate(expr, vars)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition: expression did not return boolean, got %T", out)
	}
	return b, nil
}

// Evaluate compiles (or fetches from cache) and runs expr against vars,
// returning the raw CEL value converted to a native Go type.
func (e *Evaluator) Evaluate(expr string, vars Vars) (interface{}, error) {
	// Convert JSONPath-style $.field to CEL output.field so workflows
	// authored against either convention both work.
	normalized := strings.ReplaceAll(expr, "$.", "output.")

	prg, err := e.program(normalized)
	if err != nil {
		return nil, err
	}

	if vars.Ctx == nil {
		vars.Ctx = map[string]interface{}{}
	}
	if vars.Input == nil {
		vars.Input = map[string]interface{}{}
	}
	if vars.Nodes == nil {
		vars.Nodes = map[string]interface{}{}
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"output": vars.Output,
		"ctx":    vars.Ctx,
		"input":  vars.Input,
		"nodes":  vars.Nodes,
	})
	if err != nil {
		return nil, fmt.Errorf("condition: evaluation error: %w", err)
	}
	return out.Value(), nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition: compile error: %w", issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("condition: program build error: %w", err)
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// ClearCache drops all compiled programs; used by tests and by definition
// hot-reload.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

// CacheSize reports how many distinct expressions are currently compiled.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
