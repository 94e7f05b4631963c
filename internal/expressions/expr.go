package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/mvidal/trellis/pkg/schema"
)

// Expr implements Engine using expr-lang/expr for deterministic logic over
// node outputs: array operations, string functions, nil coalescing, optional
// chaining. Thread-safe: compiled *vm.Program objects are cached and reused.
type Expr struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExpr creates a new Expr expression engine.
func NewExpr() *Expr {
	return &Expr{
		cache: make(map[string]*vm.Program),
	}
}

// Name returns the engine identifier.
func (e *Expr) Name() string {
	return "expr"
}

// Evaluate compiles (or retrieves from cache) an expression and runs it with
// data as the environment. When data is a map its keys become top-level
// variables; any other value is exposed as "data".
func (e *Expr) Evaluate(ctx context.Context, expression string, data any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeEval, "empty expr expression")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	env, ok := data.(map[string]any)
	if !ok {
		env = map[string]any{"data": data}
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEval,
			"expr evaluation failed for %q: %s", expression, err.Error()).WithCause(err)
	}
	return out, nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new
// one. Programs are compiled with undefined variables allowed so one compiled
// form serves every environment shape.
func (e *Expr) getOrCompile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEval,
			"expr compile error in %q: %s", expression, err.Error()).WithCause(err)
	}

	e.cache[expression] = prg
	return prg, nil
}

var _ Engine = (*Expr)(nil)
