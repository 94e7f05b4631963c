package expressions

import "context"

// Engine evaluates expressions for transform-style handlers.
// Three implementations: the in-house path query language, GoJQ, and Expr.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data any) (any, error)
}
