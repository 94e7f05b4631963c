package actions

import (
	"context"
	"encoding/json"

	"github.com/mvidal/trellis/internal/expressions"
	"github.com/mvidal/trellis/pkg/schema"
)

const evalInputSchema = `{
  "type": "object",
  "properties": {
    "expression": {"type": "string"},
    "data": {}
  },
  "required": ["expression"]
}`

const evalOutputSchema = `{
  "type": "object",
  "properties": {
    "result": {}
  }
}`

// EvalHandler adapts an expression engine into an action handler. The input
// carries the expression under "expression" and the value it runs against
// under "data"; the output is {result: <value>}.
type EvalHandler struct {
	name        string
	description string
	engine      expressions.Engine
}

// NewTransformHandler creates the "transform" action, backed by the path query
// language.
func NewTransformHandler() *EvalHandler {
	return &EvalHandler{
		name:        "transform",
		description: "Apply a path query expression (pipes, to_entries, keys, length, dotted paths) to data; returns {result}.",
		engine:      expressions.NewPathQuery(),
	}
}

// NewJQHandler creates the "jq" action, backed by gojq for workflows that need
// full jq expressions.
func NewJQHandler() *EvalHandler {
	return &EvalHandler{
		name:        "jq",
		description: "Apply a jq expression to data; returns {result}.",
		engine:      expressions.NewGoJQ(),
	}
}

// NewExprEvalHandler creates the "expr.eval" action, backed by expr-lang for
// general-purpose logic over node outputs.
func NewExprEvalHandler() *EvalHandler {
	return &EvalHandler{
		name:        "expr.eval",
		description: "Evaluate an expr-lang expression with data as the environment; returns {result}.",
		engine:      expressions.NewExpr(),
	}
}

func (h *EvalHandler) Name() string { return h.name }

func (h *EvalHandler) Schema() HandlerSchema {
	return HandlerSchema{
		Description:  h.description,
		InputSchema:  json.RawMessage(evalInputSchema),
		OutputSchema: json.RawMessage(evalOutputSchema),
	}
}

func (h *EvalHandler) Execute(ctx context.Context, node *schema.WorkflowNode, input map[string]any) (map[string]any, error) {
	expression := stringParam(input, "expression", "")
	if expression == "" {
		return nil, schema.NewErrorf(schema.ErrCodeHandler, "%s: missing required param 'expression'", h.name)
	}

	result, err := h.engine.Evaluate(ctx, expression, input["data"])
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeHandler, "%s: %s", h.name, err.Error()).WithCause(err)
	}

	return map[string]any{"result": result}, nil
}
