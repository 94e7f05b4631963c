package actions

import (
	"context"
	"encoding/json"

	"github.com/mvidal/trellis/internal/expressions"
	"github.com/mvidal/trellis/pkg/schema"
)

const assertInputSchema = `{
  "type": "object",
  "properties": {
    "condition": {"type": "string"},
    "data": {},
    "message": {"type": "string"}
  },
  "required": ["condition"]
}`

// AssertHandler implements the "assert" action: evaluates a boolean expr-lang
// condition against data and fails the node when it does not hold. The failure
// is an ordinary handler error, so the node's retry policy applies; asserting
// on a value that converges makes a usable polling primitive.
type AssertHandler struct {
	engine expressions.Engine
}

// NewAssertHandler creates a new assert handler.
func NewAssertHandler() *AssertHandler {
	return &AssertHandler{engine: expressions.NewExpr()}
}

func (h *AssertHandler) Name() string { return "assert" }

func (h *AssertHandler) Schema() HandlerSchema {
	return HandlerSchema{
		Description: "Fail the node unless a boolean condition holds over data; returns {pass: true} on success.",
		InputSchema: json.RawMessage(assertInputSchema),
	}
}

func (h *AssertHandler) Execute(ctx context.Context, node *schema.WorkflowNode, input map[string]any) (map[string]any, error) {
	condition := stringParam(input, "condition", "")
	if condition == "" {
		return nil, schema.NewError(schema.ErrCodeHandler, "assert: missing required param 'condition'")
	}

	result, err := h.engine.Evaluate(ctx, condition, input["data"])
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeHandler, "assert: %s", err.Error()).WithCause(err)
	}

	pass, ok := result.(bool)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeHandler,
			"assert: condition %q did not evaluate to a boolean (got %T)", condition, result)
	}
	if !pass {
		msg := stringParam(input, "message", "")
		if msg == "" {
			msg = "condition " + condition + " does not hold"
		}
		return nil, schema.NewErrorf(schema.ErrCodeHandler, "assert: %s", msg)
	}

	return map[string]any{"pass": true}, nil
}
