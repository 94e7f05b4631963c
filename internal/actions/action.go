package actions

import (
	"context"
	"encoding/json"

	"github.com/mvidal/trellis/pkg/schema"
)

// Handler is an executable capability bound to a workflow node's action
// reference. Handlers must be free of run-specific state: everything an
// invocation needs arrives through the resolved input map.
type Handler interface {
	Name() string
	Schema() HandlerSchema
	Execute(ctx context.Context, node *schema.WorkflowNode, input map[string]any) (map[string]any, error)
}

// Registry manages lookup of available handlers.
type Registry interface {
	Register(h Handler) error
	Get(name string) (Handler, error)
	List() []HandlerInfo
}

// HandlerSchema describes the input/output contract of a handler. It is
// consumed for documentation and inspection only; the engine never enforces it.
type HandlerSchema struct {
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// HandlerInfo is a summary of a registered handler for listing.
type HandlerInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"input_schema,omitempty"`
}
