package schema

// WorkflowDefinition is the JSON-serializable workflow format.
// The engine treats a definition as read-only; catalog entries own their values.
type WorkflowDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Risk        string         `json:"risk,omitempty"` // low | medium | high, informational only
	Owner       *Owner         `json:"owner,omitempty"`
	Limits      *Limits        `json:"limits,omitempty"`
	Nodes       []WorkflowNode `json:"nodes"`
}

// Owner declares the principal a workflow runs on behalf of.
// The engine never enforces the permission list; it is carried for inspection.
type Owner struct {
	Principal   string   `json:"principal"`
	Permissions []string `json:"permissions,omitempty"`
}

// Limits are workflow-level termination thresholds.
type Limits struct {
	MaxNodes     int   `json:"max_nodes,omitempty"`      // 0 = unlimited
	MaxRuntimeMs int64 `json:"max_runtime_ms,omitempty"` // 0 = unlimited
	WarnAfterMs  int64 `json:"warn_after_ms,omitempty"`  // 0 = no warning
}

// WorkflowNode describes a single node in a workflow DAG.
type WorkflowNode struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`               // handler name (e.g. "http.get", "transform")
	Input     map[string]any `json:"input,omitempty"`      // template; may contain {{query}} and $ref objects
	DependsOn []string       `json:"depends_on,omitempty"` // node IDs that must complete first
	TimeoutMs int64          `json:"timeout_ms,omitempty"` // per-attempt budget, checked after completion
	Retry     *RetryPolicy   `json:"retry,omitempty"`
}

// RetryPolicy configures the attempt loop for a node.
type RetryPolicy struct {
	MaxAttempts int   `json:"max_attempts"`         // >= 1
	BackoffMs   int64 `json:"backoff_ms,omitempty"` // delay between attempts
}

// MaxAttempts returns the effective attempt budget for a node (default 1).
func (n *WorkflowNode) MaxAttempts() int {
	if n.Retry == nil || n.Retry.MaxAttempts < 1 {
		return 1
	}
	return n.Retry.MaxAttempts
}

// BackoffMs returns the effective backoff delay for a node (default 0).
func (n *WorkflowNode) BackoffMs() int64 {
	if n.Retry == nil || n.Retry.BackoffMs < 0 {
		return 0
	}
	return n.Retry.BackoffMs
}
