package schema

import "time"

// Node execution statuses as reported in NodeExecution records.
const (
	NodeStatusSuccess = "success"
	NodeStatusError   = "error"
)

// Log levels, ordered roughly by severity.
const (
	LogLevelInfo    = "info"
	LogLevelRunning = "running"
	LogLevelSuccess = "success"
	LogLevelError   = "error"
)

// ExecutionContext maps node IDs to their produced outputs. It grows
// monotonically during a run and is discarded when the run ends.
type ExecutionContext map[string]map[string]any

// NodeExecution records the outcome of one node.
type NodeExecution struct {
	NodeID     string         `json:"node_id"`
	Action     string         `json:"action"`
	Status     string         `json:"status"` // success | error
	DurationMs int64          `json:"duration_ms"`
	Attempts   int            `json:"attempts"`
	Input      map[string]any `json:"input,omitempty"`  // resolved input, when resolution succeeded
	Output     map[string]any `json:"output,omitempty"` // handler output, on success
	Error      string         `json:"error,omitempty"`
}

// LogEntry is one line of the chronological execution log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"` // info | running | success | error
	Message string    `json:"message"`
	NodeID  string    `json:"node_id,omitempty"`
}

// ExecutionResult is the terminal artifact of a run. It is produced exactly
// once; the engine holds no reference to it afterwards.
type ExecutionResult struct {
	RunID      string          `json:"run_id"`
	Workflow   string          `json:"workflow"`
	Success    bool            `json:"success"`
	Logs       []LogEntry      `json:"logs"`
	Nodes      []NodeExecution `json:"nodes"`
	DurationMs int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
}
