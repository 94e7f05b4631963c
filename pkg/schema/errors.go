package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeCycleDetected  = "CYCLE_DETECTED"
	ErrCodeDispatch       = "DISPATCH_ERROR"
	ErrCodeResolution     = "RESOLUTION_ERROR"
	ErrCodeHandler        = "HANDLER_ERROR"
	ErrCodeTimeout        = "TIMEOUT_ERROR"
	ErrCodeRetryExhausted = "RETRY_EXHAUSTED"
	ErrCodeEval           = "EVAL_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
)

// EngineError is the structured error type for all trellis operations.
type EngineError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
	Cause   error  `json:"-"`
}

func (e *EngineError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// NewError creates a new EngineError.
func NewError(code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// NewErrorf creates a new EngineError with a formatted message.
func NewErrorf(code, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *EngineError) WithNode(nodeID string) *EngineError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *EngineError) WithCause(err error) *EngineError {
	e.Cause = err
	return e
}

// Fatal reports whether the error aborts the whole run without retrying.
// Handler and timeout errors are retried up to the node's policy; everything
// else ends the run at the first occurrence.
func (e *EngineError) Fatal() bool {
	switch e.Code {
	case ErrCodeHandler, ErrCodeTimeout:
		return false
	default:
		return true
	}
}
