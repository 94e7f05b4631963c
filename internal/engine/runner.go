package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mvidal/trellis/internal/actions"
	"github.com/mvidal/trellis/internal/logging"
	"github.com/mvidal/trellis/pkg/schema"
)

// Runner drives workflow executions. A single Runner is shared by concurrent
// runs: each run owns its own execution context and log/record sequences, and
// the handler registry is read-only after startup.
type Runner struct {
	registry actions.Registry
	logger   *slog.Logger
}

// NewRunner creates a Runner backed by the given handler registry.
func NewRunner(registry actions.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{registry: registry, logger: logger}
}

// Run executes a workflow against a query string, strictly sequentially in
// topological order. It never returns an error: every fault below the run
// boundary is translated into log entries and a failed ExecutionResult.
func (r *Runner) Run(ctx context.Context, def *schema.WorkflowDefinition, query string) *schema.ExecutionResult {
	result := &schema.ExecutionResult{
		RunID:    uuid.NewString(),
		Workflow: def.Name,
	}
	ctx = logging.WithWorkflow(logging.WithRunID(ctx, result.RunID), def.Name)

	start := time.Now()
	r.log(ctx, result, schema.LogLevelInfo, "", "starting workflow %q with query %q", def.Name, query)

	if def.Limits != nil && def.Limits.MaxNodes > 0 && len(def.Nodes) > def.Limits.MaxNodes {
		err := schema.NewErrorf(schema.ErrCodeValidation,
			"workflow has %d nodes, exceeding the limit of %d", len(def.Nodes), def.Limits.MaxNodes)
		return r.fail(ctx, result, start, err)
	}

	order, cycle := Sequence(def.Nodes)
	if len(cycle) > 0 {
		err := schema.NewErrorf(schema.ErrCodeCycleDetected,
			"dependency cycle involving nodes: %s", strings.Join(cycle, ", "))
		return r.fail(ctx, result, start, err)
	}

	ectx := make(schema.ExecutionContext, len(order))
	warned := false

	for _, node := range order {
		if def.Limits != nil {
			elapsed := time.Since(start).Milliseconds()
			if def.Limits.MaxRuntimeMs > 0 && elapsed > def.Limits.MaxRuntimeMs {
				err := schema.NewErrorf(schema.ErrCodeTimeout,
					"workflow exceeded max runtime of %dms", def.Limits.MaxRuntimeMs)
				return r.fail(ctx, result, start, err)
			}
			if !warned && def.Limits.WarnAfterMs > 0 && elapsed > def.Limits.WarnAfterMs {
				warned = true
				r.log(ctx, result, schema.LogLevelInfo, "",
					"warning: workflow running for %dms, past the %dms threshold", elapsed, def.Limits.WarnAfterMs)
			}
		}

		nodeCtx := logging.WithNodeID(ctx, node.ID)

		handler, err := r.registry.Get(node.Action)
		if err != nil {
			r.recordTerminal(nodeCtx, result, node, nil, err)
			return r.fail(ctx, result, start, err)
		}

		input, err := ResolveInput(node.Input, query, ectx)
		if err != nil {
			r.recordTerminal(nodeCtx, result, node, nil, err)
			return r.fail(ctx, result, start, err)
		}

		r.log(nodeCtx, result, schema.LogLevelRunning, node.ID, "executing %s", node.Action)

		output, duration, attempts, err := r.attempt(nodeCtx, result, node, handler, input)
		if err != nil {
			result.Nodes = append(result.Nodes, schema.NodeExecution{
				NodeID:     node.ID,
				Action:     node.Action,
				Status:     schema.NodeStatusError,
				DurationMs: duration.Milliseconds(),
				Attempts:   attempts,
				Input:      input,
				Error:      err.Error(),
			})
			return r.fail(ctx, result, start, err)
		}

		ectx[node.ID] = output
		result.Nodes = append(result.Nodes, schema.NodeExecution{
			NodeID:     node.ID,
			Action:     node.Action,
			Status:     schema.NodeStatusSuccess,
			DurationMs: duration.Milliseconds(),
			Attempts:   attempts,
			Input:      input,
			Output:     output,
		})
		r.log(nodeCtx, result, schema.LogLevelSuccess, node.ID, "completed in %dms", duration.Milliseconds())
	}

	result.Success = true
	result.DurationMs = time.Since(start).Milliseconds()
	r.log(ctx, result, schema.LogLevelInfo, "", "workflow completed in %dms", result.DurationMs)
	return result
}

// attempt runs a node's handler under its retry policy. Each attempt measures
// wall-clock duration; an attempt that completes past the node's declared
// timeout counts as failed with a timeout error. A running handler is never
// interrupted: the context is passed in for cooperative cancellation only, and
// the elapsed check happens after the call settles. Errors carrying a fatal
// code end the loop immediately; only handler and timeout failures retry.
func (r *Runner) attempt(ctx context.Context, result *schema.ExecutionResult, node *schema.WorkflowNode, handler actions.Handler, input map[string]any) (map[string]any, time.Duration, int, error) {
	maxAttempts := node.MaxAttempts()
	backoff := time.Duration(node.BackoffMs()) * time.Millisecond

	var lastErr *schema.EngineError
	var duration time.Duration

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		began := time.Now()
		output, err := execute(ctx, handler, node, input)
		duration = time.Since(began)

		if err == nil && node.TimeoutMs > 0 && duration.Milliseconds() > node.TimeoutMs {
			err = schema.NewErrorf(schema.ErrCodeTimeout,
				"handler finished in %dms, exceeding the %dms budget", duration.Milliseconds(), node.TimeoutMs).WithNode(node.ID)
		}

		if err == nil {
			if output == nil {
				output = map[string]any{}
			}
			return output, duration, attempt, nil
		}

		lastErr = asHandlerError(err, node.ID)

		if lastErr.Fatal() {
			return nil, duration, attempt, lastErr
		}

		if attempt < maxAttempts {
			r.log(ctx, result, schema.LogLevelInfo, node.ID,
				"attempt %d/%d failed: %v; retrying in %dms", attempt, maxAttempts, lastErr, node.BackoffMs())
			if werr := WaitForBackoff(ctx, backoff); werr != nil {
				return nil, duration, attempt, schema.NewErrorf(schema.ErrCodeHandler,
					"run cancelled while waiting to retry: %s", werr.Error()).WithNode(node.ID).WithCause(werr)
			}
			continue
		}
	}

	if maxAttempts > 1 {
		return nil, duration, maxAttempts, schema.NewErrorf(schema.ErrCodeRetryExhausted,
			"%d attempts failed; last error: %s", maxAttempts, lastErr.Error()).WithNode(node.ID).WithCause(lastErr)
	}
	return nil, duration, maxAttempts, lastErr
}

// execute runs one handler attempt, converting a panic into a handler error so
// a misbehaving handler cannot tear down the run.
func execute(ctx context.Context, handler actions.Handler, node *schema.WorkflowNode, input map[string]any) (output map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			output = nil
			err = schema.NewErrorf(schema.ErrCodeHandler, "handler panicked: %v", rec).WithNode(node.ID)
		}
	}()
	return handler.Execute(ctx, node, input)
}

// asHandlerError wraps non-engine errors from handlers into HANDLER_ERROR so
// the result carries a coded message. Engine errors pass through with the node
// ID attached.
func asHandlerError(err error, nodeID string) *schema.EngineError {
	if ee, ok := err.(*schema.EngineError); ok {
		if ee.NodeID == "" {
			ee.NodeID = nodeID
		}
		return ee
	}
	return schema.NewErrorf(schema.ErrCodeHandler, "%s", err.Error()).WithNode(nodeID).WithCause(err)
}

// recordTerminal appends the single terminal record for a node that never ran:
// missing handler or unresolvable input.
func (r *Runner) recordTerminal(ctx context.Context, result *schema.ExecutionResult, node *schema.WorkflowNode, input map[string]any, err error) {
	result.Nodes = append(result.Nodes, schema.NodeExecution{
		NodeID: node.ID,
		Action: node.Action,
		Status: schema.NodeStatusError,
		Input:  input,
		Error:  err.Error(),
	})
}

// fail closes out a run after a fatal condition.
func (r *Runner) fail(ctx context.Context, result *schema.ExecutionResult, start time.Time, err error) *schema.ExecutionResult {
	nodeID := ""
	if ee, ok := err.(*schema.EngineError); ok {
		nodeID = ee.NodeID
	}
	r.log(ctx, result, schema.LogLevelError, nodeID, "%s", err.Error())
	result.Success = false
	result.Error = err.Error()
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

// log appends a chronological entry to the result and mirrors it to slog.
func (r *Runner) log(ctx context.Context, result *schema.ExecutionResult, level, nodeID, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	result.Logs = append(result.Logs, schema.LogEntry{
		Time:    time.Now().UTC(),
		Level:   level,
		Message: msg,
		NodeID:  nodeID,
	})

	switch level {
	case schema.LogLevelError:
		r.logger.ErrorContext(ctx, msg)
	default:
		r.logger.InfoContext(ctx, msg)
	}
}
