package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mvidal/trellis/internal/actions"
	"github.com/mvidal/trellis/pkg/schema"
)

// fakeHandler is a scriptable handler: it panics on the first panics calls,
// fails the next failures calls (with err when set), then returns output.
type fakeHandler struct {
	name     string
	output   map[string]any
	panics   int
	failures int
	err      error
	delay    time.Duration
	calls    int
}

func (h *fakeHandler) Name() string                  { return h.name }
func (h *fakeHandler) Schema() actions.HandlerSchema { return actions.HandlerSchema{} }

func (h *fakeHandler) Execute(ctx context.Context, node *schema.WorkflowNode, input map[string]any) (map[string]any, error) {
	h.calls++
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	if h.calls <= h.panics {
		panic("handler blew up")
	}
	if h.calls <= h.panics+h.failures {
		if h.err != nil {
			return nil, h.err
		}
		return nil, errors.New("flaky failure")
	}
	return h.output, nil
}

func newTestRunner(t *testing.T, handlers ...actions.Handler) *Runner {
	t.Helper()
	registry := actions.NewRegistry()
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			t.Fatalf("register %s: %v", h.Name(), err)
		}
	}
	return NewRunner(registry, nil)
}

func def(nodes ...schema.WorkflowNode) *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{Name: "test-workflow", Nodes: nodes}
}

func TestRunSingleNode(t *testing.T) {
	h := &fakeHandler{name: "emit", output: map[string]any{"value": "x"}}
	r := newTestRunner(t, h)

	result := r.Run(context.Background(), def(schema.WorkflowNode{ID: "a", Action: "emit"}), "q")

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.RunID == "" {
		t.Error("expected a run ID")
	}
	if len(result.Nodes) != 1 {
		t.Fatalf("expected 1 node record, got %d", len(result.Nodes))
	}
	rec := result.Nodes[0]
	if rec.Status != schema.NodeStatusSuccess || rec.Attempts != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Output["value"] != "x" {
		t.Errorf("expected output value x, got %v", rec.Output)
	}
}

func TestRunWiresOutputsDownstream(t *testing.T) {
	producer := &fakeHandler{name: "produce", output: map[string]any{"body": map[string]any{"value": "hello"}}}
	consumer := &fakeHandler{name: "consume", output: map[string]any{"ok": true}}
	r := newTestRunner(t, producer, consumer)

	d := def(
		schema.WorkflowNode{
			ID: "b", Action: "consume",
			DependsOn: []string{"a"},
			Input:     map[string]any{"v": map[string]any{"$ref": "$.nodes.a.output.body.value"}},
		},
		schema.WorkflowNode{ID: "a", Action: "produce"},
	)

	result := r.Run(context.Background(), d, "")
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Nodes[0].NodeID != "a" || result.Nodes[1].NodeID != "b" {
		t.Fatalf("expected topological order a then b, got %v, %v", result.Nodes[0].NodeID, result.Nodes[1].NodeID)
	}
	if result.Nodes[1].Input["v"] != "hello" {
		t.Errorf("expected resolved input hello, got %v", result.Nodes[1].Input["v"])
	}
}

func TestRunRetrySucceeds(t *testing.T) {
	h := &fakeHandler{name: "flaky", output: map[string]any{"done": true}, failures: 2}
	r := newTestRunner(t, h)

	d := def(schema.WorkflowNode{
		ID: "a", Action: "flaky",
		Retry: &schema.RetryPolicy{MaxAttempts: 3},
	})

	result := r.Run(context.Background(), d, "")
	if !result.Success {
		t.Fatalf("expected success after retries, got error %q", result.Error)
	}
	if result.Nodes[0].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Nodes[0].Attempts)
	}

	retries := 0
	for _, entry := range result.Logs {
		if strings.Contains(entry.Message, "retrying in") {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("expected 2 retry log entries, got %d", retries)
	}
}

func TestRunRetryExhausted(t *testing.T) {
	h := &fakeHandler{name: "flaky", failures: 5}
	r := newTestRunner(t, h)

	d := def(schema.WorkflowNode{
		ID: "a", Action: "flaky",
		Retry: &schema.RetryPolicy{MaxAttempts: 2},
	})

	result := r.Run(context.Background(), d, "")
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, schema.ErrCodeRetryExhausted) {
		t.Errorf("expected %s in %q", schema.ErrCodeRetryExhausted, result.Error)
	}
	if h.calls != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", h.calls)
	}
	rec := result.Nodes[0]
	if rec.Status != schema.NodeStatusError || rec.Attempts != 2 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestRunSingleAttemptFailureNotWrapped(t *testing.T) {
	// Without a retry policy the raw handler error surfaces, not a retry
	// exhaustion wrapper.
	h := &fakeHandler{name: "flaky", failures: 1}
	r := newTestRunner(t, h)

	result := r.Run(context.Background(), def(schema.WorkflowNode{ID: "a", Action: "flaky"}), "")
	if result.Success {
		t.Fatal("expected failure")
	}
	if strings.Contains(result.Error, schema.ErrCodeRetryExhausted) {
		t.Errorf("single attempt must not wrap as retry exhausted: %q", result.Error)
	}
	if !strings.Contains(result.Error, schema.ErrCodeHandler) {
		t.Errorf("expected %s in %q", schema.ErrCodeHandler, result.Error)
	}
}

func TestRunContainsHandlerPanic(t *testing.T) {
	h := &fakeHandler{name: "bomb", panics: 1}
	r := newTestRunner(t, h)

	result := r.Run(context.Background(), def(schema.WorkflowNode{ID: "a", Action: "bomb"}), "")
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, schema.ErrCodeHandler) {
		t.Errorf("expected %s in %q", schema.ErrCodeHandler, result.Error)
	}
	if !strings.Contains(result.Error, "panicked") {
		t.Errorf("expected panic message in %q", result.Error)
	}
}

func TestRunPanicIsRetryable(t *testing.T) {
	h := &fakeHandler{name: "bomb", output: map[string]any{"ok": true}, panics: 1}
	r := newTestRunner(t, h)

	d := def(schema.WorkflowNode{
		ID: "a", Action: "bomb",
		Retry: &schema.RetryPolicy{MaxAttempts: 2},
	})

	result := r.Run(context.Background(), d, "")
	if !result.Success {
		t.Fatalf("expected success after retrying past the panic, got %q", result.Error)
	}
	if result.Nodes[0].Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Nodes[0].Attempts)
	}
}

func TestRunFatalHandlerErrorStopsRetrying(t *testing.T) {
	h := &fakeHandler{
		name:     "strict",
		failures: 5,
		err:      schema.NewError(schema.ErrCodeValidation, "input rejected"),
	}
	r := newTestRunner(t, h)

	d := def(schema.WorkflowNode{
		ID: "a", Action: "strict",
		Retry: &schema.RetryPolicy{MaxAttempts: 3},
	})

	result := r.Run(context.Background(), d, "")
	if result.Success {
		t.Fatal("expected failure")
	}
	if h.calls != 1 {
		t.Errorf("fatal error must not retry, got %d calls", h.calls)
	}
	if !strings.Contains(result.Error, schema.ErrCodeValidation) {
		t.Errorf("expected %s in %q", schema.ErrCodeValidation, result.Error)
	}
	if strings.Contains(result.Error, schema.ErrCodeRetryExhausted) {
		t.Errorf("fatal error must not wrap as retry exhaustion: %q", result.Error)
	}
	if result.Nodes[0].Attempts != 1 {
		t.Errorf("expected 1 attempt recorded, got %d", result.Nodes[0].Attempts)
	}
}

func TestRunMissingHandlerAborts(t *testing.T) {
	h := &fakeHandler{name: "emit", output: map[string]any{}}
	r := newTestRunner(t, h)

	d := def(
		schema.WorkflowNode{ID: "a", Action: "nope"},
		schema.WorkflowNode{ID: "b", Action: "emit", DependsOn: []string{"a"}},
	)

	result := r.Run(context.Background(), d, "")
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, schema.ErrCodeDispatch) {
		t.Errorf("expected %s in %q", schema.ErrCodeDispatch, result.Error)
	}
	// Exactly one terminal record; the downstream node never ran.
	if len(result.Nodes) != 1 || result.Nodes[0].NodeID != "a" {
		t.Fatalf("expected single record for a, got %+v", result.Nodes)
	}
	if h.calls != 0 {
		t.Errorf("downstream handler must not run, got %d calls", h.calls)
	}
}

func TestRunResolutionFailureAborts(t *testing.T) {
	h := &fakeHandler{name: "emit", output: map[string]any{}}
	r := newTestRunner(t, h)

	d := def(schema.WorkflowNode{
		ID: "a", Action: "emit",
		Input: map[string]any{"v": map[string]any{"$ref": "$.nodes.ghost.output.x"}},
	})

	result := r.Run(context.Background(), d, "")
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, schema.ErrCodeResolution) {
		t.Errorf("expected %s in %q", schema.ErrCodeResolution, result.Error)
	}
	if h.calls != 0 {
		t.Errorf("handler must not run on resolution failure, got %d calls", h.calls)
	}
}

func TestRunCycleDetected(t *testing.T) {
	r := newTestRunner(t)

	d := def(
		schema.WorkflowNode{ID: "a", Action: "x", DependsOn: []string{"b"}},
		schema.WorkflowNode{ID: "b", Action: "x", DependsOn: []string{"a"}},
	)

	result := r.Run(context.Background(), d, "")
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, schema.ErrCodeCycleDetected) {
		t.Errorf("expected %s in %q", schema.ErrCodeCycleDetected, result.Error)
	}
	if !strings.Contains(result.Error, "a") || !strings.Contains(result.Error, "b") {
		t.Errorf("cycle error should name both nodes: %q", result.Error)
	}
	if len(result.Nodes) != 0 {
		t.Errorf("no node may run on a cyclic workflow, got %+v", result.Nodes)
	}
}

func TestRunTimeoutAfterCompletion(t *testing.T) {
	h := &fakeHandler{name: "slow", output: map[string]any{}, delay: 30 * time.Millisecond}
	r := newTestRunner(t, h)

	d := def(schema.WorkflowNode{ID: "a", Action: "slow", TimeoutMs: 1})

	result := r.Run(context.Background(), d, "")
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, schema.ErrCodeTimeout) {
		t.Errorf("expected %s in %q", schema.ErrCodeTimeout, result.Error)
	}
	// The handler still completed; the timeout is judged afterwards.
	if h.calls != 1 {
		t.Errorf("expected 1 call, got %d", h.calls)
	}
}

func TestRunMaxNodesLimit(t *testing.T) {
	h := &fakeHandler{name: "emit", output: map[string]any{}}
	r := newTestRunner(t, h)

	d := def(
		schema.WorkflowNode{ID: "a", Action: "emit"},
		schema.WorkflowNode{ID: "b", Action: "emit"},
	)
	d.Limits = &schema.Limits{MaxNodes: 1}

	result := r.Run(context.Background(), d, "")
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, schema.ErrCodeValidation) {
		t.Errorf("expected %s in %q", schema.ErrCodeValidation, result.Error)
	}
	if h.calls != 0 {
		t.Errorf("no node may run past the limit, got %d calls", h.calls)
	}
}

func TestRunIsRepeatable(t *testing.T) {
	h := &fakeHandler{name: "emit", output: map[string]any{"n": 1}}
	r := newTestRunner(t, h)
	d := def(schema.WorkflowNode{ID: "a", Action: "emit"})

	first := r.Run(context.Background(), d, "q")
	second := r.Run(context.Background(), d, "q")

	if !first.Success || !second.Success {
		t.Fatalf("expected both runs to succeed: %q / %q", first.Error, second.Error)
	}
	if first.RunID == second.RunID {
		t.Error("each run must get a fresh run ID")
	}
	if len(second.Nodes) != 1 {
		t.Errorf("second run must not accumulate state, got %d records", len(second.Nodes))
	}
}

func TestWaitForBackoffCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitForBackoff(ctx, time.Minute); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestWaitForBackoffZeroDelay(t *testing.T) {
	if err := WaitForBackoff(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
