package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/flowgraph/internal/adapters/events"
	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runWorkflow executes the workflow and returns the result plus every
// event published during the run.
func runWorkflow(
	t *testing.T,
	registry ports.NodeRegistryPort,
	workflow *domain.Workflow,
	inputs map[string]domain.Value,
) (*domain.ExecutionResult, error, []domain.ExecutionEvent) {
	t.Helper()

	bus := events.NewBus(4096, nil)
	stream := bus.Subscribe()
	executor := NewExecutor(registry, bus, nil)

	result, err := executor.Execute(context.Background(), workflow, inputs, nil)

	var collected []domain.ExecutionEvent
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		event, recvErr := stream.Recv(ctx)
		cancel()
		if recvErr != nil {
			break
		}
		collected = append(collected, event)
		if event.Type == domain.EventWorkflowCompleted {
			break
		}
	}
	return result, err, collected
}

func eventsOfType(all []domain.ExecutionEvent, kind domain.ExecutionEventType) []domain.ExecutionEvent {
	var out []domain.ExecutionEvent
	for _, event := range all {
		if event.Type == kind {
			out = append(out, event)
		}
	}
	return out
}

func emitFactory(nodeType string, execute func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error)) *testFactory {
	return &testFactory{
		nodeType: nodeType,
		build: func(config map[string]domain.Value) (ports.Node, error) {
			return &testNode{nodeType: nodeType, execute: execute}, nil
		},
	}
}

func TestExecutor_LinearChain(t *testing.T) {
	var recorded string
	var mu sync.Mutex

	registry := newTestRegistry(t,
		emitFactory("test.emit", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			return ports.NewNodeOutput().WithOutput("out", domain.StringValue("hello")), nil
		}),
		emitFactory("test.upper", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			in, err := nc.RequireInput("in")
			if err != nil {
				return nil, err
			}
			text, ok := in.AsString()
			if !ok {
				return nil, domain.NewInvalidInputTypeError("in", "string", string(in.Kind()))
			}
			upper := ""
			for _, r := range text {
				if r >= 'a' && r <= 'z' {
					r = r - 'a' + 'A'
				}
				upper += string(r)
			}
			return ports.NewNodeOutput().WithOutput("out", domain.StringValue(upper)), nil
		}),
		emitFactory("test.record", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			msg, err := nc.RequireInput("msg")
			if err != nil {
				return nil, err
			}
			text, _ := msg.AsString()
			mu.Lock()
			recorded = text
			mu.Unlock()
			return ports.NewNodeOutput(), nil
		}),
	)

	w := domain.NewWorkflow("chain")
	w.AddNode(domain.NewNodeSpec("a", "test.emit"))
	w.AddNode(domain.NewNodeSpec("b", "test.upper"))
	w.AddNode(domain.NewNodeSpec("c", "test.record"))
	w.Connect("a", "out", "b", "in")
	w.Connect("b", "out", "c", "msg")

	result, err, collected := runWorkflow(t, registry, w, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.CompletedNodes)
	assert.Equal(t, 0, result.FailedNodes)
	assert.Equal(t, "HELLO", recorded)

	started := eventsOfType(collected, domain.EventNodeStarted)
	completed := eventsOfType(collected, domain.EventNodeCompleted)
	require.Len(t, started, 3)
	require.Len(t, completed, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{started[0].NodeID, started[1].NodeID, started[2].NodeID})
}

func TestExecutor_DiamondParallelism(t *testing.T) {
	registry := newTestRegistry(t,
		emitFactory("test.source", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			return ports.NewNodeOutput().WithOutput("x", domain.NumberValue(1)), nil
		}),
		emitFactory("test.double", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			x, err := nc.RequireInput("x")
			if err != nil {
				return nil, err
			}
			n, _ := x.AsFloat()
			return ports.NewNodeOutput().WithOutput("y", domain.NumberValue(n*2)), nil
		}),
		emitFactory("test.triple", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			x, err := nc.RequireInput("x")
			if err != nil {
				return nil, err
			}
			n, _ := x.AsFloat()
			return ports.NewNodeOutput().WithOutput("y", domain.NumberValue(n*3)), nil
		}),
		emitFactory("test.sum", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			l, err := nc.RequireInput("l")
			if err != nil {
				return nil, err
			}
			r, err := nc.RequireInput("r")
			if err != nil {
				return nil, err
			}
			lf, _ := l.AsFloat()
			rf, _ := r.AsFloat()
			return ports.NewNodeOutput().WithOutput("sum", domain.NumberValue(lf+rf)), nil
		}),
	)

	w := domain.NewWorkflow("diamond")
	w.Settings.MaxParallelNodes = 2
	w.AddNode(domain.NewNodeSpec("s", "test.source"))
	w.AddNode(domain.NewNodeSpec("l", "test.double"))
	w.AddNode(domain.NewNodeSpec("r", "test.triple"))
	w.AddNode(domain.NewNodeSpec("j", "test.sum"))
	w.Connect("s", "x", "l", "x")
	w.Connect("s", "x", "r", "x")
	w.Connect("l", "y", "j", "l")
	w.Connect("r", "y", "j", "r")

	result, err, collected := runWorkflow(t, registry, w, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, result.CompletedNodes)

	sum, ok := result.NodeOutputs["j"]["sum"].AsFloat()
	require.True(t, ok)
	assert.Equal(t, 5.0, sum)

	// The join must not start before both branches completed.
	var joinStartedAt, leftCompletedAt, rightCompletedAt int
	for i, event := range collected {
		switch {
		case event.Type == domain.EventNodeStarted && event.NodeID == "j":
			joinStartedAt = i
		case event.Type == domain.EventNodeCompleted && event.NodeID == "l":
			leftCompletedAt = i
		case event.Type == domain.EventNodeCompleted && event.NodeID == "r":
			rightCompletedAt = i
		}
	}
	assert.Greater(t, joinStartedAt, leftCompletedAt)
	assert.Greater(t, joinStartedAt, rightCompletedAt)
}

func TestExecutor_ParallelismBound(t *testing.T) {
	const limit = 2
	var running, peak int32

	registry := newTestRegistry(t,
		emitFactory("test.busy", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			now := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return ports.NewNodeOutput(), nil
		}),
	)

	w := domain.NewWorkflow("wide")
	w.Settings.MaxParallelNodes = limit
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		w.AddNode(domain.NewNodeSpec(id, "test.busy"))
	}

	result, err, _ := runWorkflow(t, registry, w, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, result.CompletedNodes)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(limit))
}

func TestExecutor_RootNodesSeeWorkflowInputs(t *testing.T) {
	var seen map[string]domain.Value
	var mu sync.Mutex

	registry := newTestRegistry(t,
		emitFactory("test.root", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			mu.Lock()
			seen = nc.Inputs
			mu.Unlock()
			return ports.NewNodeOutput(), nil
		}),
	)

	w := domain.NewWorkflow("roots")
	w.AddNode(domain.NewNodeSpec("a", "test.root"))

	inputs := map[string]domain.Value{
		"name":  domain.StringValue("world"),
		"count": domain.IntValue(3),
	}
	_, err, _ := runWorkflow(t, registry, w, inputs)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	name, _ := seen["name"].AsString()
	assert.Equal(t, "world", name)
}

func TestExecutor_StopWorkflowOnFailure(t *testing.T) {
	registry := newTestRegistry(t,
		emitFactory("test.ok", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			return ports.NewNodeOutput().WithOutput("out", domain.StringValue("ok")), nil
		}),
		emitFactory("test.fail", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			return nil, domain.NewExecutionError("boom")
		}),
	)

	w := domain.NewWorkflow("stop")
	w.Settings.OnError = domain.ErrorHandling{Mode: domain.ErrorModeStopWorkflow}
	w.AddNode(domain.NewNodeSpec("a", "test.ok"))
	w.AddNode(domain.NewNodeSpec("b", "test.fail"))
	w.AddNode(domain.NewNodeSpec("c", "test.ok"))
	w.Connect("a", "out", "b", "in")
	w.Connect("b", "out", "c", "in")

	result, err, collected := runWorkflow(t, registry, w, nil)
	assert.Nil(t, result)
	require.Error(t, err)

	var runtimeErr *domain.RuntimeError
	require.True(t, errors.As(err, &runtimeErr))
	assert.NotEmpty(t, runtimeErr.ExecutionID)

	var nodeErr *domain.NodeError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, domain.NodeErrExecutionFailed, nodeErr.Kind)

	failed := eventsOfType(collected, domain.EventNodeFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].NodeID)

	completedEvents := eventsOfType(collected, domain.EventWorkflowCompleted)
	require.Len(t, completedEvents, 1)
	require.NotNil(t, completedEvents[0].Success)
	assert.False(t, *completedEvents[0].Success)

	// c must never have started.
	for _, event := range eventsOfType(collected, domain.EventNodeStarted) {
		assert.NotEqual(t, "c", event.NodeID)
	}
}

func TestExecutor_ContinueOnError(t *testing.T) {
	registry := newTestRegistry(t,
		emitFactory("test.ok", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			return ports.NewNodeOutput().WithOutput("out", domain.StringValue("ok")), nil
		}),
		emitFactory("test.fail", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			return nil, domain.NewExecutionError("boom")
		}),
	)

	// Two independent branches: a->b with b failing, c->d untouched.
	w := domain.NewWorkflow("continue")
	w.Settings.OnError = domain.ErrorHandling{Mode: domain.ErrorModeContinueOnError}
	w.AddNode(domain.NewNodeSpec("a", "test.ok"))
	w.AddNode(domain.NewNodeSpec("b", "test.fail"))
	w.AddNode(domain.NewNodeSpec("c", "test.ok"))
	w.AddNode(domain.NewNodeSpec("d", "test.ok"))
	w.Connect("a", "out", "b", "in")
	w.Connect("c", "out", "d", "in")

	result, err, _ := runWorkflow(t, registry, w, nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 3, result.CompletedNodes)
	assert.Equal(t, 1, result.FailedNodes)
	assert.Equal(t, 0, result.SkippedNodes)
	assert.Equal(t, result.TotalNodes, result.CompletedNodes+result.FailedNodes+result.SkippedNodes)
}

func TestExecutor_ContinueOnError_SkipsDownstream(t *testing.T) {
	registry := newTestRegistry(t,
		emitFactory("test.ok", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			return ports.NewNodeOutput().WithOutput("out", domain.StringValue("ok")), nil
		}),
		emitFactory("test.fail", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			return nil, domain.NewExecutionError("boom")
		}),
	)

	w := domain.NewWorkflow("skip-downstream")
	w.Settings.OnError = domain.ErrorHandling{Mode: domain.ErrorModeContinueOnError}
	w.AddNode(domain.NewNodeSpec("a", "test.fail"))
	w.AddNode(domain.NewNodeSpec("b", "test.ok"))
	w.AddNode(domain.NewNodeSpec("c", "test.ok"))
	w.Connect("a", "out", "b", "in")
	w.Connect("b", "out", "c", "in")

	result, err, collected := runWorkflow(t, registry, w, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.CompletedNodes)
	assert.Equal(t, 1, result.FailedNodes)
	assert.Equal(t, 2, result.SkippedNodes)

	for _, event := range eventsOfType(collected, domain.EventNodeStarted) {
		assert.Equal(t, "a", event.NodeID)
	}
}

func TestExecutor_RetryWorkflow(t *testing.T) {
	var calls int32
	registry := newTestRegistry(t,
		emitFactory("test.flaky", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return nil, domain.NewExecutionError("transient")
			}
			return ports.NewNodeOutput(), nil
		}),
	)

	w := domain.NewWorkflow("retry-workflow")
	w.Settings.OnError = domain.ErrorHandling{Mode: domain.ErrorModeRetryWorkflow, MaxAttempts: 2}
	w.AddNode(domain.NewNodeSpec("a", "test.flaky"))

	result, err, collected := runWorkflow(t, registry, w, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CompletedNodes)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	// One envelope per Execute call even across internal restarts.
	assert.Len(t, eventsOfType(collected, domain.EventWorkflowStarted), 1)
	assert.Len(t, eventsOfType(collected, domain.EventWorkflowCompleted), 1)
}

func TestExecutor_RetryWorkflow_Exhausted(t *testing.T) {
	registry := newTestRegistry(t,
		emitFactory("test.fail", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			return nil, domain.NewExecutionError("boom")
		}),
	)

	w := domain.NewWorkflow("retry-exhausted")
	w.Settings.OnError = domain.ErrorHandling{Mode: domain.ErrorModeRetryWorkflow, MaxAttempts: 1}
	w.AddNode(domain.NewNodeSpec("a", "test.fail"))

	result, err, _ := runWorkflow(t, registry, w, nil)
	assert.Nil(t, result)
	require.Error(t, err)

	var runtimeErr *domain.RuntimeError
	require.True(t, errors.As(err, &runtimeErr))
}

func TestExecutor_InitializeFailureAbortsRun(t *testing.T) {
	var executed int32
	registry := newTestRegistry(t,
		&testFactory{
			nodeType: "test.badinit",
			build: func(config map[string]domain.Value) (ports.Node, error) {
				base := &testNode{
					nodeType: "test.badinit",
					initialize: func(ctx context.Context) error {
						return domain.NewInitializationError("no database")
					},
					execute: func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
						atomic.AddInt32(&executed, 1)
						return ports.NewNodeOutput(), nil
					},
				}
				return &initNode{testNode: base}, nil
			},
		},
	)

	w := domain.NewWorkflow("bad-init")
	w.AddNode(domain.NewNodeSpec("a", "test.badinit"))

	result, err, collected := runWorkflow(t, registry, w, nil)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&executed))

	completedEvents := eventsOfType(collected, domain.EventWorkflowCompleted)
	require.Len(t, completedEvents, 1)
	assert.False(t, *completedEvents[0].Success)
	assert.Empty(t, eventsOfType(collected, domain.EventNodeStarted))
}

func TestExecutor_ShutdownErrorsBecomeWarnings(t *testing.T) {
	registry := newTestRegistry(t,
		&testFactory{
			nodeType: "test.badshutdown",
			build: func(config map[string]domain.Value) (ports.Node, error) {
				base := &testNode{
					nodeType: "test.badshutdown",
					shutdown: func(ctx context.Context) error {
						return errors.New("leak")
					},
				}
				return &finalizerNode{testNode: base}, nil
			},
		},
	)

	w := domain.NewWorkflow("bad-shutdown")
	w.AddNode(domain.NewNodeSpec("a", "test.badshutdown"))

	result, err, _ := runWorkflow(t, registry, w, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CompletedNodes)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "shutdown")
}

func TestExecutor_PerNodeTimeout(t *testing.T) {
	registry := newTestRegistry(t,
		emitFactory("test.slow", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			select {
			case <-time.After(5 * time.Second):
				return ports.NewNodeOutput(), nil
			case <-ctx.Done():
				return nil, domain.NewNodeCancelledError()
			}
		}),
	)

	w := domain.NewWorkflow("timeout")
	w.AddNode(domain.NewNodeSpec("a", "test.slow").WithTimeout(30))

	start := time.Now()
	result, err, collected := runWorkflow(t, registry, w, nil)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	failed := eventsOfType(collected, domain.EventNodeFailed)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].Error)
	assert.Equal(t, domain.NodeErrTimeout, failed[0].Error.Kind)
}

func TestExecutor_TimeoutIsRetryable(t *testing.T) {
	var calls int32
	registry := newTestRegistry(t,
		emitFactory("test.slowfirst", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
					return nil, domain.NewNodeCancelledError()
				}
			}
			return ports.NewNodeOutput(), nil
		}),
	)

	w := domain.NewWorkflow("timeout-retry")
	w.AddNode(domain.NewNodeSpec("a", "test.slowfirst").
		WithTimeout(30).
		WithRetry(2, 1, 1.0))

	result, err, _ := runWorkflow(t, registry, w, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CompletedNodes)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExecutor_Cancellation(t *testing.T) {
	registry := newTestRegistry(t,
		emitFactory("test.block", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			select {
			case <-nc.Cancellation.Done():
				return nil, domain.NewNodeCancelledError()
			case <-time.After(10 * time.Second):
				return ports.NewNodeOutput(), nil
			}
		}),
	)

	w := domain.NewWorkflow("cancel")
	w.AddNode(domain.NewNodeSpec("a", "test.block"))
	w.AddNode(domain.NewNodeSpec("b", "test.block"))
	w.Connect("a", "out", "b", "in")

	bus := events.NewBus(1024, nil)
	stream := bus.Subscribe()
	executor := NewExecutor(registry, bus, nil)

	var token *domain.CancelToken
	tokenReady := make(chan struct{})
	go func() {
		<-tokenReady
		time.Sleep(30 * time.Millisecond)
		token.Cancel()
	}()

	start := time.Now()
	result, err := executor.Execute(context.Background(), w, nil, func(id string, cancel *domain.CancelToken) {
		token = cancel
		close(tokenReady)
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	// Drain events; the run must close with success=false.
	var last domain.ExecutionEvent
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		event, recvErr := stream.Recv(ctx)
		cancel()
		if recvErr != nil {
			break
		}
		last = event
		if event.Type == domain.EventWorkflowCompleted {
			break
		}
	}
	require.Equal(t, domain.EventWorkflowCompleted, last.Type)
	assert.False(t, *last.Success)
}

func TestExecutor_WorkflowDeadline(t *testing.T) {
	registry := newTestRegistry(t,
		emitFactory("test.block", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			select {
			case <-nc.Cancellation.Done():
				return nil, domain.NewNodeCancelledError()
			case <-time.After(10 * time.Second):
				return ports.NewNodeOutput(), nil
			}
		}),
	)

	w := domain.NewWorkflow("deadline")
	w.Settings.MaxExecutionTime = 50
	w.AddNode(domain.NewNodeSpec("a", "test.block"))

	start := time.Now()
	result, err, _ := runWorkflow(t, registry, w, nil)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecutor_NoCompletedEventAfterWorkflowCompleted(t *testing.T) {
	registry := newTestRegistry(t, &testFactory{nodeType: "test.node"})

	w := domain.NewWorkflow("ordering")
	w.AddNode(domain.NewNodeSpec("a", "test.node"))
	w.AddNode(domain.NewNodeSpec("b", "test.node"))
	w.Connect("a", "out", "b", "in")

	_, err, collected := runWorkflow(t, registry, w, nil)
	require.NoError(t, err)

	sawWorkflowCompleted := false
	for _, event := range collected {
		if sawWorkflowCompleted {
			t.Fatalf("event %s published after WorkflowCompleted", event.Type)
		}
		if event.Type == domain.EventWorkflowCompleted {
			sawWorkflowCompleted = true
		}
	}
	assert.True(t, sawWorkflowCompleted)
}

func TestExecutor_UpstreamCompletedBeforeDownstreamStarted(t *testing.T) {
	registry := newTestRegistry(t,
		emitFactory("test.pass", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			return ports.NewNodeOutput().WithOutput("out", domain.StringValue("v")), nil
		}),
	)

	w := domain.NewWorkflow("causal")
	w.AddNode(domain.NewNodeSpec("u", "test.pass"))
	w.AddNode(domain.NewNodeSpec("v", "test.pass"))
	w.Connect("u", "out", "v", "in")

	_, err, collected := runWorkflow(t, registry, w, nil)
	require.NoError(t, err)

	upstreamCompleted := -1
	downstreamStarted := -1
	for i, event := range collected {
		if event.Type == domain.EventNodeCompleted && event.NodeID == "u" {
			upstreamCompleted = i
		}
		if event.Type == domain.EventNodeStarted && event.NodeID == "v" {
			downstreamStarted = i
		}
	}
	require.GreaterOrEqual(t, upstreamCompleted, 0)
	require.GreaterOrEqual(t, downstreamStarted, 0)
	assert.Greater(t, downstreamStarted, upstreamCompleted)
}

func TestExecutor_AbsentOutputPortLeavesInputUnset(t *testing.T) {
	var seen map[string]domain.Value
	var mu sync.Mutex

	registry := newTestRegistry(t,
		emitFactory("test.partial", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			// Only "present" is produced; "ghost" never appears.
			return ports.NewNodeOutput().WithOutput("present", domain.StringValue("v")), nil
		}),
		emitFactory("test.sink", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			mu.Lock()
			seen = nc.Inputs
			mu.Unlock()
			return ports.NewNodeOutput(), nil
		}),
	)

	w := domain.NewWorkflow("absent-port")
	w.AddNode(domain.NewNodeSpec("a", "test.partial"))
	w.AddNode(domain.NewNodeSpec("b", "test.sink"))
	w.Connect("a", "present", "b", "in")
	w.Connect("a", "ghost", "b", "missing")

	result, err, _ := runWorkflow(t, registry, w, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.CompletedNodes)

	mu.Lock()
	defer mu.Unlock()
	_, hasPresent := seen["in"]
	_, hasMissing := seen["missing"]
	assert.True(t, hasPresent)
	assert.False(t, hasMissing)
}

func TestExecutor_DeadlockGuard(t *testing.T) {
	registry := newTestRegistry(t, &testFactory{nodeType: "test.node"})

	// A hand-built plan whose only node waits on a producer that does not
	// exist; validation would reject this, so the guard is the backstop.
	w := domain.NewWorkflow("wedged")
	spec := domain.NewNodeSpec("x", "test.node")
	w.AddNode(spec)
	plan := &Plan{
		workflow: w,
		nodes: map[string]*planNode{
			"x": {
				spec:     spec,
				incoming: []domain.Connection{{FromNode: "ghost", FromPort: "out", ToNode: "x", ToPort: "in"}},
			},
		},
		order: []string{"x"},
	}

	bus := events.NewBus(64, nil)
	executor := NewExecutor(registry, bus, nil)

	_, _, err := executor.runOnce(context.Background(), plan, "exec-wedged", nil, nil)
	require.Error(t, err)

	var internalErr *domain.InternalError
	require.True(t, errors.As(err, &internalErr))
	assert.Equal(t, []string{"x"}, internalErr.UnreachableNodes)
}

func TestExecutor_SharedStateVisibleAcrossNodes(t *testing.T) {
	registry := newTestRegistry(t,
		emitFactory("test.writer", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			nc.State.Set("token", domain.StringValue("shared"))
			return ports.NewNodeOutput().WithOutput("out", domain.NullValue()), nil
		}),
		emitFactory("test.reader", func(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
			value, ok := nc.State.Get("token")
			if !ok {
				return nil, domain.NewExecutionError("scratchpad value missing")
			}
			return ports.NewNodeOutput().WithOutput("echo", value), nil
		}),
	)

	w := domain.NewWorkflow("scratchpad")
	w.AddNode(domain.NewNodeSpec("w", "test.writer"))
	w.AddNode(domain.NewNodeSpec("r", "test.reader"))
	w.Connect("w", "out", "r", "in")

	result, err, _ := runWorkflow(t, registry, w, nil)
	require.NoError(t, err)
	echo, ok := result.NodeOutputs["r"]["echo"].AsString()
	require.True(t, ok)
	assert.Equal(t, "shared", echo)
}
