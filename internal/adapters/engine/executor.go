package engine

import (
	"container/heap"
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
	"github.com/google/uuid"
)

// Executor runs one workflow instance to completion: it maintains
// per-node readiness, dispatches under the parallelism cap, routes
// outputs to downstream inputs, applies retry policies and timeouts, and
// narrates progress on the event bus.
type Executor struct {
	registry ports.NodeRegistryPort
	bus      ports.EventBusPort
	logger   *slog.Logger
}

func NewExecutor(registry ports.NodeRegistryPort, bus ports.EventBusPort, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		bus:      bus,
		logger:   logger.With("component", "executor"),
	}
}

// Execute validates, plans and runs the workflow. The token handed to
// onStart is live for the duration of the call; Cancel on it aborts the
// run.
func (e *Executor) Execute(
	ctx context.Context,
	workflow *domain.Workflow,
	inputs map[string]domain.Value,
	onStart func(executionID string, cancel *domain.CancelToken),
) (*domain.ExecutionResult, error) {
	plan, err := BuildPlan(workflow, e.registry, e.logger)
	if err != nil {
		return nil, err
	}

	executionID := uuid.New().String()
	startTime := time.Now()

	e.bus.Publish(domain.NewWorkflowStartedEvent(executionID, workflow.ID))
	e.logger.Info("starting workflow execution",
		"workflow_id", workflow.ID,
		"execution_id", executionID,
		"total_nodes", len(workflow.Nodes),
	)

	runAttempts := 1
	if workflow.Settings.OnError.Mode == domain.ErrorModeRetryWorkflow {
		runAttempts = 1 + workflow.Settings.OnError.MaxAttempts
	}

	var result *domain.ExecutionResult
	var firstFailure *domain.NodeError
	var runErr error
	for attempt := 0; attempt < runAttempts; attempt++ {
		if attempt > 0 {
			e.logger.Info("restarting workflow from scratch",
				"workflow_id", workflow.ID,
				"execution_id", executionID,
				"workflow_attempt", attempt+1,
			)
		}
		result, firstFailure, runErr = e.runOnce(ctx, plan, executionID, inputs, onStart)
		if runErr == nil && result.FailedNodes == 0 {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	durationMS := time.Since(startTime).Milliseconds()
	success := runErr == nil && result != nil && result.FailedNodes == 0 && result.SkippedNodes == 0
	e.bus.Publish(domain.NewWorkflowCompletedEvent(executionID, success, durationMS))

	if runErr != nil {
		e.logger.Error("workflow execution failed",
			"workflow_id", workflow.ID,
			"execution_id", executionID,
			"error", runErr.Error(),
		)
		return nil, domain.NewRuntimeError(executionID, runErr.Error(), runErr)
	}

	result.DurationMS = durationMS
	e.logger.Info("workflow execution finished",
		"workflow_id", workflow.ID,
		"execution_id", executionID,
		"success", success,
		"completed_nodes", result.CompletedNodes,
		"failed_nodes", result.FailedNodes,
		"skipped_nodes", result.SkippedNodes,
		"duration_ms", durationMS,
	)

	if workflow.Settings.OnError.Mode != domain.ErrorModeContinueOnError && result.FailedNodes > 0 {
		return nil, domain.NewRuntimeError(executionID, "workflow stopped on node failure", firstFailure)
	}

	return result, nil
}

type completion struct {
	nodeID string
	result invocationResult
}

// runOnce executes the DAG once against a fresh ExecutionState and fresh
// node instances.
func (e *Executor) runOnce(
	ctx context.Context,
	plan *Plan,
	executionID string,
	inputs map[string]domain.Value,
	onStart func(executionID string, cancel *domain.CancelToken),
) (*domain.ExecutionResult, *domain.NodeError, error) {
	st := newExecutionState(executionID, plan, inputs)
	if onStart != nil {
		onStart(executionID, st.cancel)
	}

	instances, err := plan.Instantiate(e.registry)
	if err != nil {
		return nil, nil, err
	}

	runCtx := ctx
	var cancelRun context.CancelFunc
	if maxMS := plan.workflow.Settings.MaxExecutionTime; maxMS > 0 {
		runCtx, cancelRun = context.WithTimeout(ctx, time.Duration(maxMS)*time.Millisecond)
	} else {
		runCtx, cancelRun = context.WithCancel(ctx)
	}
	defer cancelRun()

	// External cancellation and the workflow deadline both funnel into
	// the run token the contexts poll.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-runCtx.Done():
			st.cancel.Cancel()
		case <-st.cancel.Done():
		case <-watcherDone:
		}
	}()

	if err := e.initializeNodes(runCtx, plan, instances, st); err != nil {
		e.shutdownNodes(plan, instances, st)
		return nil, nil, err
	}

	result, firstFailure, runErr := e.drive(runCtx, plan, instances, st)

	e.shutdownNodes(plan, instances, st)
	if result != nil {
		result.Warnings = st.warnings
	}
	return result, firstFailure, runErr
}

func (e *Executor) initializeNodes(ctx context.Context, plan *Plan, instances map[string]ports.Node, st *executionState) error {
	for _, id := range plan.order {
		init, ok := instances[id].(ports.Initializer)
		if !ok {
			continue
		}
		if err := init.Initialize(ctx); err != nil {
			e.logger.Error("node initialization failed",
				"execution_id", st.executionID,
				"node_id", id,
				"error", err.Error(),
			)
			return domain.NewInitializationError("node " + id + ": " + err.Error())
		}
	}
	return nil
}

func (e *Executor) shutdownNodes(plan *Plan, instances map[string]ports.Node, st *executionState) {
	for _, id := range plan.order {
		fin, ok := instances[id].(ports.Finalizer)
		if !ok {
			continue
		}
		if err := fin.Shutdown(context.Background()); err != nil {
			e.logger.Warn("node shutdown failed",
				"execution_id", st.executionID,
				"node_id", id,
				"error", err.Error(),
			)
			st.warnings = append(st.warnings, "node "+id+" shutdown: "+err.Error())
		}
	}
}

// drive is the scheduler main loop: admit ready nodes under the
// parallelism cap, await the next completion, route its outputs, repeat
// until every node is terminal.
func (e *Executor) drive(
	ctx context.Context,
	plan *Plan,
	instances map[string]ports.Node,
	st *executionState,
) (*domain.ExecutionResult, *domain.NodeError, error) {
	settings := plan.workflow.Settings
	ready := newReadyQueue()
	completions := make(chan completion, len(plan.nodes))
	running := 0
	stopping := false
	var firstFailure *domain.NodeError

	for id, pn := range plan.nodes {
		if len(pn.incoming) == 0 {
			st.setStatus(id, domain.NodeStatusReady)
			ready.push(readyItem{nodeID: id, topoIndex: pn.topoIndex})
		}
	}

	for {
		for !stopping && running < settings.MaxParallelNodes && ready.Len() > 0 {
			item := ready.pop()
			e.dispatch(ctx, plan, instances, st, item.nodeID, completions)
			running++
		}

		if running == 0 {
			if st.allTerminal() {
				break
			}
			if stopping || st.cancel.IsCancelled() {
				e.skipRemaining(st)
				break
			}
			unreachable := st.nonTerminalNodes()
			e.logger.Error("scheduler wedged with non-terminal nodes",
				"execution_id", st.executionID,
				"unreachable", unreachable,
			)
			return nil, nil, &domain.InternalError{UnreachableNodes: unreachable}
		}

		c := <-completions
		running--

		if c.result.err == nil {
			e.handleSuccess(plan, st, ready, c)
			continue
		}

		nodeErr := c.result.err
		st.markFailed(c.nodeID, nodeErr, c.result.attempts)
		e.bus.Publish(domain.NewNodeFailedEvent(st.executionID, c.nodeID, nodeErr, c.result.attempts))
		e.logger.Error("node failed",
			"execution_id", st.executionID,
			"node_id", c.nodeID,
			"error", nodeErr.Error(),
			"attempts", c.result.attempts,
		)
		if firstFailure == nil {
			firstFailure = nodeErr
		}

		switch settings.OnError.Mode {
		case domain.ErrorModeContinueOnError:
			e.skipDownstream(plan, st, c.nodeID)
		default:
			// StopWorkflow semantics; RetryWorkflow restarts outside.
			if !stopping {
				stopping = true
				st.cancel.Cancel()
				e.skipPendingAndReady(st, ready)
			}
		}
	}

	completed, failed, skipped := st.counts()
	result := &domain.ExecutionResult{
		ExecutionID:    st.executionID,
		WorkflowID:     st.workflowID,
		TotalNodes:     len(plan.nodes),
		CompletedNodes: completed,
		FailedNodes:    failed,
		SkippedNodes:   skipped,
		NodeOutputs:    st.nodeOutputs(),
	}
	return result, firstFailure, nil
}

// dispatch transitions a ready node to Running and spawns its invocation.
func (e *Executor) dispatch(
	ctx context.Context,
	plan *Plan,
	instances map[string]ports.Node,
	st *executionState,
	nodeID string,
	completions chan<- completion,
) {
	pn := plan.nodes[nodeID]
	node := instances[nodeID]
	st.markRunning(nodeID)

	inputs := st.inputsFor(nodeID)
	spec := pn.spec
	executionID := st.executionID
	shared := st.shared
	runToken := st.cancel
	bus := e.bus

	e.bus.Publish(domain.NewNodeStartedEvent(executionID, nodeID, spec.NodeType))
	e.logger.Debug("dispatching node",
		"execution_id", executionID,
		"node_id", nodeID,
		"node_type", spec.NodeType,
		"topo_index", pn.topoIndex,
	)

	go func() {
		buildContext := func() *ports.NodeContext {
			ctxInputs := make(map[string]domain.Value, len(inputs))
			for k, v := range inputs {
				ctxInputs[k] = v
			}
			return &ports.NodeContext{
				ExecutionID:  executionID,
				NodeID:       nodeID,
				Inputs:       ctxInputs,
				Config:       spec.Config,
				State:        shared,
				Events:       ports.NewEventEmitter(executionID, nodeID, bus),
				Cancellation: domain.NewCancelToken(),
			}
		}
		result := executeWithRetry(ctx, spec, node, runToken, buildContext)
		completions <- completion{nodeID: nodeID, result: result}
	}()
}

// handleSuccess records outputs and routes them along outgoing
// connections; destinations whose dependency count reaches zero become
// Ready.
func (e *Executor) handleSuccess(plan *Plan, st *executionState, ready *readyQueue, c completion) {
	outputs := map[string]domain.Value{}
	if c.result.output != nil && c.result.output.Outputs != nil {
		outputs = c.result.output.Outputs
	}
	durationMS := c.result.duration.Milliseconds()

	st.markSucceeded(c.nodeID, outputs, c.result.attempts)
	e.bus.Publish(domain.NewNodeCompletedEvent(st.executionID, c.nodeID, outputs, durationMS))
	e.logger.Debug("node completed",
		"execution_id", st.executionID,
		"node_id", c.nodeID,
		"attempts", c.result.attempts,
	)

	for _, conn := range plan.nodes[c.nodeID].outgoing {
		dest := conn.ToNode
		if st.status(dest) != domain.NodeStatusPending {
			continue
		}
		if value, ok := outputs[conn.FromPort]; ok {
			st.deliver(dest, conn.ToPort, value)
		}
		st.remaining[dest]--
		if st.remaining[dest] == 0 {
			st.setStatus(dest, domain.NodeStatusReady)
			ready.push(readyItem{nodeID: dest, topoIndex: plan.nodes[dest].topoIndex})
		}
	}
}

// skipDownstream marks every node transitively downstream of the failed
// node as Skipped without cancelling unrelated branches.
func (e *Executor) skipDownstream(plan *Plan, st *executionState, failedID string) {
	queue := []string{failedID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, conn := range plan.nodes[id].outgoing {
			dest := conn.ToNode
			rec := st.records[dest]
			if rec.Status.Terminal() || rec.Status == domain.NodeStatusRunning {
				continue
			}
			st.markSkipped(dest)
			e.logger.Debug("skipping downstream node",
				"execution_id", st.executionID,
				"node_id", dest,
				"failed_upstream", failedID,
			)
			queue = append(queue, dest)
		}
	}
}

// skipPendingAndReady implements StopWorkflow: everything not yet
// dispatched is Skipped; in-flight nodes drain through the cancelled
// token.
func (e *Executor) skipPendingAndReady(st *executionState, ready *readyQueue) {
	for ready.Len() > 0 {
		ready.pop()
	}
	for id, rec := range st.records {
		if rec.Status == domain.NodeStatusPending || rec.Status == domain.NodeStatusReady {
			st.markSkipped(id)
		}
	}
}

func (e *Executor) skipRemaining(st *executionState) {
	for id, rec := range st.records {
		if !rec.Status.Terminal() && rec.Status != domain.NodeStatusRunning {
			st.markSkipped(id)
		}
	}
}

type readyItem struct {
	nodeID    string
	topoIndex int
}

// readyQueue is a min-heap over topological index so simultaneous
// readiness dispatches deterministically.
type readyQueue struct {
	items []readyItem
}

func newReadyQueue() *readyQueue {
	rq := &readyQueue{}
	heap.Init(rq)
	return rq
}

func (rq *readyQueue) Len() int           { return len(rq.items) }
func (rq *readyQueue) Less(i, j int) bool { return rq.items[i].topoIndex < rq.items[j].topoIndex }
func (rq *readyQueue) Swap(i, j int)      { rq.items[i], rq.items[j] = rq.items[j], rq.items[i] }
func (rq *readyQueue) Push(x interface{}) { rq.items = append(rq.items, x.(readyItem)) }
func (rq *readyQueue) Pop() interface{} {
	old := rq.items
	n := len(old)
	item := old[n-1]
	rq.items = old[:n-1]
	return item
}

func (rq *readyQueue) push(item readyItem) {
	heap.Push(rq, item)
}

func (rq *readyQueue) pop() readyItem {
	return heap.Pop(rq).(readyItem)
}
