package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eleven-am/flowgraph/internal/adapters/engine"
	"github.com/eleven-am/flowgraph/internal/adapters/events"
	"github.com/eleven-am/flowgraph/internal/adapters/node_registry"
	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
)

// Runtime owns the registry, the event bus and the in-memory workflow
// table, and exposes the engine's public operations. One Runtime serves
// any number of concurrent executions of distinct workflows.
type Runtime struct {
	registry ports.NodeRegistryPort
	bus      ports.EventBusPort
	executor *engine.Executor
	logger   *slog.Logger

	mu        sync.RWMutex
	workflows map[string]*domain.Workflow

	execMu     sync.Mutex
	executions map[string]*domain.CancelToken
}

func NewRuntime(config domain.RuntimeConfig) (*Runtime, error) {
	cfg, err := domain.ApplyDefaults(config)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	registry := node_registry.NewAdapter(logger)
	bus := events.NewBus(cfg.EventBufferSize, logger)

	return &Runtime{
		registry:   registry,
		bus:        bus,
		executor:   engine.NewExecutor(registry, bus, logger),
		logger:     logger.With("component", "runtime"),
		workflows:  make(map[string]*domain.Workflow),
		executions: make(map[string]*domain.CancelToken),
	}, nil
}

// RegisterFactory adds a node type to the registry. Registration is not
// allowed to race an execution that uses the type being added.
func (r *Runtime) RegisterFactory(factory ports.NodeFactory) error {
	return r.registry.Register(factory)
}

func (r *Runtime) Registry() ports.NodeRegistryPort {
	return r.registry
}

func (r *Runtime) ListNodeTypes() []ports.NodeTypeMetadata {
	return r.registry.List()
}

// RegisterWorkflow validates the workflow against the registry and stores
// it on success. A validation failure leaves the table untouched and no
// node ever runs.
func (r *Runtime) RegisterWorkflow(workflow *domain.Workflow) (string, error) {
	if err := workflow.Settings.Validate(); err != nil {
		return "", err
	}
	if _, err := engine.BuildPlan(workflow, r.registry, r.logger); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.workflows[workflow.ID] = workflow
	r.mu.Unlock()

	r.logger.Info("workflow registered",
		"workflow_id", workflow.ID,
		"name", workflow.Name,
		"nodes", len(workflow.Nodes),
	)
	return workflow.ID, nil
}

func (r *Runtime) GetWorkflow(workflowID string) (*domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	workflow, ok := r.workflows[workflowID]
	if !ok {
		return nil, domain.NewUnknownWorkflowError(workflowID)
	}
	return workflow, nil
}

func (r *Runtime) ListWorkflows() []*domain.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Workflow, 0, len(r.workflows))
	for _, w := range r.workflows {
		out = append(out, w)
	}
	return out
}

// Execute runs a stored workflow. The store lock is released before the
// run starts; registration can proceed while executions are in flight.
func (r *Runtime) Execute(ctx context.Context, workflowID string, inputs map[string]domain.Value) (*domain.ExecutionResult, error) {
	workflow, err := r.GetWorkflow(workflowID)
	if err != nil {
		return nil, err
	}
	return r.ExecuteDirect(ctx, workflow, inputs)
}

// ExecuteDirect runs a workflow without storing it.
func (r *Runtime) ExecuteDirect(ctx context.Context, workflow *domain.Workflow, inputs map[string]domain.Value) (*domain.ExecutionResult, error) {
	var executionID string
	result, err := r.executor.Execute(ctx, workflow, inputs, func(id string, cancel *domain.CancelToken) {
		executionID = id
		r.execMu.Lock()
		r.executions[id] = cancel
		r.execMu.Unlock()
	})
	if executionID != "" {
		r.execMu.Lock()
		delete(r.executions, executionID)
		r.execMu.Unlock()
	}
	return result, err
}

// Subscribe returns a fresh cursor on the event bus; it observes only
// events published after this call.
func (r *Runtime) Subscribe() ports.EventStream {
	return r.bus.Subscribe()
}

// Cancel flags the run's cancellation token. In-flight nodes observe it
// cooperatively; the run drains and completes with success=false.
func (r *Runtime) Cancel(executionID string) error {
	r.execMu.Lock()
	token, ok := r.executions[executionID]
	r.execMu.Unlock()
	if !ok {
		return domain.Error{
			Type:    domain.ErrorTypeNotFound,
			Message: "no running execution: " + executionID,
			Details: map[string]interface{}{"execution_id": executionID},
		}
	}
	token.Cancel()
	r.logger.Info("execution cancelled", "execution_id", executionID)
	return nil
}

// Close shuts the event bus down; subscribers drain and then receive
// ErrBusClosed.
func (r *Runtime) Close() {
	r.bus.Close()
}
