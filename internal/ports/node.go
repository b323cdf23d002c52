package ports

import (
	"context"

	"github.com/eleven-am/flowgraph/internal/domain"
)

// Node is the contract every executable node satisfies. Implementations
// are leaf types; optional lifecycle hooks are separate interfaces
// detected by type assertion.
type Node interface {
	Type() string
	Execute(ctx context.Context, nc *NodeContext) (*NodeOutput, error)
}

// Initializer is implemented by nodes that acquire resources before the
// first execution of a run. A failure aborts the run.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Finalizer is implemented by nodes that release resources after a run.
// It is called regardless of outcome; errors are recorded as warnings.
type Finalizer interface {
	Shutdown(ctx context.Context) error
}

// ConfigValidator is implemented by nodes that can reject their static
// configuration at workflow load time.
type ConfigValidator interface {
	ValidateConfig(config map[string]domain.Value) error
}

// NodeContext is the per-invocation bundle handed to a node. It is
// constructed immediately before dispatch and dropped when the invocation
// returns; retries get a fresh context with the same inputs.
type NodeContext struct {
	ExecutionID  string
	NodeID       string
	Inputs       map[string]domain.Value
	Config       map[string]domain.Value
	State        *domain.SharedState
	Events       *EventEmitter
	Cancellation *domain.CancelToken
}

func (nc *NodeContext) RequireInput(name string) (domain.Value, error) {
	v, ok := nc.Inputs[name]
	if !ok {
		return domain.Value{}, domain.NewMissingInputError(name)
	}
	return v, nil
}

func (nc *NodeContext) OptionalInput(name string) (domain.Value, bool) {
	v, ok := nc.Inputs[name]
	return v, ok
}

func (nc *NodeContext) RequireConfig(name string) (domain.Value, error) {
	v, ok := nc.Config[name]
	if !ok {
		return domain.Value{}, domain.NewNodeConfigurationError("missing config: " + name)
	}
	return v, nil
}

func (nc *NodeContext) ConfigOr(name string, fallback domain.Value) domain.Value {
	if v, ok := nc.Config[name]; ok {
		return v
	}
	return fallback
}

func (nc *NodeContext) IsCancelled() bool {
	return nc.Cancellation != nil && nc.Cancellation.IsCancelled()
}

// NodeOutput is the result of one successful invocation. Only Outputs
// participates in downstream delivery.
type NodeOutput struct {
	Outputs  map[string]domain.Value `json:"outputs"`
	Metadata NodeRunMetadata         `json:"metadata"`
}

type NodeRunMetadata struct {
	ExecutionTimeMS int64                   `json:"execution_time_ms"`
	Custom          map[string]domain.Value `json:"custom,omitempty"`
}

func NewNodeOutput() *NodeOutput {
	return &NodeOutput{Outputs: make(map[string]domain.Value)}
}

func (o *NodeOutput) WithOutput(port string, value domain.Value) *NodeOutput {
	if o.Outputs == nil {
		o.Outputs = make(map[string]domain.Value)
	}
	o.Outputs[port] = value
	return o
}
