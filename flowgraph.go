// Package flowgraph provides a DAG workflow execution engine for Go
// applications.
//
// A workflow is a directed acyclic graph of typed nodes wired by named
// ports. Flowgraph validates the graph, instantiates nodes through a
// registry, and executes them concurrently while honoring data-flow
// dependencies, bounded parallelism, per-node retries, timeouts,
// cancellation, and a broadcast event stream narrating progress.
//
// Basic usage:
//
//	runtime, _ := flowgraph.NewRuntime(flowgraph.RuntimeConfig{})
//	runtime.RegisterFactory(&MyNodeFactory{})
//
//	w := flowgraph.NewWorkflow("greet")
//	w.AddNode(flowgraph.NewNodeSpec("hello", "my.node"))
//	id, err := runtime.RegisterWorkflow(w)
//
//	result, err := runtime.Execute(ctx, id, map[string]flowgraph.Value{
//	    "name": flowgraph.StringValue("world"),
//	})
package flowgraph

import (
	"github.com/eleven-am/flowgraph/internal/core"
	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
)

// Runtime is the engine facade: it owns the node registry, the event bus
// and the in-memory workflow table.
type Runtime = core.Runtime

// RuntimeConfig carries runtime-wide knobs; zero fields take defaults.
type RuntimeConfig = domain.RuntimeConfig

// NewRuntime constructs a Runtime, filling unset config fields from
// defaults.
func NewRuntime(config RuntimeConfig) (*Runtime, error) {
	return core.NewRuntime(config)
}

// Workflow is the static declaration of a DAG.
type Workflow = domain.Workflow

// NodeSpec declares one node of a workflow.
type NodeSpec = domain.NodeSpec

// Connection is a directed edge from an output port to an input port.
type Connection = domain.Connection

// RetryPolicy is a per-node exponential backoff schedule.
type RetryPolicy = domain.RetryPolicy

// WorkflowSettings carries workflow-scoped execution knobs.
type WorkflowSettings = domain.WorkflowSettings

// ErrorHandling is the workflow-level on_error policy.
type ErrorHandling = domain.ErrorHandling

// ExecutionResult summarizes one finished run.
type ExecutionResult = domain.ExecutionResult

// Value is the tagged variant carried between nodes.
type Value = domain.Value

// Node is the contract every executable node satisfies.
type Node = ports.Node

// NodeContext is the per-invocation bundle handed to a node.
type NodeContext = ports.NodeContext

// NodeOutput is the result of one successful node invocation.
type NodeOutput = ports.NodeOutput

// NodeFactory constructs node instances and exposes type metadata.
type NodeFactory = ports.NodeFactory

// NodeTypeMetadata describes a registered node type.
type NodeTypeMetadata = ports.NodeTypeMetadata

// PortDefinition names one declared input or output port.
type PortDefinition = ports.PortDefinition

// EventStream is one subscriber cursor on the event bus.
type EventStream = ports.EventStream

// LaggedError signals that a slow subscriber lost Count events.
type LaggedError = ports.LaggedError

// ExecutionEvent is one observation from a run.
type ExecutionEvent = domain.ExecutionEvent

// NodeEvent is a sub-event emitted by a node mid-execution.
type NodeEvent = domain.NodeEvent

// NodeError is a classified node failure.
type NodeError = domain.NodeError

// WorkflowValidationError reports why a workflow was rejected.
type WorkflowValidationError = domain.WorkflowValidationError

// RuntimeError wraps the failure that prevented a run from completing.
type RuntimeError = domain.RuntimeError

// Workflow construction helpers.

func NewWorkflow(name string) *Workflow {
	return domain.NewWorkflow(name)
}

func NewNodeSpec(id, nodeType string) NodeSpec {
	return domain.NewNodeSpec(id, nodeType)
}

func ParseWorkflow(data []byte) (*Workflow, error) {
	return domain.ParseWorkflow(data)
}

// Value constructors.

func NullValue() Value                          { return domain.NullValue() }
func BoolValue(b bool) Value                    { return domain.BoolValue(b) }
func NumberValue(n float64) Value               { return domain.NumberValue(n) }
func IntValue(n int64) Value                    { return domain.IntValue(n) }
func StringValue(s string) Value                { return domain.StringValue(s) }
func BytesValue(b []byte) Value                 { return domain.BytesValue(b) }
func ArrayValue(items ...Value) Value           { return domain.ArrayValue(items...) }
func ObjectValue(fields map[string]Value) Value { return domain.ObjectValue(fields) }

// NewNodeOutput starts an empty output map for a node to fill.
func NewNodeOutput() *NodeOutput {
	return ports.NewNodeOutput()
}

// Event type constants re-exported for subscribers.
const (
	EventWorkflowStarted   = domain.EventWorkflowStarted
	EventWorkflowCompleted = domain.EventWorkflowCompleted
	EventNodeStarted       = domain.EventNodeStarted
	EventNodeCompleted     = domain.EventNodeCompleted
	EventNodeFailed        = domain.EventNodeFailed
	EventNode              = domain.EventNode
)

// on_error modes.
const (
	ErrorModeStopWorkflow    = domain.ErrorModeStopWorkflow
	ErrorModeContinueOnError = domain.ErrorModeContinueOnError
	ErrorModeRetryWorkflow   = domain.ErrorModeRetryWorkflow
)
