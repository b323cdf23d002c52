package domain

import (
	"bytes"
	"fmt"

	"github.com/eleven-am/flowgraph/internal/xjson"
	"github.com/google/uuid"
)

// Workflow is the static declaration of a DAG. It is immutable during
// execution; the engine never writes back into it.
type Workflow struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Nodes       []NodeSpec         `json:"nodes"`
	Connections []Connection       `json:"connections"`
	Triggers    []xjson.RawMessage `json:"triggers,omitempty"`
	Settings    WorkflowSettings   `json:"settings"`
}

func NewWorkflow(name string) *Workflow {
	return &Workflow{
		ID:       uuid.New().String(),
		Name:     name,
		Settings: DefaultWorkflowSettings(),
	}
}

func (w *Workflow) AddNode(spec NodeSpec) string {
	w.Nodes = append(w.Nodes, spec)
	return spec.ID
}

func (w *Workflow) Connect(fromNode, fromPort, toNode, toPort string) {
	w.Connections = append(w.Connections, Connection{
		FromNode: fromNode,
		FromPort: fromPort,
		ToNode:   toNode,
		ToPort:   toPort,
	})
}

func (w *Workflow) FindNode(id string) *NodeSpec {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

type NodeSpec struct {
	ID          string           `json:"id"`
	NodeType    string           `json:"node_type"`
	Name        string           `json:"name,omitempty"`
	Config      map[string]Value `json:"config,omitempty"`
	RetryPolicy *RetryPolicy     `json:"retry_policy,omitempty"`
	TimeoutMS   int64            `json:"timeout_ms,omitempty"`
	Position    *Position        `json:"position,omitempty"`
}

func NewNodeSpec(id, nodeType string) NodeSpec {
	return NodeSpec{
		ID:       id,
		NodeType: nodeType,
		Config:   make(map[string]Value),
	}
}

func (n NodeSpec) WithConfig(key string, value Value) NodeSpec {
	if n.Config == nil {
		n.Config = make(map[string]Value)
	}
	n.Config[key] = value
	return n
}

func (n NodeSpec) WithRetry(maxAttempts int, delayMS int64, multiplier float64) NodeSpec {
	n.RetryPolicy = &RetryPolicy{
		MaxAttempts:       maxAttempts,
		DelayMS:           delayMS,
		BackoffMultiplier: multiplier,
	}
	return n
}

func (n NodeSpec) WithTimeout(timeoutMS int64) NodeSpec {
	n.TimeoutMS = timeoutMS
	return n
}

func (n NodeSpec) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

type Connection struct {
	FromNode string `json:"from_node"`
	FromPort string `json:"from_port"`
	ToNode   string `json:"to_node"`
	ToPort   string `json:"to_port"`
}

// Position is visual-editor metadata; the engine ignores it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type RetryPolicy struct {
	MaxAttempts       int     `json:"max_attempts"`
	DelayMS           int64   `json:"delay_ms"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		DelayMS:           1000,
		BackoffMultiplier: 2.0,
	}
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return NewValidationError("retry_policy", "max_attempts must be at least 1")
	}
	if p.DelayMS < 0 {
		return NewValidationError("retry_policy", "delay_ms cannot be negative")
	}
	if p.BackoffMultiplier < 1.0 {
		return NewValidationError("retry_policy", "backoff_multiplier must be at least 1.0")
	}
	return nil
}

type WorkflowSettings struct {
	MaxParallelNodes int           `json:"max_parallel_nodes"`
	MaxExecutionTime int64         `json:"max_execution_time_ms,omitempty"`
	OnError          ErrorHandling `json:"on_error"`
}

func DefaultWorkflowSettings() WorkflowSettings {
	return WorkflowSettings{
		MaxParallelNodes: 10,
		OnError:          ErrorHandling{Mode: ErrorModeStopWorkflow},
	}
}

func (s WorkflowSettings) Validate() error {
	if s.MaxParallelNodes <= 0 {
		return NewValidationError("settings", "max_parallel_nodes must be positive")
	}
	if s.MaxExecutionTime < 0 {
		return NewValidationError("settings", "max_execution_time_ms cannot be negative")
	}
	if s.OnError.Mode == ErrorModeRetryWorkflow && s.OnError.MaxAttempts < 1 {
		return NewValidationError("settings", "RetryWorkflow.max_attempts must be at least 1")
	}
	return nil
}

type ErrorMode string

const (
	ErrorModeStopWorkflow    ErrorMode = "StopWorkflow"
	ErrorModeContinueOnError ErrorMode = "ContinueOnError"
	ErrorModeRetryWorkflow   ErrorMode = "RetryWorkflow"
)

// ErrorHandling is the workflow-level on_error policy. On the wire it is
// either a bare string ("StopWorkflow", "ContinueOnError") or the object
// form {"RetryWorkflow":{"max_attempts":n}}.
type ErrorHandling struct {
	Mode        ErrorMode
	MaxAttempts int
}

func (e ErrorHandling) MarshalJSON() ([]byte, error) {
	switch e.Mode {
	case ErrorModeRetryWorkflow:
		return xjson.Marshal(map[string]map[string]int{
			string(ErrorModeRetryWorkflow): {"max_attempts": e.MaxAttempts},
		})
	case ErrorModeContinueOnError:
		return xjson.Marshal(string(ErrorModeContinueOnError))
	default:
		return xjson.Marshal(string(ErrorModeStopWorkflow))
	}
}

func (e *ErrorHandling) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var mode string
		if err := xjson.Unmarshal(trimmed, &mode); err != nil {
			return NewValidationError("on_error", err.Error())
		}
		switch ErrorMode(mode) {
		case ErrorModeStopWorkflow, ErrorModeContinueOnError:
			*e = ErrorHandling{Mode: ErrorMode(mode)}
			return nil
		default:
			return NewValidationError("on_error", fmt.Sprintf("unknown mode %q", mode))
		}
	}

	var obj map[string]struct {
		MaxAttempts int `json:"max_attempts"`
	}
	if err := xjson.Unmarshal(trimmed, &obj); err != nil {
		return NewValidationError("on_error", err.Error())
	}
	retry, ok := obj[string(ErrorModeRetryWorkflow)]
	if !ok || len(obj) != 1 {
		return NewValidationError("on_error", "expected StopWorkflow, ContinueOnError or RetryWorkflow")
	}
	*e = ErrorHandling{Mode: ErrorModeRetryWorkflow, MaxAttempts: retry.MaxAttempts}
	return nil
}

// ParseWorkflow decodes and structurally validates a workflow document.
// Graph-level validation happens against a registry at plan time.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var w Workflow
	if err := xjson.Unmarshal(data, &w); err != nil {
		return nil, NewValidationError("workflow", err.Error())
	}
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if _, err := uuid.Parse(w.ID); err != nil {
		return nil, NewValidationError("workflow", "id is not a valid uuid: "+w.ID)
	}
	if w.Settings.MaxParallelNodes == 0 {
		w.Settings.MaxParallelNodes = DefaultWorkflowSettings().MaxParallelNodes
	}
	if w.Settings.OnError.Mode == "" {
		w.Settings.OnError = ErrorHandling{Mode: ErrorModeStopWorkflow}
	}
	if err := w.Settings.Validate(); err != nil {
		return nil, err
	}
	for _, spec := range w.Nodes {
		if spec.RetryPolicy != nil {
			if err := spec.RetryPolicy.Validate(); err != nil {
				return nil, NewConfigurationError(spec.ID, err.Error())
			}
		}
	}
	return &w, nil
}
