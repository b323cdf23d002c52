package domain

import (
	"time"
)

type ExecutionEventType string

const (
	EventWorkflowStarted   ExecutionEventType = "WorkflowStarted"
	EventWorkflowCompleted ExecutionEventType = "WorkflowCompleted"
	EventNodeStarted       ExecutionEventType = "NodeStarted"
	EventNodeCompleted     ExecutionEventType = "NodeCompleted"
	EventNodeFailed        ExecutionEventType = "NodeFailed"
	EventNode              ExecutionEventType = "NodeEvent"
)

// ExecutionEvent is one observation from a run. Events from a single node
// are published in invocation order; no global ordering is guaranteed.
type ExecutionEvent struct {
	Type        ExecutionEventType `json:"type"`
	ExecutionID string             `json:"execution_id"`
	WorkflowID  string             `json:"workflow_id,omitempty"`
	NodeID      string             `json:"node_id,omitempty"`
	NodeType    string             `json:"node_type,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`

	Success      *bool            `json:"success,omitempty"`
	DurationMS   *int64           `json:"duration_ms,omitempty"`
	Outputs      map[string]Value `json:"outputs,omitempty"`
	Error        *NodeError       `json:"error,omitempty"`
	AttemptsMade int              `json:"attempts_made,omitempty"`
	Node         *NodeEvent       `json:"event,omitempty"`
}

type NodeEventType string

const (
	NodeEventInfo     NodeEventType = "Info"
	NodeEventWarning  NodeEventType = "Warning"
	NodeEventProgress NodeEventType = "Progress"
	NodeEventData     NodeEventType = "Data"
)

// NodeEvent is a sub-event emitted by a node mid-execution. Data events
// are observational; only the outputs returned by Execute feed downstream
// delivery.
type NodeEvent struct {
	EventType NodeEventType `json:"event_type"`
	Message   string        `json:"message,omitempty"`
	Percent   *float64      `json:"percent,omitempty"`
	Port      string        `json:"port,omitempty"`
	Value     *Value        `json:"value,omitempty"`
}

func NewWorkflowStartedEvent(executionID, workflowID string) ExecutionEvent {
	return ExecutionEvent{
		Type:        EventWorkflowStarted,
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Timestamp:   time.Now().UTC(),
	}
}

func NewWorkflowCompletedEvent(executionID string, success bool, durationMS int64) ExecutionEvent {
	return ExecutionEvent{
		Type:        EventWorkflowCompleted,
		ExecutionID: executionID,
		Timestamp:   time.Now().UTC(),
		Success:     &success,
		DurationMS:  &durationMS,
	}
}

func NewNodeStartedEvent(executionID, nodeID, nodeType string) ExecutionEvent {
	return ExecutionEvent{
		Type:        EventNodeStarted,
		ExecutionID: executionID,
		NodeID:      nodeID,
		NodeType:    nodeType,
		Timestamp:   time.Now().UTC(),
	}
}

func NewNodeCompletedEvent(executionID, nodeID string, outputs map[string]Value, durationMS int64) ExecutionEvent {
	return ExecutionEvent{
		Type:        EventNodeCompleted,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Timestamp:   time.Now().UTC(),
		Outputs:     outputs,
		DurationMS:  &durationMS,
	}
}

func NewNodeFailedEvent(executionID, nodeID string, nodeErr *NodeError, attemptsMade int) ExecutionEvent {
	return ExecutionEvent{
		Type:         EventNodeFailed,
		ExecutionID:  executionID,
		NodeID:       nodeID,
		Timestamp:    time.Now().UTC(),
		Error:        nodeErr,
		AttemptsMade: attemptsMade,
	}
}

func NewNodeSubEvent(executionID, nodeID string, sub NodeEvent) ExecutionEvent {
	return ExecutionEvent{
		Type:        EventNode,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Timestamp:   time.Now().UTC(),
		Node:        &sub,
	}
}
