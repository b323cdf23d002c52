package ports

import (
	"context"

	"github.com/eleven-am/flowgraph/internal/domain"
)

// EventBusPort is the process-local broadcast channel for execution
// events. Publishing never blocks; slow subscribers lose oldest events.
type EventBusPort interface {
	Publish(event domain.ExecutionEvent)
	Subscribe() EventStream
	Close()
}

// EventStream is one subscriber cursor. Recv returns *LaggedError when
// the cursor fell behind the retained window; the cursor is then snapped
// to the oldest retained event.
type EventStream interface {
	Recv(ctx context.Context) (domain.ExecutionEvent, error)
	Close()
}

type LaggedError struct {
	Count uint64
}

func (e *LaggedError) Error() string {
	return "event stream lagged"
}

// EventEmitter publishes node-scoped sub-events bound to one
// (execution, node) pair.
type EventEmitter struct {
	executionID string
	nodeID      string
	bus         EventBusPort
}

func NewEventEmitter(executionID, nodeID string, bus EventBusPort) *EventEmitter {
	return &EventEmitter{executionID: executionID, nodeID: nodeID, bus: bus}
}

func (e *EventEmitter) Emit(sub domain.NodeEvent) {
	if e == nil || e.bus == nil {
		return
	}
	e.bus.Publish(domain.NewNodeSubEvent(e.executionID, e.nodeID, sub))
}

func (e *EventEmitter) Info(message string) {
	e.Emit(domain.NodeEvent{EventType: domain.NodeEventInfo, Message: message})
}

func (e *EventEmitter) Warn(message string) {
	e.Emit(domain.NodeEvent{EventType: domain.NodeEventWarning, Message: message})
}

func (e *EventEmitter) Progress(percent float64, message string) {
	e.Emit(domain.NodeEvent{EventType: domain.NodeEventProgress, Percent: &percent, Message: message})
}

func (e *EventEmitter) Data(port string, value domain.Value) {
	e.Emit(domain.NodeEvent{EventType: domain.NodeEventData, Port: port, Value: &value})
}
