package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
)

// DelayNode sleeps for a configured duration and passes its inputs
// through unchanged. The sleep aborts on cancellation.
type DelayNode struct{}

func (n *DelayNode) Type() string {
	return "time.delay"
}

func (n *DelayNode) Execute(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
	delayMS := int64(1000)
	if value, ok := nc.Config["delay_ms"]; ok {
		f, isNumber := value.AsFloat()
		if !isNumber || f < 0 {
			return nil, domain.NewNodeConfigurationError("delay_ms must be a non-negative number")
		}
		delayMS = int64(f)
	}

	nc.Events.Info(fmt.Sprintf("delaying for %dms", delayMS))

	timer := time.NewTimer(time.Duration(delayMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, domain.NewNodeCancelledError()
	case <-nc.Cancellation.Done():
		return nil, domain.NewNodeCancelledError()
	}

	output := ports.NewNodeOutput()
	for key, value := range nc.Inputs {
		output.WithOutput(key, value)
	}
	return output, nil
}

type DelayNodeFactory struct{}

func (f *DelayNodeFactory) Create(config map[string]domain.Value) (ports.Node, error) {
	return &DelayNode{}, nil
}

func (f *DelayNodeFactory) Type() string {
	return "time.delay"
}

func (f *DelayNodeFactory) Metadata() ports.NodeTypeMetadata {
	return ports.NodeTypeMetadata{
		Type:        "time.delay",
		Description: "Delay execution for delay_ms milliseconds",
		Category:    "time",
		Outputs: []ports.PortDefinition{
			{Name: "*", Description: "Inputs passed through unchanged"},
		},
	}
}
