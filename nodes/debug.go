package nodes

import (
	"context"
	"fmt"
	"sort"

	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
)

// DebugNode narrates its inputs as Info events and echoes them through.
type DebugNode struct{}

func (n *DebugNode) Type() string {
	return "debug.log"
}

func (n *DebugNode) Execute(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
	message := "(no message)"
	if value, ok := nc.OptionalInput("message"); ok {
		if text, isString := value.AsString(); isString {
			message = text
		}
	}

	nc.Events.Info("DEBUG: " + message)

	keys := make([]string, 0, len(nc.Inputs))
	for key := range nc.Inputs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		nc.Events.Info(fmt.Sprintf("  %s: %s", key, nc.Inputs[key].String()))
	}

	output := ports.NewNodeOutput()
	for key, value := range nc.Inputs {
		output.WithOutput(key, value)
	}
	return output.WithOutput("message", domain.StringValue(message)), nil
}

type DebugNodeFactory struct{}

func (f *DebugNodeFactory) Create(config map[string]domain.Value) (ports.Node, error) {
	return &DebugNode{}, nil
}

func (f *DebugNodeFactory) Type() string {
	return "debug.log"
}

func (f *DebugNodeFactory) Metadata() ports.NodeTypeMetadata {
	return ports.NodeTypeMetadata{
		Type:        "debug.log",
		Description: "Log inputs as Info events and pass them through",
		Category:    "debug",
		Inputs: []ports.PortDefinition{
			{Name: "message", Description: "Message to log"},
		},
		Outputs: []ports.PortDefinition{
			{Name: "message", Description: "Logged message"},
		},
	}
}
