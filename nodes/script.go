package nodes

import (
	"context"

	"github.com/dop251/goja"
	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
)

// ScriptNode evaluates a JavaScript expression over the node's inputs.
// The script sees `inputs` as a plain object and whatever it returns
// becomes the `result` output; returning an object additionally maps each
// top-level key onto an output port of the same name.
type ScriptNode struct {
	source string
}

func (n *ScriptNode) Type() string {
	return "transform.script"
}

func (n *ScriptNode) ValidateConfig(config map[string]domain.Value) error {
	source, ok := config["script"]
	if !ok {
		return domain.NewNodeConfigurationError("missing config: script")
	}
	text, isString := source.AsString()
	if !isString || text == "" {
		return domain.NewNodeConfigurationError("script must be a non-empty string")
	}
	if _, err := goja.Compile("script", text, false); err != nil {
		return domain.NewNodeConfigurationError("script does not compile: " + err.Error())
	}
	return nil
}

func (n *ScriptNode) Execute(ctx context.Context, nc *ports.NodeContext) (*ports.NodeOutput, error) {
	vm := goja.New()

	inputs := make(map[string]interface{}, len(nc.Inputs))
	for name, value := range nc.Inputs {
		inputs[name] = value.Interface()
	}
	if err := vm.Set("inputs", inputs); err != nil {
		return nil, domain.NewExecutionError("failed to bind inputs: " + err.Error())
	}

	interruptDone := make(chan struct{})
	defer close(interruptDone)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("cancelled")
		case <-nc.Cancellation.Done():
			vm.Interrupt("cancelled")
		case <-interruptDone:
		}
	}()

	result, err := vm.RunString(n.source)
	if err != nil {
		if _, interrupted := err.(*goja.InterruptedError); interrupted {
			return nil, domain.NewNodeCancelledError()
		}
		return nil, domain.NewExecutionError("script failed: " + err.Error())
	}

	exported := result.Export()
	output := ports.NewNodeOutput().
		WithOutput("result", domain.FromInterface(exported))

	if fields, ok := exported.(map[string]interface{}); ok {
		for key, value := range fields {
			output.WithOutput(key, domain.FromInterface(value))
		}
	}

	return output, nil
}

type ScriptNodeFactory struct{}

func (f *ScriptNodeFactory) Create(config map[string]domain.Value) (ports.Node, error) {
	source := ""
	if value, ok := config["script"]; ok {
		source, _ = value.AsString()
	}
	if source == "" {
		return nil, domain.NewNodeConfigurationError("missing config: script")
	}
	return &ScriptNode{source: source}, nil
}

func (f *ScriptNodeFactory) Type() string {
	return "transform.script"
}

func (f *ScriptNodeFactory) Metadata() ports.NodeTypeMetadata {
	return ports.NodeTypeMetadata{
		Type:        "transform.script",
		Description: "Evaluate a JavaScript expression over the inputs",
		Category:    "transform",
		Outputs: []ports.PortDefinition{
			{Name: "result", Description: "Value of the script expression"},
		},
	}
}
