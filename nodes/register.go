package nodes

import (
	"github.com/eleven-am/flowgraph/internal/ports"
)

// RegisterBuiltins registers the whole catalog on the given registry.
func RegisterBuiltins(registry ports.NodeRegistryPort) error {
	factories := []ports.NodeFactory{
		&HTTPRequestNodeFactory{},
		&JSONParseNodeFactory{},
		&JSONStringifyNodeFactory{},
		&ScriptNodeFactory{},
		&DebugNodeFactory{},
		&DelayNodeFactory{},
	}
	for _, factory := range factories {
		if err := registry.Register(factory); err != nil {
			return err
		}
	}
	return nil
}
