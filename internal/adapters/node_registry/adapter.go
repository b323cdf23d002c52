package node_registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
)

type Adapter struct {
	mu        sync.RWMutex
	factories map[string]ports.NodeFactory
	logger    *slog.Logger
}

func NewAdapter(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		factories: make(map[string]ports.NodeFactory),
		logger:    logger.With("component", "node-registry"),
	}
}

func (a *Adapter) Register(factory ports.NodeFactory) error {
	if factory == nil {
		return &ports.NodeRegistrationError{
			NodeType: "<nil>",
			Reason:   "factory cannot be nil",
		}
	}

	nodeType := factory.Type()
	if nodeType == "" {
		return &ports.NodeRegistrationError{
			NodeType: "<nil>",
			Reason:   "node type cannot be empty",
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.factories[nodeType]; exists {
		return &ports.NodeRegistrationError{
			NodeType: nodeType,
			Reason:   "node type already registered",
		}
	}

	a.factories[nodeType] = factory
	a.logger.Debug("registered node type", "node_type", nodeType)
	return nil
}

func (a *Adapter) Get(nodeType string) (ports.NodeFactory, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	factory, exists := a.factories[nodeType]
	if !exists {
		return nil, domain.Error{
			Type:    domain.ErrorTypeNotFound,
			Message: "unknown node type: " + nodeType,
			Details: map[string]interface{}{"node_type": nodeType},
		}
	}
	return factory, nil
}

func (a *Adapter) Has(nodeType string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, exists := a.factories[nodeType]
	return exists
}

func (a *Adapter) List() []ports.NodeTypeMetadata {
	a.mu.RLock()
	defer a.mu.RUnlock()

	metadata := make([]ports.NodeTypeMetadata, 0, len(a.factories))
	for nodeType, factory := range a.factories {
		meta := factory.Metadata()
		if meta.Type == "" {
			meta.Type = nodeType
		}
		metadata = append(metadata, meta)
	}
	sort.Slice(metadata, func(i, j int) bool {
		return metadata[i].Type < metadata[j].Type
	})
	return metadata
}

func (a *Adapter) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.factories)
}
