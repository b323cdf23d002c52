package ports

import (
	"context"

	"github.com/eleven-am/flowgraph/internal/domain"
)

// WorkflowStorePort persists workflow definitions for front-ends that
// want them to outlive the process. The runtime itself keeps workflows
// in memory.
type WorkflowStorePort interface {
	Put(ctx context.Context, workflow *domain.Workflow) error
	Get(ctx context.Context, id string) (*domain.Workflow, error)
	List(ctx context.Context) ([]*domain.Workflow, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
