package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/eleven-am/flowgraph/internal/domain"
)

// MemoryStore keeps workflow definitions in process memory. It is the
// default store for embedded runtimes and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*domain.Workflow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workflows: make(map[string]*domain.Workflow)}
}

func (s *MemoryStore) Put(ctx context.Context, workflow *domain.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return domain.Error{
			Type:    domain.ErrorTypeValidation,
			Message: "workflow must have an id",
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[workflow.ID] = workflow
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	workflow, ok := s.workflows[id]
	if !ok {
		return nil, domain.Error{
			Type:    domain.ErrorTypeNotFound,
			Message: "workflow not found: " + id,
			Details: map[string]interface{}{"workflow_id": id},
		}
	}
	return workflow, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return domain.Error{
			Type:    domain.ErrorTypeNotFound,
			Message: "workflow not found: " + id,
		}
	}
	delete(s.workflows, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
