package storage

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/xjson"
)

const workflowKeyPrefix = "workflow:def:"

// BadgerStore persists workflow definitions in a badger database so CLI
// front-ends can keep a library of workflows across invocations.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewBadgerStore(dataDir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dataDir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to open workflow store",
			Details: map[string]interface{}{"data_dir": dataDir, "error": err.Error()},
		}
	}
	return &BadgerStore{
		db:     db,
		logger: logger.With("component", "workflow-store"),
	}, nil
}

func (s *BadgerStore) Put(ctx context.Context, workflow *domain.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return domain.Error{
			Type:    domain.ErrorTypeValidation,
			Message: "workflow must have an id",
		}
	}

	data, err := xjson.Marshal(workflow)
	if err != nil {
		return domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to serialize workflow",
			Details: map[string]interface{}{"workflow_id": workflow.ID, "error": err.Error()},
		}
	}

	key := []byte(workflowKeyPrefix + workflow.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to persist workflow",
			Details: map[string]interface{}{"workflow_id": workflow.ID, "error": err.Error()},
		}
	}

	s.logger.Debug("workflow persisted", "workflow_id", workflow.ID, "bytes", len(data))
	return nil
}

func (s *BadgerStore) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(workflowKeyPrefix + id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.Error{
				Type:    domain.ErrorTypeNotFound,
				Message: "workflow not found: " + id,
				Details: map[string]interface{}{"workflow_id": id},
			}
		}
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to read workflow",
			Details: map[string]interface{}{"workflow_id": id, "error": err.Error()},
		}
	}

	var workflow domain.Workflow
	if err := xjson.Unmarshal(data, &workflow); err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to decode stored workflow",
			Details: map[string]interface{}{"workflow_id": id, "error": err.Error()},
		}
	}
	return &workflow, nil
}

func (s *BadgerStore) List(ctx context.Context) ([]*domain.Workflow, error) {
	var workflows []*domain.Workflow
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(workflowKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var workflow domain.Workflow
			if err := xjson.Unmarshal(data, &workflow); err != nil {
				key := string(it.Item().Key())
				s.logger.Warn("skipping undecodable workflow entry",
					"key", strings.TrimPrefix(key, workflowKeyPrefix),
					"error", err.Error(),
				)
				continue
			}
			workflows = append(workflows, &workflow)
		}
		return nil
	})
	if err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to list workflows",
			Details: map[string]interface{}{"error": err.Error()},
		}
	}
	return workflows, nil
}

func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	key := []byte(workflowKeyPrefix + id)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.Error{
				Type:    domain.ErrorTypeNotFound,
				Message: "workflow not found: " + id,
			}
		}
		return domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to delete workflow",
			Details: map[string]interface{}{"workflow_id": id, "error": err.Error()},
		}
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
