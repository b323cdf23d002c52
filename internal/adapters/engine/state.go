package engine

import (
	"time"

	"github.com/eleven-am/flowgraph/internal/domain"
)

// executionState is the mutable state of one run. Every map is owned by
// the scheduler driver goroutine; node invocations never touch it
// directly, so no locking is needed beyond the shared scratchpad's own.
type executionState struct {
	executionID string
	workflowID  string
	records     map[string]*domain.NodeRecord
	remaining   map[string]int
	pending     map[string]map[string]domain.Value
	shared      *domain.SharedState
	cancel      *domain.CancelToken
	warnings    []string
}

func newExecutionState(executionID string, plan *Plan, inputs map[string]domain.Value) *executionState {
	st := &executionState{
		executionID: executionID,
		workflowID:  plan.workflow.ID,
		records:     make(map[string]*domain.NodeRecord, len(plan.nodes)),
		remaining:   make(map[string]int, len(plan.nodes)),
		pending:     make(map[string]map[string]domain.Value, len(plan.nodes)),
		shared:      domain.NewSharedState(),
		cancel:      domain.NewCancelToken(),
	}

	for id, pn := range plan.nodes {
		st.records[id] = &domain.NodeRecord{
			NodeID:   id,
			NodeType: pn.spec.NodeType,
			Status:   domain.NodeStatusPending,
		}
		st.remaining[id] = len(pn.incoming)

		if len(pn.incoming) == 0 {
			// Root nodes see the workflow-level inputs map verbatim and
			// narrow via RequireInput themselves.
			seed := make(map[string]domain.Value, len(inputs))
			for k, v := range inputs {
				seed[k] = v
			}
			st.pending[id] = seed
		} else {
			st.pending[id] = make(map[string]domain.Value)
		}
	}

	return st
}

func (st *executionState) status(nodeID string) domain.NodeStatus {
	return st.records[nodeID].Status
}

func (st *executionState) setStatus(nodeID string, status domain.NodeStatus) {
	st.records[nodeID].Status = status
}

func (st *executionState) markRunning(nodeID string) {
	rec := st.records[nodeID]
	rec.Status = domain.NodeStatusRunning
	rec.StartedAt = time.Now().UTC()
}

func (st *executionState) markSucceeded(nodeID string, outputs map[string]domain.Value, attempts int) {
	rec := st.records[nodeID]
	now := time.Now().UTC()
	rec.Status = domain.NodeStatusSucceeded
	rec.Outputs = outputs
	rec.Attempts = attempts
	rec.CompletedAt = &now
}

func (st *executionState) markFailed(nodeID string, nodeErr *domain.NodeError, attempts int) {
	rec := st.records[nodeID]
	now := time.Now().UTC()
	rec.Status = domain.NodeStatusFailed
	rec.Error = nodeErr
	rec.Attempts = attempts
	rec.CompletedAt = &now
}

func (st *executionState) markSkipped(nodeID string) {
	rec := st.records[nodeID]
	now := time.Now().UTC()
	rec.Status = domain.NodeStatusSkipped
	rec.CompletedAt = &now
}

// deliver routes one upstream value into a destination's pending inputs.
func (st *executionState) deliver(nodeID, port string, value domain.Value) {
	st.pending[nodeID][port] = value
}

// inputsFor snapshots the accumulated inputs for a dispatch; retries of
// the same node reuse the same values through a fresh copy.
func (st *executionState) inputsFor(nodeID string) map[string]domain.Value {
	src := st.pending[nodeID]
	out := make(map[string]domain.Value, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (st *executionState) allTerminal() bool {
	for _, rec := range st.records {
		if !rec.Status.Terminal() {
			return false
		}
	}
	return true
}

func (st *executionState) nonTerminalNodes() []string {
	var ids []string
	for id, rec := range st.records {
		if !rec.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (st *executionState) counts() (completed, failed, skipped int) {
	for _, rec := range st.records {
		switch rec.Status {
		case domain.NodeStatusSucceeded:
			completed++
		case domain.NodeStatusFailed:
			failed++
		case domain.NodeStatusSkipped:
			skipped++
		}
	}
	return
}

func (st *executionState) nodeOutputs() map[string]map[string]domain.Value {
	out := make(map[string]map[string]domain.Value)
	for id, rec := range st.records {
		if rec.Status == domain.NodeStatusSucceeded && rec.Outputs != nil {
			out[id] = rec.Outputs
		}
	}
	return out
}
