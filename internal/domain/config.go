package domain

import (
	"log/slog"
)

// RuntimeConfig carries the runtime-wide knobs. Workflow-scoped settings
// live on WorkflowSettings instead.
type RuntimeConfig struct {
	MaxParallelNodes int          `json:"max_parallel_nodes"`
	EventBufferSize  int          `json:"event_buffer_size"`
	DataDir          string       `json:"data_dir,omitempty"`
	Logger           *slog.Logger `json:"-"`
}
