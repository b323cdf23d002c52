package domain

import (
	"log/slog"

	"dario.cat/mergo"
)

const (
	DefaultMaxParallelNodes = 10
	DefaultEventBufferSize  = 1024
)

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		MaxParallelNodes: DefaultMaxParallelNodes,
		EventBufferSize:  DefaultEventBufferSize,
		Logger:           slog.Default(),
	}
}

// ApplyDefaults fills the zero fields of cfg from the defaults. The caller
// keeps anything it set explicitly.
func ApplyDefaults(cfg RuntimeConfig) (RuntimeConfig, error) {
	defaults := DefaultRuntimeConfig()
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return cfg, Error{
			Type:    ErrorTypeInternal,
			Message: "failed to merge runtime config defaults",
			Details: map[string]interface{}{"error": err.Error()},
		}
	}
	if cfg.MaxParallelNodes <= 0 {
		return cfg, Error{
			Type:    ErrorTypeValidation,
			Message: "max_parallel_nodes must be positive",
		}
	}
	if cfg.EventBufferSize <= 0 {
		return cfg, Error{
			Type:    ErrorTypeValidation,
			Message: "event_buffer_size must be positive",
		}
	}
	return cfg, nil
}
