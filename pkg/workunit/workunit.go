// Package workunit re-exports the work unit adapter contract for
// external implementations.
package workunit

import (
	"github.com/agent-relay/backend/internal/workunit"
)

// Re-export types from internal/workunit for external use
type (
	Adapter        = workunit.Adapter
	Stream         = workunit.Stream
	Factory        = workunit.Factory
	Increment      = workunit.Increment
	Kind           = workunit.Kind
	ToolInvocation = workunit.ToolInvocation
	Config         = workunit.Config
)

const (
	KindTextDelta      = workunit.KindTextDelta
	KindToolInvocation = workunit.KindToolInvocation
	KindResult         = workunit.KindResult
)

// NewCommandAdapter creates an adapter that runs an external streaming
// program as the work unit.
func NewCommandAdapter(cfg Config, command string, args ...string) Adapter {
	return workunit.NewCommandAdapter(cfg, command, args...)
}

// NewEchoAdapter creates the built-in development work unit.
func NewEchoAdapter() Adapter {
	return workunit.NewEchoAdapter()
}
