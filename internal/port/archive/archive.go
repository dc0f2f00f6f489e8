// Package archive defines the port for durable workflow history.
package archive

import (
	"context"

	"github.com/voidukas/conductor/internal/domain/workflow"
)

// Store persists terminal workflows. SaveWorkflow is fire-and-forget like
// the audit sink: implementations must never block orchestration, and
// callers log failures instead of propagating them.
type Store interface {
	SaveWorkflow(ctx context.Context, wf workflow.Workflow) error
}

// Nop is a Store that discards workflows.
type Nop struct{}

// SaveWorkflow discards the workflow.
func (Nop) SaveWorkflow(context.Context, workflow.Workflow) error { return nil }
