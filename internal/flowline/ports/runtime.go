package ports

import (
	"context"

	"github.com/jinsol/flowline/internal/flowline"
)

// ActivationRuntime is the port to the process-wide registry of active
// workflow triggers. Both calls may fail with arbitrary runtime errors;
// callers must propagate those unmodified after any compensation.
type ActivationRuntime interface {
	// Add loads the workflow and registers its triggers. The mode hint
	// distinguishes a fresh activation from re-registration on update.
	Add(ctx context.Context, workflowID string, mode flowline.ActivationMode) error
	// Remove deregisters all of the workflow's triggers. Removing a
	// workflow that is not registered is a no-op.
	Remove(ctx context.Context, workflowID string) error
}
