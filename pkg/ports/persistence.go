package ports

import "context"

// Persistence is the bridge to the backend that owns lesson progress.
// Calls happen while the session lock is held; implementations must not call
// back into the session synchronously.
type Persistence interface {
	// CreateModule records a new file (module) for the step.
	CreateModule(ctx context.Context, stepID, name, content string) error

	// UpdateModule records the latest content of a file.
	UpdateModule(ctx context.Context, stepID, name, content string) error

	// DeleteModule removes a previously created file.
	DeleteModule(ctx context.Context, stepID, name string) error

	// PassCheckpoint marks a checkpoint as passed.
	PassCheckpoint(ctx context.Context, checkpointID string) error

	// CompleteCheckpoint marks a checkpoint as completed when the learner advances past its step.
	CompleteCheckpoint(ctx context.Context, checkpointID string) error
}
