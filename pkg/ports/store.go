package ports

import (
	"context"

	"github.com/aretw0/stepwise/pkg/domain"
)

// ProgressStore defines the interface for persisting learner progress.
// This allows a learner to reconnect and resume with the checkpoints already passed.
type ProgressStore interface {
	// Save persists the progress of its session.
	Save(ctx context.Context, progress *domain.Progress) error

	// Load retrieves the progress for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Progress, error)

	// Delete removes the progress for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of stored sessions.
	List(ctx context.Context) ([]string, error)
}
