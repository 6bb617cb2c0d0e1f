package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/stepwise/pkg/domain"
)

// LoggingHooks returns lifecycle hooks that write one audit record per event.
// Sync events are logged at debug level since every keystroke produces them.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepLoad: func(ctx context.Context, e *domain.StepEvent) {
			logger.InfoContext(ctx, "step_load", "session_id", e.SessionID, "step_id", e.StepID, "index", e.Index)
		},
		OnStepComplete: func(ctx context.Context, e *domain.StepEvent) {
			logger.InfoContext(ctx, "step_complete", "session_id", e.SessionID, "step_id", e.StepID, "index", e.Index)
		},
		OnCheckpointPassed: func(ctx context.Context, e *domain.CheckpointEvent) {
			logger.InfoContext(ctx, "checkpoint_passed",
				"session_id", e.SessionID,
				"step_id", e.StepID,
				"checkpoint_id", e.CheckpointID,
				"kind", e.Kind,
			)
		},
		OnSync: func(ctx context.Context, e *domain.SyncEvent) {
			logger.DebugContext(ctx, "sync",
				"session_id", e.SessionID,
				"step_id", e.StepID,
				"kind", e.Kind,
				"run_path", e.RunPath,
				"delivered", e.Delivered,
			)
		},
		OnSuggestion: func(ctx context.Context, e *domain.SuggestionEvent) {
			logger.InfoContext(ctx, "suggestion",
				"session_id", e.SessionID,
				"step_id", e.StepID,
				"duration", e.Duration,
				"offered", e.Offered,
				"err", e.Err,
			)
		},
		OnPersistFailed: func(ctx context.Context, e *domain.PersistEvent) {
			logger.ErrorContext(ctx, "persist_failed",
				"session_id", e.SessionID,
				"step_id", e.StepID,
				"op", e.Op,
				"checkpoint_id", e.CheckpointID,
				"attempts", e.Attempts,
				"err", e.Err,
			)
		},
	}
}
