package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepLoad         EventType = "step_load"
	EventStepComplete     EventType = "step_complete"
	EventCheckpointPassed EventType = "checkpoint_passed"
	EventSync             EventType = "sync"
	EventSuggestion       EventType = "suggestion"
	EventPersistFailed    EventType = "persist_failed"
)

// SyncKind distinguishes the routine re-render send from the grading send.
type SyncKind string

const (
	SyncPost SyncKind = "post"
	SyncTest SyncKind = "test"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	StepID    string    `json:"step_id"`
}

// StepEvent is emitted when a step is loaded or completed.
type StepEvent struct {
	EventBase
	Index int `json:"index"`
}

// CheckpointEvent is emitted when a checkpoint flips to passed.
type CheckpointEvent struct {
	EventBase
	CheckpointID string         `json:"checkpoint_id"`
	Kind         CheckpointKind `json:"kind"`
}

// SyncEvent is emitted for every sandbox send attempt.
type SyncEvent struct {
	EventBase
	Kind      SyncKind `json:"kind"`
	RunPath   string   `json:"run_path"`
	Delivered bool     `json:"delivered"`
}

// SuggestionEvent is emitted when a completion request finishes.
type SuggestionEvent struct {
	EventBase
	Duration time.Duration `json:"duration"`
	Offered  bool          `json:"offered"`
	Err      error         `json:"-"`
}

// PersistEvent is emitted when a bridge mutation gave up after its retries.
type PersistEvent struct {
	EventBase
	Op           string `json:"op"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
	Attempts     int    `json:"attempts"`
	Err          error  `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStepLoad         func(context.Context, *StepEvent)
	OnStepComplete     func(context.Context, *StepEvent)
	OnCheckpointPassed func(context.Context, *CheckpointEvent)
	OnSync             func(context.Context, *SyncEvent)
	OnSuggestion       func(context.Context, *SuggestionEvent)
	OnPersistFailed    func(context.Context, *PersistEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStepLoad:         chain(h.OnStepLoad, other.OnStepLoad),
		OnStepComplete:     chain(h.OnStepComplete, other.OnStepComplete),
		OnCheckpointPassed: chain(h.OnCheckpointPassed, other.OnCheckpointPassed),
		OnSync:             chain(h.OnSync, other.OnSync),
		OnSuggestion:       chain(h.OnSuggestion, other.OnSuggestion),
		OnPersistFailed:    chain(h.OnPersistFailed, other.OnPersistFailed),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
