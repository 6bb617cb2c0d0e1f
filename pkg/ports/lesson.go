package ports

import (
	"context"

	"github.com/aretw0/stepwise/pkg/domain"
)

// LessonLoader defines how the engine retrieves lesson definitions.
// This allows the storage layer (Loam, Memory) to be decoupled.
type LessonLoader interface {
	// Load retrieves a lesson by ID.
	// Returns domain.ErrLessonNotFound wrapped when no lesson has that ID and
	// domain.ErrStepNotFound wrapped when the lesson has no steps.
	Load(ctx context.Context, lessonID string) (domain.Lesson, error)

	// List returns the IDs of all available lessons.
	List(ctx context.Context) ([]string, error)
}
