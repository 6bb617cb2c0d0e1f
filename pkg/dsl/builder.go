package dsl

import (
	"fmt"

	"github.com/aretw0/stepwise/pkg/adapters/memory"
	"github.com/aretw0/stepwise/pkg/domain"
)

// Builder manages the lesson construction.
type Builder struct {
	lesson domain.Lesson
	steps  []*StepBuilder
	index  map[string]*StepBuilder
}

// New creates a new lesson builder.
func New(id string) *Builder {
	return &Builder{
		lesson: domain.Lesson{ID: id},
		index:  make(map[string]*StepBuilder),
	}
}

// Title sets the lesson title.
func (b *Builder) Title(title string) *Builder {
	b.lesson.Title = title
	return b
}

// Step appends a step to the lesson.
// If the step already exists, it returns the existing builder.
func (b *Builder) Step(id string) *StepBuilder {
	if sb, ok := b.index[id]; ok {
		return sb
	}
	sb := &StepBuilder{step: domain.Step{ID: id}}
	b.steps = append(b.steps, sb)
	b.index[id] = sb
	return sb
}

// Lesson returns the lesson built so far.
func (b *Builder) Lesson() domain.Lesson {
	lesson := b.lesson
	lesson.Steps = make([]domain.Step, 0, len(b.steps))
	for _, sb := range b.steps {
		lesson.Steps = append(lesson.Steps, sb.Build())
	}
	return lesson
}

// Build compiles the lesson into a memory loader.
func (b *Builder) Build() (*memory.Loader, error) {
	if len(b.steps) == 0 {
		return nil, fmt.Errorf("lesson %s: %w", b.lesson.ID, domain.ErrStepNotFound)
	}
	loader, err := memory.NewFromLessons(b.Lesson())
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}
