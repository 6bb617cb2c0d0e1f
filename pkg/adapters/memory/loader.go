package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aretw0/stepwise/pkg/domain"
)

// Loader implements ports.LessonLoader using an in-memory map.
type Loader struct {
	lessons map[string][]byte
}

// NewLoader creates a new Loader with the provided raw data (JSON lessons keyed by ID).
func NewLoader(data map[string]string) *Loader {
	lessons := make(map[string][]byte)
	for k, v := range data {
		lessons[k] = []byte(v)
	}
	return &Loader{
		lessons: lessons,
	}
}

// NewFromLessons creates a new Loader from domain objects.
// This handles serialization automatically, improving DX for tests.
func NewFromLessons(lessons ...domain.Lesson) (*Loader, error) {
	data := make(map[string][]byte)
	for _, l := range lessons {
		if l.ID == "" {
			return nil, fmt.Errorf("lesson missing ID")
		}
		bytes, err := json.Marshal(l)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal lesson %s: %w", l.ID, err)
		}
		data[l.ID] = bytes
	}
	return &Loader{lessons: data}, nil
}

// Load decodes the lesson stored under id. Each call returns a fresh copy.
func (l *Loader) Load(ctx context.Context, id string) (domain.Lesson, error) {
	raw, ok := l.lessons[id]
	if !ok {
		return domain.Lesson{}, fmt.Errorf("%s: %w", id, domain.ErrLessonNotFound)
	}
	var lesson domain.Lesson
	if err := json.Unmarshal(raw, &lesson); err != nil {
		return domain.Lesson{}, fmt.Errorf("failed to decode lesson %s: %w", id, err)
	}
	if lesson.ID == "" {
		lesson.ID = id
	}
	if len(lesson.Steps) == 0 {
		return domain.Lesson{}, fmt.Errorf("lesson %s: %w", id, domain.ErrStepNotFound)
	}
	return lesson, nil
}

// List returns all available lesson IDs.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(l.lessons))
	for k := range l.lessons {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys, nil
}
