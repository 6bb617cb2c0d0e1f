package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunProgressStoreContract runs a suite of tests to verify that a ProgressStore implementation
// adheres to the defined interface contract.
func RunProgressStoreContract(t *testing.T, store ProgressStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		progress := domain.NewProgress(sessionID, "lesson-1")
		progress.StepIndex = 2
		progress.MarkPassed("step-1", "c1")
		progress.MarkPassed("step-1", "c2")

		err := store.Save(ctx, progress)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "lesson-1", loaded.LessonID)
		assert.Equal(t, 2, loaded.StepIndex)
		assert.Equal(t, []string{"c1", "c2"}, loaded.Passed["step-1"])
	})

	t.Run("Load is isolated from later mutation", func(t *testing.T) {
		progress := domain.NewProgress(sessionID, "lesson-1")
		require.NoError(t, store.Save(ctx, progress))

		progress.MarkPassed("step-9", "late")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Empty(t, loaded.Passed["step-9"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, domain.NewProgress(sessionID, "lesson-1"))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, domain.NewProgress(id1, "lesson-1"))
		_ = store.Save(ctx, domain.NewProgress(id2, "lesson-1"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunLessonLoaderContract verifies that a LessonLoader serves the expected lessons.
// expected maps lesson IDs to the step IDs they must contain, in order.
func RunLessonLoaderContract(t *testing.T, loader LessonLoader, expected map[string][]string) {
	t.Helper()
	ctx := context.Background()

	t.Run("Load_Success", func(t *testing.T) {
		for id, steps := range expected {
			lesson, err := loader.Load(ctx, id)
			require.NoError(t, err, "loading lesson %s", id)
			assert.Equal(t, id, lesson.ID)

			got := make([]string, 0, len(lesson.Steps))
			for _, s := range lesson.Steps {
				got = append(got, s.ID)
			}
			assert.Equal(t, steps, got, "step order of %s", id)
		}
	})

	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := loader.Load(ctx, "non-existent-lesson")
		assert.Error(t, err)
	})

	t.Run("List", func(t *testing.T) {
		ids, err := loader.List(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, len(expected))
		for id := range expected {
			assert.Contains(t, ids, id)
		}
	})
}
