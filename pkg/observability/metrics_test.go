package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/stepwise"
	"github.com/aretw0/stepwise/pkg/adapters/memory"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordEvents(t *testing.T) {
	m := observability.NewMetrics()
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnStepLoad(ctx, &domain.StepEvent{EventBase: domain.EventBase{StepID: "hello"}})
	hooks.OnStepLoad(ctx, &domain.StepEvent{EventBase: domain.EventBase{StepID: "hello"}})
	hooks.OnCheckpointPassed(ctx, &domain.CheckpointEvent{Kind: domain.KindRegex})
	hooks.OnSync(ctx, &domain.SyncEvent{Kind: domain.SyncTest, Delivered: false})
	hooks.OnSuggestion(ctx, &domain.SuggestionEvent{Duration: 20 * time.Millisecond, Offered: true})
	hooks.OnSuggestion(ctx, &domain.SuggestionEvent{Err: errors.New("timeout")})
	hooks.OnPersistFailed(ctx, &domain.PersistEvent{Op: "passCheckpoint"})

	expected := `
# HELP stepwise_step_loads_total Total number of step loads
# TYPE stepwise_step_loads_total counter
stepwise_step_loads_total{step_id="hello"} 2
# HELP stepwise_suggestions_total Total number of finished completion requests
# TYPE stepwise_suggestions_total counter
stepwise_suggestions_total{outcome="error"} 1
stepwise_suggestions_total{outcome="offered"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), bytes.NewBufferString(expected),
		"stepwise_step_loads_total", "stepwise_suggestions_total"))

	count, err := testutil.GatherAndCount(m.Registry(), "stepwise_sandbox_syncs_total", "stepwise_persist_failures_total", "stepwise_checkpoint_passes_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMetrics_Handler(t *testing.T) {
	m := observability.NewMetrics(observability.WithRuntimeCollectors())
	m.Hooks().OnStepComplete(context.Background(), &domain.StepEvent{EventBase: domain.EventBase{StepID: "sum"}})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `stepwise_step_completions_total{step_id="sum"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestHooks_WithEngine(t *testing.T) {
	loader, err := memory.NewFromLessons(domain.Lesson{
		ID: "intro",
		Steps: []domain.Step{{
			ID:    "hello",
			Files: []domain.FileEntry{{Path: "/index.js", Content: "let x = 1;"}},
			Checkpoints: []domain.Checkpoint{
				{ID: "c1", Message: "Name it helloWorld", Test: domain.TestSpec{Pattern: "/helloWorld/"}},
			},
		}},
	})
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	m := observability.NewMetrics()

	engine, err := stepwise.New("",
		stepwise.WithLoader(loader),
		stepwise.WithLifecycleHooks(m.Hooks().Merge(observability.LoggingHooks(logger))),
	)
	require.NoError(t, err)
	ctx := context.Background()
	defer engine.Shutdown(ctx)

	sess, err := engine.Open(ctx, "learner", "intro")
	require.NoError(t, err)
	_, err = sess.Edit(ctx, "/index.js", "let helloWorld = 1;")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(m.Registry(), "stepwise_checkpoint_passes_total", "stepwise_step_completions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var kinds []string
	dec := json.NewDecoder(&logs)
	for dec.More() {
		var rec map[string]any
		require.NoError(t, dec.Decode(&rec))
		kinds = append(kinds, rec["msg"].(string))
	}
	assert.Contains(t, kinds, "step_load")
	assert.Contains(t, kinds, "checkpoint_passed")
	assert.Contains(t, kinds, "step_complete")
}
