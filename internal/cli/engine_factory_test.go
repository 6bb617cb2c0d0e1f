package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/stepwise/internal/config"
	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/internal/testutils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lessonsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutils.WriteFiles(t, dir, map[string]string{
		"intro.md": `---
type: lesson
title: Intro
steps: [hello, check]
---`,
		"hello.md": `---
type: step
files:
  - path: /index.js
    content: "let x = 1;"
checkpoints:
  - id: c1
    message: Rename x to helloWorld
    test: /helloWorld/
---
Rename the variable.`,
		"check.md": `---
type: step
files:
  - path: /check.sh
    content: "exit 1"
checkpoints:
  - id: run
    message: Make the script succeed
    test: /check.sh
---
Fix the script.`,
	})
	return dir
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Lessons.Dir = lessonsDir(t)
	cfg.Timings.PostDelay = 5 * time.Millisecond
	cfg.Timings.TestDelay = 5 * time.Millisecond
	cfg.Timings.WriteDelay = 5 * time.Millisecond
	cfg.Timings.ReadyDelay = 5 * time.Millisecond
	cfg.Server.Metrics = false
	return cfg
}

func newApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	require.NoError(t, cfg.Validate())
	app, err := NewApp(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })
	return app
}

func TestNewApp_Defaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Metrics = true
	app := newApp(t, cfg)

	assert.NotNil(t, app.Hub, "websocket sandboxes by default")
	assert.Nil(t, app.Runner)
	assert.NotNil(t, app.Metrics)

	ids, err := app.Engine.Lessons(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"intro"}, ids)

	sess, err := app.Engine.Open(context.Background(), "s1", "intro")
	require.NoError(t, err)
	assert.Equal(t, "hello", sess.View().StepID)

	count, err := testutil.GatherAndCount(app.Metrics.Registry(), "stepwise_step_loads_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "metrics hooks are wired")
}

func TestNewApp_FileStoreEncrypted(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.StoreFile
	cfg.Store.Path = t.TempDir()
	cfg.Store.Audit = true
	cfg.Store.EncryptionKey = "MDEyMzQ1Njc4OTAxMjM0NTY3ODkwMTIzNDU2Nzg5MDE="
	app := newApp(t, cfg)

	ctx := context.Background()
	_, err := app.Engine.Open(ctx, "s1", "intro")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(cfg.Store.Path, "s1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sealed"`)
	assert.NotContains(t, string(raw), "intro", "lesson id is sealed")

	require.NoError(t, app.Engine.Close(ctx, "s1"))
	sess, err := app.Engine.Open(ctx, "s1", "")
	require.NoError(t, err, "sealed progress resumes")
	assert.Equal(t, "intro", sess.View().LessonID)
}

func TestNewApp_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Store.Driver = config.StoreRedis
	cfg.Redis.Addr = mr.Addr()
	app := newApp(t, cfg)

	ctx := context.Background()
	_, err := app.Engine.Open(ctx, "s1", "intro")
	require.NoError(t, err)

	assert.True(t, mr.Exists("stepwise:session:s1"))
	ttl := mr.TTL("stepwise:session:s1")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, cfg.Redis.SessionTTL)
}

func TestNewApp_ProcessRunner(t *testing.T) {
	runners := filepath.Join(t.TempDir(), "runners.yaml")
	require.NoError(t, os.WriteFile(runners, []byte("runners:\n  - extension: sh\n    command: sh\n"), 0644))

	cfg := testConfig(t)
	cfg.Sandbox.Runners = runners
	app := newApp(t, cfg)

	assert.Nil(t, app.Hub)
	require.NotNil(t, app.Runner)

	ctx := context.Background()
	sess, err := app.Engine.Open(ctx, "s1", "intro")
	require.NoError(t, err)
	_, err = sess.Edit(ctx, "/index.js", "let helloWorld = 1;")
	require.NoError(t, err)
	_, err = sess.Next(ctx)
	require.NoError(t, err)

	_, err = sess.Edit(ctx, "/check.sh", "exit 0")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return sess.View().Complete
	}, 5*time.Second, 10*time.Millisecond, "the local run reports a pass")
}

func TestNewApp_BadRunners(t *testing.T) {
	runners := filepath.Join(t.TempDir(), "runners.yaml")
	require.NoError(t, os.WriteFile(runners, []byte("runners: [\n"), 0644))

	cfg := testConfig(t)
	cfg.Sandbox.Runners = runners
	_, err := NewApp(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	_, _, err := NewLogger(config.Log{Level: "loud"})
	assert.Error(t, err)

	logger, closer, err := NewLogger(config.Log{Level: "info"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.NoError(t, closer.Close())

	path := filepath.Join(t.TempDir(), "stepwise.log")
	logger, closer, err = NewLogger(config.Log{Level: "debug", File: path})
	require.NoError(t, err)
	logger.Debug("hello", "session_id", "s1")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"session_id":"s1"`))
}
