package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stepwise.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWithEnv("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timings.PostDelay)
	assert.Equal(t, 3, cfg.Retry.Attempts)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
lessons:
  dir: ./lessons
  files_dir: ./files
server:
  addr: ":9090"
store:
  driver: redis
redis:
  addr: localhost:6379
  session_ttl: 1h
bridge:
  endpoint: http://api/graphql
  token: secret
timings:
  post_delay: 200ms
  call_timeout: 2s
retry:
  attempts: 5
  base: 50ms
log:
  level: debug
`)

	cfg, err := LoadWithEnv(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, "./lessons", cfg.Lessons.Dir)
	assert.Equal(t, "./files", cfg.Lessons.FilesDir)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, time.Hour, cfg.Redis.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.Redis.CacheTTL, "unset keys keep their default")
	assert.Equal(t, "secret", cfg.Bridge.Token)
	assert.Equal(t, 200*time.Millisecond, cfg.Timings.PostDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timings.TestDelay)
	assert.Equal(t, 2*time.Second, cfg.Timings.CallTimeout)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.Base)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := LoadWithEnv(writeConfig(t, ""), env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := LoadWithEnv(writeConfig(t, "lesons:\n  dir: x\n"), env(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lesons")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")

	cfg, err := LoadWithEnv(path, env(map[string]string{
		"STEPWISE_ADDR":            ":7070",
		"STEPWISE_STORE":           "file",
		"STEPWISE_STORE_PATH":      "/tmp/sessions",
		"STEPWISE_CALL_TIMEOUT":    "9s",
		"STEPWISE_METRICS":         "false",
		"STEPWISE_COMPLETION_URL":  "http://complete",
		"STEPWISE_SANDBOX_TIMEOUT": "1m",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, StoreFile, cfg.Store.Driver)
	assert.Equal(t, "/tmp/sessions", cfg.Store.Path)
	assert.Equal(t, 9*time.Second, cfg.Timings.CallTimeout)
	assert.False(t, cfg.Server.Metrics)
	assert.Equal(t, "http://complete", cfg.Completion.URL)
	assert.Equal(t, time.Minute, cfg.Sandbox.Timeout)
}

func TestLoad_BadEnv(t *testing.T) {
	_, err := LoadWithEnv("", env(map[string]string{"STEPWISE_CALL_TIMEOUT": "soon"}))
	assert.ErrorContains(t, err, "STEPWISE_CALL_TIMEOUT")

	_, err = LoadWithEnv("", env(map[string]string{"STEPWISE_METRICS": "maybe"}))
	assert.ErrorContains(t, err, "STEPWISE_METRICS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, "store.driver"},
		{"redis without addr", func(c *Config) { c.Store.Driver = StoreRedis }, "redis.addr"},
		{"bad key", func(c *Config) { c.Store.EncryptionKey = "c2hvcnQ=" }, "encryption_key"},
		{"negative delay", func(c *Config) { c.Timings.WriteDelay = -time.Second }, "timings.write_delay"},
		{"zero call timeout", func(c *Config) { c.Timings.CallTimeout = 0 }, "call_timeout"},
		{"no attempts", func(c *Config) { c.Retry.Attempts = 0 }, "retry.attempts"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"empty lessons", func(c *Config) { c.Lessons.Dir = " " }, "lessons.dir"},
		{"no concurrency", func(c *Config) { c.Sandbox.Concurrency = 0 }, "sandbox.concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("joins every failure", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Addr = ""
		cfg.Retry.Attempts = 0
		err := cfg.Validate()
		assert.ErrorContains(t, err, "server.addr")
		assert.ErrorContains(t, err, "retry.attempts")
	})

	t.Run("valid key", func(t *testing.T) {
		cfg := Default()
		cfg.Store.EncryptionKey = "MDEyMzQ1Njc4OTAxMjM0NTY3ODkwMTIzNDU2Nzg5MDE="
		assert.NoError(t, cfg.Validate())
	})
}
