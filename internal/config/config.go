// Package config loads the stepwise server configuration from an optional
// YAML file and STEPWISE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/internal/runtime"
	"github.com/aretw0/stepwise/pkg/persistence/middleware"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config is the full server configuration.
type Config struct {
	Lessons    Lessons         `yaml:"lessons"`
	Server     Server          `yaml:"server"`
	Store      Store           `yaml:"store"`
	Redis      Redis           `yaml:"redis"`
	Bridge     Bridge          `yaml:"bridge"`
	Completion Endpoint        `yaml:"completion"`
	Packager   Endpoint        `yaml:"packager"`
	Sandbox    Sandbox         `yaml:"sandbox"`
	Log        Log             `yaml:"log"`
	Timings    runtime.Timings `yaml:"timings"`
	Retry      runtime.Retry   `yaml:"retry"`
}

// Lessons locates the lesson repository.
type Lessons struct {
	Dir      string `yaml:"dir"`
	FilesDir string `yaml:"files_dir"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

// Store selects where progress is kept.
type Store struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	EncryptionKey string `yaml:"encryption_key"`
	Audit         bool   `yaml:"audit"`
}

// Redis configures the shared Redis server used by the redis store, the
// session locker and the dependency cache.
type Redis struct {
	Addr       string        `yaml:"addr"`
	Prefix     string        `yaml:"prefix"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// Bridge configures the GraphQL persistence API. An empty endpoint disables it.
type Bridge struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
}

// Endpoint is a remote HTTP service. An empty URL disables it.
type Endpoint struct {
	URL string `yaml:"url"`
}

// Sandbox configures the local process sandbox. Without a runners file the
// server waits for WebSocket sandboxes instead.
type Sandbox struct {
	Runners     string        `yaml:"runners"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int64         `yaml:"concurrency"`
}

// Log configures the application logger.
type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Lessons: Lessons{Dir: "."},
		Server:  Server{Addr: ":8080", Metrics: true},
		Store:   Store{Driver: StoreMemory},
		Redis: Redis{
			Prefix:     "stepwise:",
			SessionTTL: 7 * 24 * time.Hour,
			CacheTTL:   24 * time.Hour,
		},
		Sandbox: Sandbox{Timeout: 30 * time.Second, Concurrency: 4},
		Log:     Log{Level: "info"},
		Timings: runtime.DefaultTimings(),
		Retry:   runtime.DefaultRetry(),
	}
}

// Load reads path (when not empty) over the defaults, applies the process
// environment and validates the result.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"STEPWISE_LESSONS_DIR":      &c.Lessons.Dir,
		"STEPWISE_FILES_DIR":        &c.Lessons.FilesDir,
		"STEPWISE_ADDR":             &c.Server.Addr,
		"STEPWISE_STORE":            &c.Store.Driver,
		"STEPWISE_STORE_PATH":       &c.Store.Path,
		"STEPWISE_ENCRYPTION_KEY":   &c.Store.EncryptionKey,
		"STEPWISE_REDIS_ADDR":       &c.Redis.Addr,
		"STEPWISE_REDIS_PREFIX":     &c.Redis.Prefix,
		"STEPWISE_GRAPHQL_ENDPOINT": &c.Bridge.Endpoint,
		"STEPWISE_GRAPHQL_TOKEN":    &c.Bridge.Token,
		"STEPWISE_COMPLETION_URL":   &c.Completion.URL,
		"STEPWISE_PACKAGER_URL":     &c.Packager.URL,
		"STEPWISE_RUNNERS":          &c.Sandbox.Runners,
		"STEPWISE_LOG_LEVEL":        &c.Log.Level,
		"STEPWISE_LOG_FILE":         &c.Log.File,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"STEPWISE_REDIS_SESSION_TTL": &c.Redis.SessionTTL,
		"STEPWISE_REDIS_CACHE_TTL":   &c.Redis.CacheTTL,
		"STEPWISE_CALL_TIMEOUT":      &c.Timings.CallTimeout,
		"STEPWISE_SANDBOX_TIMEOUT":   &c.Sandbox.Timeout,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := lookup("STEPWISE_METRICS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STEPWISE_METRICS: %w", err)
		}
		c.Server.Metrics = b
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Lessons.Dir) == "" {
		errs = append(errs, errors.New("lessons.dir is required"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}

	switch c.Store.Driver {
	case StoreMemory, StoreFile:
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required by the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: want memory, file or redis", c.Store.Driver))
	}
	if c.Store.EncryptionKey != "" {
		if _, err := middleware.ParseKey(c.Store.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("store.encryption_key: %w", err))
		}
	}

	if c.Redis.SessionTTL < 0 || c.Redis.CacheTTL < 0 {
		errs = append(errs, errors.New("redis TTLs must not be negative"))
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, errors.New("sandbox.timeout must be positive"))
	}
	if c.Sandbox.Concurrency < 1 {
		errs = append(errs, errors.New("sandbox.concurrency must be at least 1"))
	}

	t := c.Timings
	for name, d := range map[string]time.Duration{
		"post_delay":    t.PostDelay,
		"test_delay":    t.TestDelay,
		"write_delay":   t.WriteDelay,
		"suggest_delay": t.SuggestDelay,
		"ready_delay":   t.ReadyDelay,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("timings.%s must not be negative", name))
		}
	}
	if t.CallTimeout <= 0 {
		errs = append(errs, errors.New("timings.call_timeout must be positive"))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, errors.New("retry.attempts must be at least 1"))
	}
	if c.Retry.Base < 0 {
		errs = append(errs, errors.New("retry.base must not be negative"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}
