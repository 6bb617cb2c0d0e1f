package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/stepwise"
	"github.com/aretw0/stepwise/internal/config"
	"github.com/aretw0/stepwise/pkg/adapters/completion"
	"github.com/aretw0/stepwise/pkg/adapters/file"
	"github.com/aretw0/stepwise/pkg/adapters/graphql"
	"github.com/aretw0/stepwise/pkg/adapters/memory"
	"github.com/aretw0/stepwise/pkg/adapters/packager"
	"github.com/aretw0/stepwise/pkg/adapters/process"
	redisAdapter "github.com/aretw0/stepwise/pkg/adapters/redis"
	"github.com/aretw0/stepwise/pkg/adapters/websocket"
	"github.com/aretw0/stepwise/pkg/observability"
	"github.com/aretw0/stepwise/pkg/persistence/middleware"
	"github.com/aretw0/stepwise/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// App is an engine wired to the infrastructure named in the configuration.
type App struct {
	Engine *stepwise.Engine

	// Hub accepts WebSocket sandboxes. Nil when a process runner grades locally.
	Hub *websocket.Hub

	// Runner is the local process sandbox, when configured.
	Runner *process.Runner

	// Metrics is nil when metrics are disabled.
	Metrics *observability.Metrics

	redis *backend.Client
}

// NewApp builds the engine and its adapters from cfg.
func NewApp(cfg config.Config, logger *slog.Logger) (*App, error) {
	app := &App{}

	hooks := observability.LoggingHooks(logger)
	if cfg.Server.Metrics {
		app.Metrics = observability.NewMetrics(observability.WithRuntimeCollectors())
		hooks = hooks.Merge(app.Metrics.Hooks())
	}

	opts := []stepwise.Option{
		stepwise.WithLogger(logger),
		stepwise.WithFilesDir(cfg.Lessons.FilesDir),
		stepwise.WithTimings(cfg.Timings),
		stepwise.WithRetry(cfg.Retry),
		stepwise.WithLifecycleHooks(hooks),
	}

	if cfg.Redis.Addr != "" {
		app.redis = backend.NewClient(&backend.Options{Addr: cfg.Redis.Addr})
		opts = append(opts, stepwise.WithLocker(redisAdapter.NewLocker(app.redis, cfg.Redis.Prefix+"lock:")))
	}

	store, err := app.openStore(cfg, logger)
	if err != nil {
		app.closeRedis()
		return nil, err
	}
	opts = append(opts, stepwise.WithStore(store))

	if cfg.Bridge.Endpoint != "" {
		opts = append(opts, stepwise.WithPersistence(graphql.New(cfg.Bridge.Endpoint,
			graphql.WithToken(cfg.Bridge.Token),
			graphql.WithLogger(logger),
		)))
	}
	if cfg.Completion.URL != "" {
		opts = append(opts, stepwise.WithCompleter(completion.New(cfg.Completion.URL, completion.WithLogger(logger))))
	}
	opts = append(opts, stepwise.WithResolver(app.resolver(cfg, logger)))

	sandboxes, err := app.sandboxes(cfg, logger)
	if err != nil {
		app.closeRedis()
		return nil, err
	}
	opts = append(opts, stepwise.WithSandboxes(sandboxes))

	engine, err := stepwise.New(cfg.Lessons.Dir, opts...)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	app.Engine = engine
	return app, nil
}

func (a *App) openStore(cfg config.Config, logger *slog.Logger) (ports.ProgressStore, error) {
	var store ports.ProgressStore
	switch cfg.Store.Driver {
	case config.StoreFile:
		store = file.New(cfg.Store.Path)
	case config.StoreRedis:
		store = redisAdapter.NewFromClient(a.redis,
			redisAdapter.WithPrefix(cfg.Redis.Prefix+"session:"),
			redisAdapter.WithTTL(cfg.Redis.SessionTTL),
		)
	default:
		store = memory.NewStore()
	}

	var mws []middleware.Middleware
	if cfg.Store.Audit {
		mws = append(mws, middleware.NewLoggingMiddleware(logger))
	}
	if cfg.Store.EncryptionKey != "" {
		key, err := middleware.ParseKey(cfg.Store.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	return middleware.Chain(store, mws...), nil
}

func (a *App) resolver(cfg config.Config, logger *slog.Logger) ports.DependencyResolver {
	popts := []packager.Option{packager.WithLogger(logger)}
	if cfg.Packager.URL != "" {
		popts = append(popts, packager.WithBaseURL(cfg.Packager.URL))
	}
	var resolver ports.DependencyResolver = packager.New(popts...)
	if a.redis != nil {
		resolver = redisAdapter.NewDependencyCache(a.redis, resolver,
			redisAdapter.WithCachePrefix(cfg.Redis.Prefix+"deps:"),
			redisAdapter.WithCacheTTL(cfg.Redis.CacheTTL),
			redisAdapter.WithCacheLogger(logger),
		)
	}
	return resolver
}

// sandboxes grades with local processes when a runners file is configured and
// with WebSocket sandboxes otherwise.
func (a *App) sandboxes(cfg config.Config, logger *slog.Logger) (stepwise.SandboxFunc, error) {
	if cfg.Sandbox.Runners == "" {
		a.Hub = websocket.NewHub(websocket.WithLogger(logger))
		return a.Hub.Sandbox, nil
	}

	runners, err := process.LoadRunners(cfg.Sandbox.Runners)
	if err != nil {
		return nil, err
	}
	a.Runner = process.NewRunner(a.receiver,
		process.WithRegistry(runners),
		process.WithTimeout(cfg.Sandbox.Timeout),
		process.WithConcurrency(cfg.Sandbox.Concurrency),
		process.WithLogger(logger),
	)
	return a.Runner.Sandbox, nil
}

func (a *App) receiver(sessionID string) (process.Receiver, bool) {
	if a.Engine == nil {
		return nil, false
	}
	sess, ok := a.Engine.Get(sessionID)
	if !ok {
		return nil, false
	}
	return sess, true
}

// Close stops the sandboxes, closes every session and releases Redis.
func (a *App) Close(ctx context.Context) {
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Runner != nil {
		a.Runner.Close()
	}
	if a.Engine != nil {
		a.Engine.Shutdown(ctx)
	}
	a.closeRedis()
}

func (a *App) closeRedis() {
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
}
