package stepwise

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/internal/runtime"
	loamAdapter "github.com/aretw0/stepwise/pkg/adapters/loam"
	"github.com/aretw0/stepwise/pkg/adapters/memory"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/ports"
	"github.com/aretw0/stepwise/pkg/session"
)

// Session is a live learner session. See internal/runtime for its operations.
type Session = runtime.Session

// Timings groups the debounce delays and deadlines of every session.
type Timings = runtime.Timings

// Retry bounds the background confirmation of passed checkpoints.
type Retry = runtime.Retry

// SandboxFunc returns the sandbox endpoint of a session.
type SandboxFunc func(sessionID string) ports.Sandbox

// Engine is the high-level entry point for the Stepwise library.
// It loads lessons, opens sessions and keeps them alive until closed.
type Engine struct {
	loader      ports.LessonLoader
	store       ports.ProgressStore
	locker      ports.DistributedLocker
	manager     *session.Manager
	sandboxes   SandboxFunc
	persistence ports.Persistence
	completer   ports.Completer
	resolver    ports.DependencyResolver
	hooks       domain.LifecycleHooks
	timings     runtime.Timings
	retry       runtime.Retry
	filesDir    string
	logger      *slog.Logger
	Name        string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLoader injects a custom LessonLoader, bypassing the default Loam initialization.
func WithLoader(l ports.LessonLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithFilesDir reads extra step files from dir/<stepID>/ when lessons come from Loam.
func WithFilesDir(dir string) Option {
	return func(e *Engine) {
		e.filesDir = dir
	}
}

// WithStore sets where session progress is kept. Defaults to memory.
func WithStore(store ports.ProgressStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker coordinates session access across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithSandboxes sets how sessions reach their sandbox.
func WithSandboxes(fn SandboxFunc) Option {
	return func(e *Engine) {
		e.sandboxes = fn
	}
}

// WithPersistence attaches the persistence bridge.
func WithPersistence(p ports.Persistence) Option {
	return func(e *Engine) {
		e.persistence = p
	}
}

// WithCompleter attaches the suggestion service.
func WithCompleter(c ports.Completer) Option {
	return func(e *Engine) {
		e.completer = c
	}
}

// WithResolver attaches the dependency resolver.
func WithResolver(r ports.DependencyResolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithTimings overrides the session delays.
func WithTimings(t Timings) Option {
	return func(e *Engine) {
		e.timings = t
	}
}

// WithRetry overrides the pass confirmation retry policy.
func WithRetry(r Retry) Option {
	return func(e *Engine) {
		e.retry = r
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New initializes a new Stepwise Engine.
// By default, it reads lessons from a Loam repository at the given path.
// If WithLoader option is provided, repoPath can be empty and Loam is skipped.
func New(repoPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{
		timings: runtime.DefaultTimings(),
		retry:   runtime.DefaultRetry(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	if eng.loader == nil {
		if repoPath == "" {
			return nil, fmt.Errorf("repoPath is required when no custom loader is provided")
		}
		loader, err := loamAdapter.Open(repoPath, loamAdapter.WithFiles(eng.filesDir))
		if err != nil {
			return nil, err
		}
		eng.loader = loader
		if abs, err := filepath.Abs(repoPath); err == nil {
			eng.Name = filepath.Base(abs)
		}
	} else if repoPath != "" {
		eng.Name = filepath.Base(repoPath)
	}

	if eng.Name != "" {
		eng.logger = eng.logger.With("lessons", eng.Name)
	}

	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	managerOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(eng.locker))
	}
	eng.manager = session.NewManager(eng.store, managerOpts...)

	return eng, nil
}

// Lessons lists the available lesson IDs.
func (e *Engine) Lessons(ctx context.Context) ([]string, error) {
	return e.loader.List(ctx)
}

// Inspect loads a lesson definition.
func (e *Engine) Inspect(ctx context.Context, lessonID string) (domain.Lesson, error) {
	return e.loader.Load(ctx, lessonID)
}

// Open returns the live session sessionID, creating it on lessonID when needed.
// A new session resumes at the step recorded in its progress.
// An empty lessonID reopens whatever lesson the session was on.
func (e *Engine) Open(ctx context.Context, sessionID, lessonID string) (*Session, error) {
	return e.manager.Open(ctx, sessionID, lessonID, func(ctx context.Context, progress *domain.Progress) (*Session, error) {
		lesson, err := e.loader.Load(ctx, progress.LessonID)
		if err != nil {
			return nil, err
		}
		sess := runtime.NewSession(sessionID, lesson, e.sessionOptions(sessionID, progress)...)
		if _, err := sess.Resume(ctx); err != nil {
			_ = sess.Close()
			return nil, fmt.Errorf("failed to resume session %s: %w", sessionID, err)
		}
		return sess, nil
	})
}

func (e *Engine) sessionOptions(sessionID string, progress *domain.Progress) []runtime.Option {
	opts := []runtime.Option{
		runtime.WithLogger(e.logger),
		runtime.WithProgress(progress),
		runtime.WithProgressSink(e.store.Save),
		runtime.WithLifecycleHooks(e.hooks),
		runtime.WithTimings(e.timings),
		runtime.WithRetry(e.retry),
	}
	if e.sandboxes != nil {
		opts = append(opts, runtime.WithSandbox(e.sandboxes(sessionID)))
	}
	if e.persistence != nil {
		opts = append(opts, runtime.WithPersistence(e.persistence))
	}
	if e.completer != nil {
		opts = append(opts, runtime.WithCompleter(e.completer))
	}
	if e.resolver != nil {
		opts = append(opts, runtime.WithResolver(e.resolver))
	}
	return opts
}

// Get returns a live session.
func (e *Engine) Get(sessionID string) (*Session, bool) {
	return e.manager.Get(sessionID)
}

// Close stops a live session and saves its progress.
func (e *Engine) Close(ctx context.Context, sessionID string) error {
	return e.manager.Close(ctx, sessionID)
}

// Forget closes a session and deletes its progress.
func (e *Engine) Forget(ctx context.Context, sessionID string) error {
	return e.manager.Delete(ctx, sessionID)
}

// Shutdown closes every live session.
func (e *Engine) Shutdown(ctx context.Context) {
	e.manager.CloseAll(ctx)
}

// Loader returns the underlying LessonLoader used by the engine.
func (e *Engine) Loader() ports.LessonLoader {
	return e.loader
}

// Manager returns the session manager.
func (e *Engine) Manager() *session.Manager {
	return e.manager
}
