package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/ports"
)

// Timings groups the debounce delays and deadlines of a session.
type Timings struct {
	PostDelay    time.Duration `yaml:"post_delay"`
	TestDelay    time.Duration `yaml:"test_delay"`
	WriteDelay   time.Duration `yaml:"write_delay"`
	SuggestDelay time.Duration `yaml:"suggest_delay"`
	ReadyDelay   time.Duration `yaml:"ready_delay"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
}

// DefaultTimings returns the production delays.
func DefaultTimings() Timings {
	return Timings{
		PostDelay:    1500 * time.Millisecond,
		TestDelay:    1500 * time.Millisecond,
		WriteDelay:   1000 * time.Millisecond,
		SuggestDelay: 100 * time.Millisecond,
		ReadyDelay:   1000 * time.Millisecond,
		CallTimeout:  5 * time.Second,
	}
}

// Retry bounds the background confirmation of passed checkpoints.
type Retry struct {
	Attempts int           `yaml:"attempts"`
	Base     time.Duration `yaml:"base"`
}

// DefaultRetry tries three times, doubling from 500ms.
func DefaultRetry() Retry {
	return Retry{Attempts: 3, Base: 500 * time.Millisecond}
}

// ProgressSink persists a progress snapshot.
type ProgressSink func(ctx context.Context, progress *domain.Progress) error

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithSandbox attaches the sandbox endpoint.
func WithSandbox(sandbox ports.Sandbox) Option {
	return func(s *Session) {
		s.sandbox = sandbox
	}
}

// WithPersistence attaches the persistence bridge.
func WithPersistence(bridge ports.Persistence) Option {
	return func(s *Session) {
		s.bridge = bridge
	}
}

// WithCompleter attaches the completion service.
func WithCompleter(completer ports.Completer) Option {
	return func(s *Session) {
		s.completer = completer
	}
}

// WithResolver attaches the dependency resolver.
func WithResolver(resolver ports.DependencyResolver) Option {
	return func(s *Session) {
		s.resolver = resolver
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Session) {
		s.hooks = hooks
	}
}

// WithTimings overrides the delays.
func WithTimings(t Timings) Option {
	return func(s *Session) {
		s.timings = t
	}
}

// WithRetry overrides the pass confirmation retry policy.
func WithRetry(r Retry) Option {
	return func(s *Session) {
		s.retry = r
	}
}

// WithProgress resumes from a stored progress record.
func WithProgress(p *domain.Progress) Option {
	return func(s *Session) {
		if p != nil {
			s.progress = p.Snapshot()
		}
	}
}

// WithProgressSink sets where progress is saved after passes and navigation.
func WithProgressSink(sink ProgressSink) Option {
	return func(s *Session) {
		s.sink = sink
	}
}
