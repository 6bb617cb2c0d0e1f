// Package channel delivers the editor's files to the sandbox.
//
// Routine re-renders (PostCode) and grading runs (TestCode) are debounced
// separately. Every debounced send captures the step epoch when it is scheduled
// and discards itself when the epoch moved on, so nothing from a previous step
// reaches the sandbox after navigation.
package channel

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync/atomic"
	"time"

	"github.com/aretw0/stepwise/internal/debounce"
	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/ports"
	"github.com/google/uuid"
)

// Default debounce delays.
const (
	DefaultPostDelay = 1500 * time.Millisecond
	DefaultTestDelay = 1500 * time.Millisecond
	DefaultTimeout   = 5 * time.Second
)

// Payload is what the editor wants the sandbox to see.
type Payload struct {
	StepID       string
	Files        map[string]string
	Dependencies map[string]string
	Main         string
	RunPath      string
	RunContent   string
	IsTest       bool
	RunID        string
}

// Gate is the grading flag owner consulted before a test send.
type Gate interface {
	IsGradingInFlight() bool
	BeginRun(runID string) bool
}

// Executor runs fn inside the owner's serialized loop. It returns false when
// the owner is gone and fn was not run.
type Executor func(fn func()) bool

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithDelays overrides the PostCode and TestCode debounce delays.
func WithDelays(post, test time.Duration) Option {
	return func(c *Channel) {
		c.postDelay = post
		c.testDelay = test
	}
}

// WithTimeout bounds a single delivery.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.timeout = d
	}
}

// WithExecutor serializes debounced sends with the session loop.
func WithExecutor(exec Executor) Option {
	return func(c *Channel) {
		c.exec = exec
	}
}

// WithHooks registers lifecycle hooks; only OnSync is used.
func WithHooks(sessionID string, hooks domain.LifecycleHooks) Option {
	return func(c *Channel) {
		c.sessionID = sessionID
		c.hooks = hooks
	}
}

// Channel is the editor side of the sandbox connection.
type Channel struct {
	sandbox ports.Sandbox
	gate    Gate

	post *debounce.Debouncer
	test *debounce.Debouncer

	postDelay time.Duration
	testDelay time.Duration
	timeout   time.Duration
	epoch     atomic.Uint64
	exec      Executor

	sessionID string
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
}

// New creates a Channel. A nil sandbox drops every send.
func New(sandbox ports.Sandbox, gate Gate, opts ...Option) *Channel {
	c := &Channel{
		sandbox:   sandbox,
		gate:      gate,
		postDelay: DefaultPostDelay,
		testDelay: DefaultTestDelay,
		timeout:   DefaultTimeout,
		exec:      func(fn func()) bool { fn(); return true },
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.post = debounce.New(c.postDelay)
	c.test = debounce.New(c.testDelay)
	return c
}

// Send delivers one message immediately. Dependency files are laid over the
// step files and the run content over both, at the run path.
// A missing sandbox yields domain.ErrNotMounted and is not retried.
func (c *Channel) Send(ctx context.Context, p Payload) error {
	files := make(map[string]string, len(p.Files)+len(p.Dependencies)+1)
	maps.Copy(files, p.Files)
	maps.Copy(files, p.Dependencies)
	if p.RunPath != "" {
		files[p.RunPath] = p.RunContent
	}

	msg := domain.EditorMessage{
		From:    domain.OriginEditor,
		Files:   files,
		RunPath: p.RunPath,
		IsTest:  p.IsTest,
		StepID:  p.StepID,
		RunID:   p.RunID,
	}

	kind := domain.SyncPost
	if p.IsTest {
		kind = domain.SyncTest
	}

	err := domain.ErrNotMounted
	if c.sandbox != nil {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		err = c.sandbox.Deliver(ctx, msg)
		cancel()
	}

	c.fireSync(ctx, p, kind, err == nil)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotMounted):
		c.logger.Debug("sandbox not mounted, message dropped", "step_id", p.StepID, "run_path", p.RunPath)
	default:
		c.logger.Warn("sandbox delivery failed", "step_id", p.StepID, "run_path", p.RunPath, "err", err)
	}
	return err
}

func (c *Channel) fireSync(ctx context.Context, p Payload, kind domain.SyncKind, delivered bool) {
	if c.hooks.OnSync == nil {
		return
	}
	c.hooks.OnSync(ctx, &domain.SyncEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      domain.EventSync,
			SessionID: c.sessionID,
			StepID:    p.StepID,
		},
		Kind:      kind,
		RunPath:   p.RunPath,
		Delivered: delivered,
	})
}

// PostCode schedules a routine re-render. Markup and stylesheet run paths cannot
// run on their own: their content is written into the file map and the main file
// becomes the run target.
func (c *Channel) PostCode(p Payload) {
	p.IsTest = false
	if domain.LanguageOf(p.RunPath).IsAsset() && p.Main != "" && p.Main != p.RunPath {
		p.Files = maps.Clone(p.Files)
		p.Files[p.RunPath] = p.RunContent
		p.RunPath = p.Main
		p.RunContent = p.Files[p.Main]
	}
	c.schedule(c.post, p, func(p Payload) {
		_ = c.Send(context.Background(), p)
	})
}

// TestCode schedules a grading run. When it fires while another run is in flight
// it is dropped, not queued.
func (c *Channel) TestCode(p Payload) {
	p.IsTest = true
	c.schedule(c.test, p, func(p Payload) {
		if c.gate != nil && c.gate.IsGradingInFlight() {
			c.logger.Debug("grading in flight, test send dropped", "step_id", p.StepID, "run_path", p.RunPath)
			return
		}
		p.RunID = uuid.NewString()
		if err := c.Send(context.Background(), p); err != nil {
			return
		}
		if c.gate != nil {
			c.gate.BeginRun(p.RunID)
		}
	})
}

func (c *Channel) schedule(d *debounce.Debouncer, p Payload, send func(Payload)) {
	epoch := c.epoch.Load()
	d.Trigger(func() {
		c.exec(func() {
			if c.epoch.Load() != epoch {
				c.logger.Debug("stale send discarded", "step_id", p.StepID)
				return
			}
			send(p)
		})
	})
}

// Reset cancels pending sends and invalidates any that already fired.
func (c *Channel) Reset() {
	c.epoch.Add(1)
	c.post.Cancel()
	c.test.Cancel()
}

// Pending reports whether a PostCode or TestCode send is waiting.
func (c *Channel) Pending() bool {
	return c.post.Pending() || c.test.Pending()
}
