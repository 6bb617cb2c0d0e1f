// Package runtime runs one learner session: the workspace, the editor handles,
// the sandbox channel, grading and suggestions of the step being edited.
//
// Every handler runs under a single session mutex. Public operations, debounce
// timers and sandbox messages therefore behave like events of one cooperative
// loop. Timers capture the step epoch when scheduled and discard themselves when
// a navigation happened in between.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/stepwise/internal/channel"
	"github.com/aretw0/stepwise/internal/debounce"
	"github.com/aretw0/stepwise/internal/grading"
	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/internal/suggest"
	"github.com/aretw0/stepwise/internal/workspace"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/ports"
	"github.com/aretw0/stepwise/pkg/registry"
)

// watchBuffer is the number of view diffs a slow watcher may lag behind.
const watchBuffer = 32

// Session is the editor session of one learner on one lesson.
type Session struct {
	mu     sync.Mutex
	closed bool

	id     string
	lesson domain.Lesson
	index  int
	step   domain.Step
	epoch  uint64
	cursor *domain.Position

	ws      *workspace.Model
	reg     *registry.Registry
	grader  *grading.Machine
	channel *channel.Channel
	suggest *suggest.Engine
	writes  *debounce.Group

	readyTimer  *debounce.Debouncer
	loaderReady bool
	editorReady bool
	ready       bool

	progress    *domain.Progress
	outstanding map[uint64]int // pass confirmations in flight, per step epoch

	watchers  map[int]chan *domain.ViewDiff
	nextWatch int
	lastView  *domain.View

	sandbox   ports.Sandbox
	bridge    ports.Persistence
	completer ports.Completer
	resolver  ports.DependencyResolver
	sink      ProgressSink
	hooks     domain.LifecycleHooks
	timings   Timings
	retry     Retry
	logger    *slog.Logger

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
	unsub    func()
}

// NewSession wires a session for lesson. No step is loaded until LoadStep.
func NewSession(id string, lesson domain.Lesson, opts ...Option) *Session {
	s := &Session{
		id:       id,
		lesson:   lesson,
		index:       -1,
		watchers:    make(map[int]chan *domain.ViewDiff),
		outstanding: make(map[uint64]int),
		timings:     DefaultTimings(),
		retry:       DefaultRetry(),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.progress == nil {
		s.progress = domain.NewProgress(id, lesson.ID)
	}
	s.logger = s.logger.With("session_id", id)
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())

	s.ws = workspace.New(workspace.WithLogger(s.logger))
	s.reg = registry.NewRegistry(registry.WithLogger(s.logger))
	s.grader = grading.New(grading.WithLogger(s.logger))
	s.channel = channel.New(s.sandbox, s.grader,
		channel.WithLogger(s.logger),
		channel.WithDelays(s.timings.PostDelay, s.timings.TestDelay),
		channel.WithTimeout(s.timings.CallTimeout),
		channel.WithExecutor(s.exec),
		channel.WithHooks(id, s.hooks),
	)
	s.suggest = suggest.New(s.completer,
		suggest.WithLogger(s.logger),
		suggest.WithDelay(s.timings.SuggestDelay),
		suggest.WithHooks(id, s.hooks),
	)
	s.writes = debounce.NewGroup(s.timings.WriteDelay)
	s.readyTimer = debounce.New(s.timings.ReadyDelay)
	s.unsub = s.ws.Subscribe(s.onChange)

	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Lesson returns the lesson being taken.
func (s *Session) Lesson() domain.Lesson {
	return s.lesson
}

// Progress returns a copy of the progress record.
func (s *Session) Progress() *domain.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Snapshot()
}

// exec runs fn inside the session loop. It is the entry point of every timer
// and background completion.
func (s *Session) exec(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	s.publishLocked()
	return true
}

// do is exec for public operations that return an error.
func (s *Session) do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	err := fn()
	s.publishLocked()
	return err
}

func (s *Session) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.bgCtx, s.timings.CallTimeout)
}

func (s *Session) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: time.Now(),
		Type:      t,
		SessionID: s.id,
		StepID:    s.step.ID,
	}
}

// View returns the current read model.
func (s *Session) View() *domain.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() *domain.View {
	snap := s.ws.Snapshot()
	checkpoints := s.grader.Checkpoints()
	if checkpoints == nil {
		checkpoints = []domain.Checkpoint{}
	}
	if snap.Files == nil {
		snap.Files = map[string]string{}
	}
	if snap.Paths == nil {
		snap.Paths = []string{}
	}

	var current string
	if cp, ok := s.grader.Current(); ok {
		current = cp.ID
	}
	complete := s.grader.Complete()

	var cursor *domain.Position
	if s.cursor != nil {
		c := *s.cursor
		cursor = &c
	}

	return &domain.View{
		SessionID:    s.id,
		LessonID:     s.lesson.ID,
		StepID:       s.step.ID,
		StepIndex:    s.index,
		StepCount:    len(s.lesson.Steps),
		Instructions: s.step.Instructions,
		Files:        snap.Files,
		Paths:        snap.Paths,
		Active:       snap.Active,
		Main:         snap.Main,
		Cursor:       cursor,
		Checkpoints:  checkpoints,
		Current:      current,
		Complete:     complete,
		Loading:      complete && s.outstanding[s.epoch] > 0,
		Grading:      s.grader.IsGradingInFlight(),
		Ready:        s.ready,
	}
}

// Watch streams view diffs, starting with the full current view.
// The returned function stops the stream.
func (s *Session) Watch() (<-chan *domain.ViewDiff, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *domain.ViewDiff, watchBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = ch
	if diff := domain.Diff(nil, s.viewLocked()); diff != nil {
		ch <- diff
	}

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
	}
}

func (s *Session) publishLocked() {
	view := s.viewLocked()
	diff := domain.Diff(s.lastView, view)
	s.lastView = view
	if diff == nil {
		return
	}
	for id, ch := range s.watchers {
		select {
		case ch <- diff:
		default:
			s.logger.Debug("watcher lagging, diff dropped", "watcher", id)
		}
	}
}

// Close cancels every pending timer and background call. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.resetLocked()
	s.readyTimer.Cancel()
	s.bgCancel()
	s.unsub()
	s.reg.DisposeAll()
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
	s.mu.Unlock()

	s.bg.Wait()
	s.logger.Debug("session closed")
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// resetLocked invalidates everything scheduled for the current step.
func (s *Session) resetLocked() {
	s.epoch++
	s.channel.Reset()
	s.writes.Cancel()
	s.suggest.Reset()
}

func (s *Session) saveProgressLocked() {
	if s.sink == nil {
		return
	}
	ctx, cancel := s.callCtx()
	defer cancel()
	if err := s.sink(ctx, s.progress.Snapshot()); err != nil {
		s.logger.Warn("progress save failed", "step_id", s.step.ID, "err", err)
	}
}
