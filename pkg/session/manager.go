package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/internal/runtime"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/ports"
)

// DefaultLockTTL bounds how long a replica may hold the distributed lock of a session.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Builder creates the live session for a progress record.
type Builder func(ctx context.Context, progress *domain.Progress) (*runtime.Session, error)

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks and caches the
// live sessions of this replica.
type Manager struct {
	store ports.ProgressStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	liveMu sync.RWMutex
	live   map[string]*runtime.Session

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger // Logger for internal events (like deferred errors)
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager with the given progress store.
func NewManager(store ports.ProgressStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		live:    make(map[string]*runtime.Session),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return // Should not happen if paired correctly
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Load retrieves existing progress from the store.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.Progress, error) {
	var progress *domain.Progress
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		progress, err = m.store.Load(ctx, sessionID)
		return err
	})
	return progress, err
}

// LoadOrStart loads the progress of a session. If none exists, or it belongs to
// another lesson, a fresh record at the first step is created and saved.
func (m *Manager) LoadOrStart(ctx context.Context, sessionID, lessonID string) (*domain.Progress, error) {
	var progress *domain.Progress
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		progress, err = m.loadOrStart(ctx, sessionID, lessonID)
		return err
	})
	return progress, err
}

func (m *Manager) loadOrStart(ctx context.Context, sessionID, lessonID string) (*domain.Progress, error) {
	progress, err := m.store.Load(ctx, sessionID)
	if err == nil && (lessonID == "" || progress.LessonID == lessonID) {
		return progress, nil
	}
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to check session existence: %w", err)
	}
	if lessonID == "" {
		return nil, fmt.Errorf("session %s has no lesson: %w", sessionID, domain.ErrSessionNotFound)
	}

	progress = domain.NewProgress(sessionID, lessonID)

	// Persist immediately to reserve the ID
	if err := m.store.Save(ctx, progress); err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	return progress, nil
}

// Save persists the progress.
func (m *Manager) Save(ctx context.Context, progress *domain.Progress) error {
	return m.WithLock(ctx, progress.SessionID, func(ctx context.Context) error {
		return m.store.Save(ctx, progress)
	})
}

// Delete closes the live session, if any, and removes its progress from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if sess, ok := m.detach(sessionID); ok {
			_ = sess.Close()
		}
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying progress store.
func (m *Manager) Store() ports.ProgressStore {
	return m.store
}

// Open returns the live session, building it from its stored progress when this
// replica does not hold it yet.
func (m *Manager) Open(ctx context.Context, sessionID, lessonID string, build Builder) (*runtime.Session, error) {
	var sess *runtime.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if live, ok := m.Get(sessionID); ok && (lessonID == "" || live.Lesson().ID == lessonID) {
			sess = live
			return nil
		}
		if stale, ok := m.detach(sessionID); ok {
			_ = stale.Close()
		}

		progress, err := m.loadOrStart(ctx, sessionID, lessonID)
		if err != nil {
			return err
		}
		sess, err = build(ctx, progress)
		if err != nil {
			return fmt.Errorf("failed to build session %s: %w", sessionID, err)
		}

		m.liveMu.Lock()
		m.live[sessionID] = sess
		m.liveMu.Unlock()
		m.logger.Debug("session opened", "session_id", sessionID, "lesson_id", progress.LessonID)
		return nil
	})
	return sess, err
}

// Get returns the live session.
func (m *Manager) Get(sessionID string) (*runtime.Session, bool) {
	m.liveMu.RLock()
	defer m.liveMu.RUnlock()
	sess, ok := m.live[sessionID]
	return sess, ok
}

// Live returns the IDs of the sessions held by this replica.
func (m *Manager) Live() []string {
	m.liveMu.RLock()
	defer m.liveMu.RUnlock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) detach(sessionID string) (*runtime.Session, bool) {
	m.liveMu.Lock()
	defer m.liveMu.Unlock()
	sess, ok := m.live[sessionID]
	delete(m.live, sessionID)
	return sess, ok
}

// Close stops the live session and saves its final progress.
// Returns domain.ErrSessionNotFound when this replica does not hold it.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		sess, ok := m.detach(sessionID)
		if !ok {
			return domain.ErrSessionNotFound
		}
		if err := sess.Close(); err != nil {
			return err
		}
		return m.store.Save(ctx, sess.Progress())
	})
}

// CloseAll closes every live session. Errors are logged.
func (m *Manager) CloseAll(ctx context.Context) {
	for _, id := range m.Live() {
		if err := m.Close(ctx, id); err != nil {
			m.logger.Warn("Failed to close session", "session_id", id, "err", err)
		}
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	// Distributed Locking
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
