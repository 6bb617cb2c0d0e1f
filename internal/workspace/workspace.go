// Package workspace holds the in-memory files of the step being edited.
//
// The model is the single source of truth for file contents. It performs no I/O:
// persistence, sandbox sync and editor handles react to the Change notifications
// it emits to subscribers.
package workspace

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/pkg/domain"
)

// ChangeKind identifies the mutation that produced a Change.
type ChangeKind string

const (
	ChangeLoad         ChangeKind = "load"
	ChangeContent      ChangeKind = "content"
	ChangeCreate       ChangeKind = "create"
	ChangeRemove       ChangeKind = "remove"
	ChangeActive       ChangeKind = "active"
	ChangeDependencies ChangeKind = "dependencies"
)

// Snapshot is a copy of the workspace state. Mutating it does not affect the model.
type Snapshot struct {
	StepID       string
	Paths        []string
	Files        map[string]string
	Active       string
	Main         string
	Dependencies map[string]string
}

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind     ChangeKind
	Path     string
	Snapshot Snapshot
}

// Subscriber receives changes synchronously, after the model lock is released.
type Subscriber func(Change)

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) {
		m.logger = logger
	}
}

// Model is the multi-file workspace of one step.
type Model struct {
	mu sync.RWMutex

	stepID    string
	paths     []string
	files     map[string]string
	persisted map[string]bool
	active    string
	main      string
	override  string
	deps      map[string]string

	subMu  sync.Mutex
	subs   map[int]Subscriber
	nextID int

	logger *slog.Logger
}

// New creates an empty workspace.
func New(opts ...Option) *Model {
	m := &Model{
		files:     make(map[string]string),
		persisted: make(map[string]bool),
		deps:      make(map[string]string),
		subs:      make(map[int]Subscriber),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers fn and returns a function that removes it.
func (m *Model) Subscribe(fn Subscriber) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Model) notify(kind ChangeKind, path string) {
	change := Change{Kind: kind, Path: path, Snapshot: m.Snapshot()}

	m.subMu.Lock()
	ids := slices.Sorted(maps.Keys(m.subs))
	subs := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, m.subs[id])
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

// Load replaces files, dependencies and the active path atomically.
// Every step file counts as a persisted module.
func (m *Model) Load(step domain.Step) Snapshot {
	m.mu.Lock()
	m.stepID = step.ID
	m.paths = step.Paths()
	m.files = make(map[string]string, len(step.Files))
	m.persisted = make(map[string]bool, len(step.Files))
	for _, f := range step.Files {
		m.files[f.Path] = f.Content
		m.persisted[f.Path] = true
	}
	m.deps = make(map[string]string)
	m.override = step.MainFile
	m.main = domain.SelectMain(m.paths, m.override)
	m.active = m.main
	m.mu.Unlock()

	m.logger.Debug("workspace loaded", "step_id", step.ID, "files", len(step.Files), "main", m.main)
	m.notify(ChangeLoad, "")
	return m.Snapshot()
}

// SetFileContent replaces the content of path, adding it when unknown.
// It reports whether the content changed.
func (m *Model) SetFileContent(path, content string) bool {
	m.mu.Lock()
	prev, ok := m.files[path]
	if ok && prev == content {
		m.mu.Unlock()
		return false
	}
	if !ok {
		m.paths = append(m.paths, path)
		m.main = domain.SelectMain(m.paths, m.override)
	}
	m.files[path] = content
	m.mu.Unlock()

	m.notify(ChangeContent, path)
	return true
}

// CreateFile adds an empty persisted file and makes it active.
func (m *Model) CreateFile(path string) error {
	m.mu.Lock()
	if _, ok := m.files[path]; ok {
		m.mu.Unlock()
		return fmt.Errorf("create %s: %w", path, domain.ErrFileExists)
	}
	m.paths = append(m.paths, path)
	m.files[path] = ""
	m.persisted[path] = true
	m.main = domain.SelectMain(m.paths, m.override)
	m.active = path
	m.mu.Unlock()

	m.notify(ChangeCreate, path)
	return nil
}

// RemoveFile deletes path when a persisted module exists for it; otherwise it
// returns false and leaves the workspace untouched. Removing the active file
// activates the main file.
func (m *Model) RemoveFile(path string) bool {
	m.mu.Lock()
	if !m.persisted[path] {
		m.mu.Unlock()
		return false
	}
	delete(m.files, path)
	delete(m.persisted, path)
	m.paths = slices.DeleteFunc(m.paths, func(p string) bool { return p == path })
	m.main = domain.SelectMain(m.paths, m.override)
	if m.active == path {
		m.active = m.main
	}
	m.mu.Unlock()

	m.notify(ChangeRemove, path)
	return true
}

// SetActive selects the file shown in the editor.
func (m *Model) SetActive(path string) error {
	m.mu.Lock()
	if _, ok := m.files[path]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("select %s: %w", path, domain.ErrFileNotFound)
	}
	if m.active == path {
		m.mu.Unlock()
		return nil
	}
	m.active = path
	m.mu.Unlock()

	m.notify(ChangeActive, path)
	return nil
}

// SetDependencies replaces the resolved dependency files.
func (m *Model) SetDependencies(files map[string]string) {
	m.mu.Lock()
	m.deps = maps.Clone(files)
	if m.deps == nil {
		m.deps = make(map[string]string)
	}
	m.mu.Unlock()

	m.notify(ChangeDependencies, "")
}

// Content returns the content of path.
func (m *Model) Content(path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.files[path]
	return c, ok
}

// Persisted reports whether a backend module exists for path.
func (m *Model) Persisted(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.persisted[path]
}

// Active returns the active path.
func (m *Model) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Main returns the resolved main file.
func (m *Model) Main() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.main
}

// Snapshot returns a copy of the current state.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		StepID:       m.stepID,
		Paths:        slices.Clone(m.paths),
		Files:        maps.Clone(m.files),
		Active:       m.active,
		Main:         m.main,
		Dependencies: maps.Clone(m.deps),
	}
}
