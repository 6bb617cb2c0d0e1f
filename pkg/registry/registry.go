// Package registry manages the editor document handles of the step being edited.
//
// A handle exists once per (step, path). Handles of the previous step are disposed
// before any handle of the next step is created, so keys never collide.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/pkg/domain"
)

// Key builds the handle URI for a path of a step.
func Key(stepID, path string) string {
	return fmt.Sprintf("urn:%s-%s", stepID, path)
}

// Handle is the editor-side document of one file.
type Handle struct {
	key      string
	stepID   string
	path     string
	language domain.Language

	mu       sync.RWMutex
	content  string
	version  int
	disposed bool
}

// Key returns the handle URI.
func (h *Handle) Key() string { return h.key }

// Path returns the workspace path.
func (h *Handle) Path() string { return h.path }

// Language returns the editor language.
func (h *Handle) Language() domain.Language { return h.language }

// Content returns the displayed content.
func (h *Handle) Content() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.content
}

// Version increases every time the displayed content is refreshed.
func (h *Handle) Version() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Disposed reports whether the handle was released.
func (h *Handle) Disposed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.disposed
}

func (h *Handle) refresh(content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.content == content {
		return
	}
	h.content = content
	h.version++
}

func (h *Handle) dispose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disposed = true
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Registry manages the handles of the current step.
type Registry struct {
	mu      sync.RWMutex
	stepID  string
	handles map[string]*Handle
	active  string
	logger  *slog.Logger
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handles: make(map[string]*Handle),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin disposes every handle and scopes the registry to stepID.
// It must run once per step transition, before Ensure.
func (r *Registry) Begin(stepID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposeAllLocked()
	r.stepID = stepID
}

// DisposeAll releases every handle.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposeAllLocked()
}

func (r *Registry) disposeAllLocked() {
	for _, h := range r.handles {
		h.dispose()
	}
	if len(r.handles) > 0 {
		r.logger.Debug("handles disposed", "step_id", r.stepID, "count", len(r.handles))
	}
	r.handles = make(map[string]*Handle)
	r.active = ""
}

// Ensure returns the handle of path, creating it when absent. An existing handle
// keeps its identity; only its displayed content is refreshed.
func (r *Registry) Ensure(path, content string, language domain.Language) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[path]; ok {
		h.refresh(content)
		return h, false
	}

	h := &Handle{
		key:      Key(r.stepID, path),
		stepID:   r.stepID,
		path:     path,
		language: language,
		content:  content,
	}
	r.handles[path] = h
	return h, true
}

// Get returns the handle of path.
func (r *Registry) Get(path string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[path]
	return h, ok
}

// Activate binds the visible editor surface to the handle of path.
// It returns false when no handle exists yet for path.
func (r *Registry) Activate(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[path]; !ok {
		return false
	}
	r.active = path
	return true
}

// Active returns the bound handle, if any.
func (r *Registry) Active() (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[r.active]
	return h, ok
}

// Dispose releases the handle of path.
func (r *Registry) Dispose(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[path]
	if !ok {
		return false
	}
	h.dispose()
	delete(r.handles, path)
	if r.active == path {
		r.active = ""
	}
	return true
}

// Handles returns the live handles ordered by key.
func (r *Registry) Handles() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}
