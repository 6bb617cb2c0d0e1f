package memory

import (
	"context"
	"fmt"
	"maps"
	"sync/atomic"
)

// Resolver implements ports.DependencyResolver from a fixed table keyed by "pkg@version".
type Resolver struct {
	files map[string]map[string]string
	calls atomic.Int32
}

// NewResolver creates a Resolver from the given table.
func NewResolver(files map[string]map[string]string) *Resolver {
	return &Resolver{files: files}
}

// Resolve returns a copy of the files registered for pkg@version.
func (r *Resolver) Resolve(ctx context.Context, pkg, version string) (map[string]string, error) {
	r.calls.Add(1)
	files, ok := r.files[pkg+"@"+version]
	if !ok {
		return nil, fmt.Errorf("dependency not found: %s@%s", pkg, version)
	}
	return maps.Clone(files), nil
}

// Calls returns the number of Resolve calls.
func (r *Resolver) Calls() int {
	return int(r.calls.Load())
}
