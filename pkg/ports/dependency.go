package ports

import "context"

// DependencyResolver turns a package version into the virtual files the sandbox needs.
type DependencyResolver interface {
	// Resolve returns a map of path to content.
	Resolve(ctx context.Context, pkg, version string) (map[string]string, error)
}
