// Package packager resolves npm dependencies to virtual files through the
// CodeSandbox packager service.
package packager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretw0/stepwise/internal/logging"
	"golang.org/x/sync/singleflight"
)

// DefaultBaseURL is the public packager endpoint.
const DefaultBaseURL = "https://prod-packager-packages.codesandbox.io/v2/packages"

// maxBody bounds a package manifest.
const maxBody = 32 << 20

// ErrPackageNotFound is returned when the packager has no build for pkg@version.
var ErrPackageNotFound = errors.New("package not found")

// Resolver implements ports.DependencyResolver.
type Resolver struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	group   singleflight.Group
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithBaseURL overrides the packager endpoint.
func WithBaseURL(u string) Option {
	return func(r *Resolver) {
		r.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		baseURL: DefaultBaseURL,
		client:  http.DefaultClient,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type manifest struct {
	Contents map[string]struct {
		Content string `json:"content"`
	} `json:"contents"`
}

// Resolve fetches <base>/<pkg>/<version>.json and returns its contents as
// path to source. Concurrent calls for the same package share one request.
func (r *Resolver) Resolve(ctx context.Context, pkg, version string) (map[string]string, error) {
	key := pkg + "@" + version
	v, err, shared := r.group.Do(key, func() (any, error) {
		return r.fetch(ctx, pkg, version)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("packager request shared", "dependency", key)
	}

	return maps.Clone(v.(map[string]string)), nil
}

func (r *Resolver) fetch(ctx context.Context, pkg, version string) (map[string]string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s.json", r.baseURL, escapePackage(pkg), url.PathEscape(version))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build packager request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("packager request for %s@%s: %w", pkg, version, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s@%s: %w", pkg, version, ErrPackageNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("packager returned %s for %s@%s", resp.Status, pkg, version)
	}

	var m manifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode packager manifest for %s@%s: %w", pkg, version, err)
	}

	files := make(map[string]string, len(m.Contents))
	for p, entry := range m.Contents {
		files[p] = entry.Content
	}
	r.logger.Debug("dependency resolved", "dependency", pkg+"@"+version, "files", len(files))
	return files, nil
}

// escapePackage escapes each segment so scoped names keep their slash.
func escapePackage(pkg string) string {
	parts := strings.Split(pkg, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
