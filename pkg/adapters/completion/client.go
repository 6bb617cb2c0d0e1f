// Package completion talks to the suggestion service: POST /completions for
// inline suggestions and POST /explain for hover explanations.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/pkg/ports"
)

// ErrNoCandidates is returned by Explain when the service answers with an empty list.
var ErrNoCandidates = errors.New("no candidates returned")

// Client implements ports.Completer over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete requests inline suggestions.
func (c *Client) Complete(ctx context.Context, req ports.CompletionRequest) ([]ports.Candidate, error) {
	return c.post(ctx, "/completions", req)
}

// Explain requests a beginner explanation and returns the first candidate.
func (c *Client) Explain(ctx context.Context, req ports.ExplainRequest) (string, error) {
	candidates, err := c.post(ctx, "/explain", req)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	return candidates[0].Text, nil
}

func (c *Client) post(ctx context.Context, path string, body any) ([]ports.Candidate, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s returned %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}

	var candidates []ports.Candidate
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	c.logger.Debug("completion service answered", "path", path, "candidates", len(candidates))
	return candidates, nil
}
