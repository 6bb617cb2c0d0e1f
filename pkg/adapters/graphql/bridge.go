// Package graphql implements ports.Persistence against the lesson backend's
// GraphQL API.
package graphql

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/stepwise/internal/logging"
	gql "github.com/machinebox/graphql"
)

const (
	createModuleMutation = `mutation CreateCodeModule($stepId: ID!, $name: String!, $value: String!) {
  createCodeModule(stepId: $stepId, name: $name, value: $value) { id }
}`
	updateModuleMutation = `mutation UpdateCodeModule($stepId: ID!, $name: String!, $value: String!) {
  updateCodeModule(stepId: $stepId, name: $name, value: $value) { id }
}`
	deleteModuleMutation = `mutation DeleteCodeModule($stepId: ID!, $name: String!) {
  deleteCodeModule(stepId: $stepId, name: $name) { id }
}`
	passCheckpointMutation = `mutation PassCheckpoint($id: ID!) {
  passCheckpoint(id: $id) { id }
}`
	completeCheckpointMutation = `mutation CompleteCheckpoint($id: ID!) {
  completeCheckpoint(id: $id) { id }
}`
)

// Bridge sends persistence mutations to a GraphQL endpoint.
type Bridge struct {
	client *gql.Client
	token  string
	logger *slog.Logger
}

// Option configures the Bridge.
type Option func(*bridgeConfig)

type bridgeConfig struct {
	httpClient *http.Client
	token      string
	logger     *slog.Logger
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *bridgeConfig) {
		cfg.httpClient = c
	}
}

// WithToken sends token as a bearer Authorization header.
func WithToken(token string) Option {
	return func(cfg *bridgeConfig) {
		cfg.token = token
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *bridgeConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// New creates a Bridge for endpoint.
func New(endpoint string, opts ...Option) *Bridge {
	cfg := &bridgeConfig{
		httpClient: http.DefaultClient,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := gql.NewClient(endpoint, gql.WithHTTPClient(cfg.httpClient))
	logger := cfg.logger
	client.Log = func(s string) { logger.Debug(s, "component", "graphql") }

	return &Bridge{
		client: client,
		token:  cfg.token,
		logger: cfg.logger,
	}
}

func (b *Bridge) run(ctx context.Context, op, query string, vars map[string]any) error {
	req := gql.NewRequest(query)
	for k, v := range vars {
		req.Var(k, v)
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	var resp map[string]any
	if err := b.client.Run(ctx, req, &resp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CreateModule records a new file of the step.
func (b *Bridge) CreateModule(ctx context.Context, stepID, name, content string) error {
	return b.run(ctx, "createCodeModule", createModuleMutation, map[string]any{
		"stepId": stepID,
		"name":   name,
		"value":  content,
	})
}

// UpdateModule stores the latest content of a file.
func (b *Bridge) UpdateModule(ctx context.Context, stepID, name, content string) error {
	return b.run(ctx, "updateCodeModule", updateModuleMutation, map[string]any{
		"stepId": stepID,
		"name":   name,
		"value":  content,
	})
}

// DeleteModule removes a file of the step.
func (b *Bridge) DeleteModule(ctx context.Context, stepID, name string) error {
	return b.run(ctx, "deleteCodeModule", deleteModuleMutation, map[string]any{
		"stepId": stepID,
		"name":   name,
	})
}

// PassCheckpoint records a passed checkpoint.
func (b *Bridge) PassCheckpoint(ctx context.Context, checkpointID string) error {
	return b.run(ctx, "passCheckpoint", passCheckpointMutation, map[string]any{"id": checkpointID})
}

// CompleteCheckpoint records that the learner moved past a checkpoint.
func (b *Bridge) CompleteCheckpoint(ctx context.Context, checkpointID string) error {
	return b.run(ctx, "completeCheckpoint", completeCheckpointMutation, map[string]any{"id": checkpointID})
}
