// Package suggest produces AI-assisted inline completions and explanations.
//
// Suggest calls are debounced: a call waits for the delay and yields nothing when
// a newer call arrived meanwhile, or when the editor stopped caring (Active guard).
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/ports"
)

// DefaultDelay is the completion debounce.
const DefaultDelay = 100 * time.Millisecond

// Request describes one completion attempt.
type Request struct {
	APIKey       string
	StepID       string
	Instructions string
	Checkpoint   *domain.Checkpoint
	Text         string
	Position     domain.Position

	// Complete suppresses the request: a finished step needs no help.
	Complete bool

	// Active is consulted after the debounce and after the response.
	Active func() bool
}

// ExplainRequest describes one hover explanation.
type ExplainRequest struct {
	APIKey string
	Code   string
	Hover  domain.Hover
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDelay overrides the debounce delay.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.delay = d
	}
}

// WithHooks registers lifecycle hooks; only OnSuggestion is used.
func WithHooks(sessionID string, hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.sessionID = sessionID
		e.hooks = hooks
	}
}

// Engine talks to the completion service on behalf of one session.
type Engine struct {
	completer ports.Completer
	delay     time.Duration

	mu         sync.Mutex
	seq        uint64
	lastHover  string
	lastAnswer string

	sessionID string
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
}

// New creates an Engine. A nil completer disables suggestions.
func New(completer ports.Completer, opts ...Option) *Engine {
	e := &Engine{
		completer: completer,
		delay:     DefaultDelay,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) next() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

func (e *Engine) current(seq uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq == seq
}

// Suggest returns the first candidate for req, or false when the call was
// suppressed, superseded or failed.
func (e *Engine) Suggest(ctx context.Context, req Request) (string, bool) {
	if req.Complete || e.completer == nil {
		return "", false
	}
	seq := e.next()

	timer := time.NewTimer(e.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", false
	case <-timer.C:
	}

	if !e.current(seq) || !active(req) {
		return "", false
	}

	prompt := BuildPrompt(req.Instructions, req.Checkpoint, req.Text, req.Position)
	start := time.Now()
	candidates, err := e.completer.Complete(ctx, ports.CompletionRequest{
		APIKey: req.APIKey,
		Prompt: prompt.Prompt,
		Suffix: prompt.Suffix,
	})
	if err != nil {
		e.logger.Warn("completion failed", "session_id", e.sessionID, "step_id", req.StepID, "err", err)
		e.fire(ctx, req.StepID, time.Since(start), false, err)
		return "", false
	}

	offered := len(candidates) > 0 && e.current(seq) && active(req)
	e.fire(ctx, req.StepID, time.Since(start), offered, nil)
	if !offered {
		return "", false
	}
	return candidates[0].Text, true
}

func active(req Request) bool {
	return req.Active == nil || req.Active()
}

func (e *Engine) fire(ctx context.Context, stepID string, d time.Duration, offered bool, err error) {
	if e.hooks.OnSuggestion == nil {
		return
	}
	e.hooks.OnSuggestion(ctx, &domain.SuggestionEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      domain.EventSuggestion,
			SessionID: e.sessionID,
			StepID:    stepID,
		},
		Duration: d,
		Offered:  offered,
		Err:      err,
	})
}

// Explain returns a plain-language explanation of the hover target. Hovering the
// same target again returns the previous answer without a new request.
func (e *Engine) Explain(ctx context.Context, req ExplainRequest) (string, error) {
	target := HoverTarget(req.Hover.Word, req.Hover.InSelection, req.Hover.Selection)
	if target == "" || e.completer == nil {
		return "", nil
	}

	e.mu.Lock()
	if target == e.lastHover {
		text := e.lastAnswer
		e.mu.Unlock()
		return text, nil
	}
	e.mu.Unlock()

	text, err := e.completer.Explain(ctx, ports.ExplainRequest{
		APIKey:         req.APIKey,
		HoverSelection: target,
		Prompt:         ExplainPrompt(req.Code, target),
	})
	if err != nil {
		e.logger.Warn("explanation failed", "session_id", e.sessionID, "err", err)
		return "", fmt.Errorf("explain: %w", err)
	}

	e.mu.Lock()
	e.lastHover = target
	e.lastAnswer = text
	e.mu.Unlock()
	return text, nil
}

// Reset supersedes pending suggestions and forgets the last explanation.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	e.lastHover = ""
	e.lastAnswer = ""
}
