package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aretw0/stepwise/pkg/ports"
)

// Completer implements ports.Completer with canned answers.
type Completer struct {
	mu          sync.Mutex
	candidates  []ports.Candidate
	explanation string
	err         error
	requests    []ports.CompletionRequest
	explains    []ports.ExplainRequest
	calls       atomic.Int32
}

// NewCompleter returns a Completer that answers every request with candidates.
func NewCompleter(candidates ...string) *Completer {
	c := &Completer{}
	for _, text := range candidates {
		c.candidates = append(c.candidates, ports.Candidate{Text: text})
	}
	return c
}

// SetExplanation sets the answer to Explain.
func (c *Completer) SetExplanation(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.explanation = text
}

// SetError makes every call fail with err.
func (c *Completer) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *Completer) Complete(ctx context.Context, req ports.CompletionRequest) ([]ports.Candidate, error) {
	c.calls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return append([]ports.Candidate(nil), c.candidates...), nil
}

func (c *Completer) Explain(ctx context.Context, req ports.ExplainRequest) (string, error) {
	c.calls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.explains = append(c.explains, req)
	if c.err != nil {
		return "", c.err
	}
	return c.explanation, nil
}

// Calls returns the number of Complete and Explain calls.
func (c *Completer) Calls() int {
	return int(c.calls.Load())
}

// Requests returns the recorded completion requests.
func (c *Completer) Requests() []ports.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.CompletionRequest(nil), c.requests...)
}

// ExplainRequests returns the recorded explanation requests.
func (c *Completer) ExplainRequests() []ports.ExplainRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.ExplainRequest(nil), c.explains...)
}
