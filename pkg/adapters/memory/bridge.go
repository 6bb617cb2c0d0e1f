package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Bridge operations, as recorded in Call.Op.
const (
	OpCreateModule       = "createModule"
	OpUpdateModule       = "updateModule"
	OpDeleteModule       = "deleteModule"
	OpPassCheckpoint     = "passCheckpoint"
	OpCompleteCheckpoint = "completeCheckpoint"
)

// ErrInjected is returned by Bridge operations configured to fail.
var ErrInjected = errors.New("injected bridge failure")

// Call is one recorded persistence mutation.
type Call struct {
	Op           string
	StepID       string
	Name         string
	Content      string
	CheckpointID string
}

// Bridge implements ports.Persistence by recording every call.
type Bridge struct {
	mu       sync.Mutex
	calls    []Call
	failures map[string]int
}

// NewBridge creates an empty recording bridge.
func NewBridge() *Bridge {
	return &Bridge{failures: make(map[string]int)}
}

// FailNext makes the next n calls of op return ErrInjected. Failed calls are still recorded.
func (b *Bridge) FailNext(op string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = n
}

func (b *Bridge) record(c Call) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
	if b.failures[c.Op] > 0 {
		b.failures[c.Op]--
		return ErrInjected
	}
	return nil
}

func (b *Bridge) CreateModule(ctx context.Context, stepID, name, content string) error {
	return b.record(Call{Op: OpCreateModule, StepID: stepID, Name: name, Content: content})
}

func (b *Bridge) UpdateModule(ctx context.Context, stepID, name, content string) error {
	return b.record(Call{Op: OpUpdateModule, StepID: stepID, Name: name, Content: content})
}

func (b *Bridge) DeleteModule(ctx context.Context, stepID, name string) error {
	return b.record(Call{Op: OpDeleteModule, StepID: stepID, Name: name})
}

func (b *Bridge) PassCheckpoint(ctx context.Context, checkpointID string) error {
	return b.record(Call{Op: OpPassCheckpoint, CheckpointID: checkpointID})
}

func (b *Bridge) CompleteCheckpoint(ctx context.Context, checkpointID string) error {
	return b.record(Call{Op: OpCompleteCheckpoint, CheckpointID: checkpointID})
}

// Calls returns the recorded calls in order.
func (b *Bridge) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

// CallsOf returns the recorded calls of op.
func (b *Bridge) CallsOf(op string) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Call
	for _, c := range b.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}
