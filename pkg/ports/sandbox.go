package ports

import (
	"context"

	"github.com/aretw0/stepwise/pkg/domain"
)

// Sandbox is the isolated execution context that runs the learner's code.
type Sandbox interface {
	// Deliver sends one message to the sandbox.
	// Returns domain.ErrNotMounted when no sandbox is attached.
	Deliver(ctx context.Context, msg domain.EditorMessage) error
}
