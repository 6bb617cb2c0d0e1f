package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/stepwise/pkg/domain"
)

// Sandbox implements ports.Sandbox by recording delivered messages.
// It never calls back into the sender.
type Sandbox struct {
	mu       sync.Mutex
	mounted  bool
	messages []domain.EditorMessage
}

// NewSandbox creates a mounted recording sandbox.
func NewSandbox() *Sandbox {
	return &Sandbox{mounted: true}
}

// Deliver records msg, or returns domain.ErrNotMounted when unmounted.
func (s *Sandbox) Deliver(ctx context.Context, msg domain.EditorMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return domain.ErrNotMounted
	}
	s.messages = append(s.messages, msg)
	return nil
}

// SetMounted attaches or detaches the sandbox.
func (s *Sandbox) SetMounted(mounted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounted = mounted
}

// Messages returns the delivered messages in order.
func (s *Sandbox) Messages() []domain.EditorMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Last returns the most recent message.
func (s *Sandbox) Last() (domain.EditorMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return domain.EditorMessage{}, false
	}
	return s.messages[len(s.messages)-1], true
}
