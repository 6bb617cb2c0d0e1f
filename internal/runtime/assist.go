package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/stepwise/internal/suggest"
	"github.com/aretw0/stepwise/pkg/domain"
)

// Suggest asks the completion service for an inline suggestion at pos, or at
// the tracked cursor when pos is nil. It runs outside the session loop; the
// result is dropped when the learner navigated or switched files meanwhile.
func (s *Session) Suggest(ctx context.Context, pos *domain.Position, apiKey string) (string, bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", false, domain.ErrSessionClosed
	}
	active := s.ws.Active()
	text, _ := s.ws.Content(active)
	req := suggest.Request{
		APIKey:       apiKey,
		StepID:       s.step.ID,
		Instructions: s.step.Instructions,
		Text:         text,
		Complete:     s.grader.Complete(),
	}
	if cp, ok := s.grader.Current(); ok {
		req.Checkpoint = &cp
	}
	switch {
	case pos != nil:
		req.Position = *pos
	case s.cursor != nil:
		req.Position = *s.cursor
	default:
		req.Position = domain.PositionAt(text, len(text))
	}
	epoch := s.epoch
	s.mu.Unlock()

	req.Active = func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.closed && s.epoch == epoch && s.ws.Active() == active
	}

	text, ok := s.suggest.Suggest(ctx, req)
	return text, ok, nil
}

// Explain asks for a beginner explanation of what the pointer rests on within
// the active file.
func (s *Session) Explain(ctx context.Context, hover domain.Hover, apiKey string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", domain.ErrSessionClosed
	}
	code, _ := s.ws.Content(s.ws.Active())
	s.mu.Unlock()

	return s.suggest.Explain(ctx, suggest.ExplainRequest{
		APIKey: apiKey,
		Code:   code,
		Hover:  hover,
	})
}

// MarkReady records that a client component finished loading. Once both the
// loader and the editor reported, the session turns ready after a short delay.
func (s *Session) MarkReady(component string) (*domain.View, error) {
	var view *domain.View
	err := s.do(func() error {
		switch component {
		case domain.ComponentLoader:
			s.loaderReady = true
		case domain.ComponentEditor:
			s.editorReady = true
		default:
			return fmt.Errorf("unknown component %q", component)
		}
		if s.loaderReady && s.editorReady && !s.ready && !s.readyTimer.Pending() {
			s.scheduleReadyLocked()
		}
		view = s.viewLocked()
		return nil
	})
	return view, err
}

func (s *Session) scheduleReadyLocked() {
	epoch := s.epoch
	s.readyTimer.Trigger(func() {
		s.exec(func() {
			if s.epoch != epoch {
				return
			}
			s.ready = true
			s.logger.Debug("session ready")
		})
	})
}
