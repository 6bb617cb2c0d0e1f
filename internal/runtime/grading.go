package runtime

import (
	"context"
	"time"

	"github.com/aretw0/stepwise/pkg/domain"
)

// HandleSandboxMessage feeds a raw sandbox message into grading. Malformed and
// ignored messages leave the state unchanged. The decoded outcome is returned.
func (s *Session) HandleSandboxMessage(ctx context.Context, raw []byte) (domain.Inbound, error) {
	in := domain.DecodeInbound(raw)
	err := s.do(func() error {
		switch msg := in.(type) {
		case domain.Malformed:
			s.logger.Warn("malformed sandbox message", "step_id", s.step.ID, "err", msg.Err)
		case domain.Ignored:
			s.logger.Debug("sandbox message ignored", "step_id", s.step.ID, "reason", msg.Reason)
		case domain.TestReport:
			s.logger.Debug("test report", "step_id", s.step.ID, "run_id", msg.RunID, "passed", msg.Passed())
			if cp, ok := s.grader.HandleReport(msg); ok {
				s.passedLocked(ctx, cp)
			}
		}
		return nil
	})
	return in, err
}

// passedLocked records a checkpoint that just flipped: locally first, then
// through the bridge in the background.
func (s *Session) passedLocked(ctx context.Context, cp domain.Checkpoint) {
	s.progress.MarkPassed(s.step.ID, cp.ID)
	s.saveProgressLocked()

	s.logger.Info("checkpoint passed", "step_id", s.step.ID, "checkpoint_id", cp.ID, "kind", cp.Kind())
	if s.hooks.OnCheckpointPassed != nil {
		s.hooks.OnCheckpointPassed(ctx, &domain.CheckpointEvent{
			EventBase:    s.base(domain.EventCheckpointPassed),
			CheckpointID: cp.ID,
			Kind:         cp.Kind(),
		})
	}

	if s.bridge != nil {
		s.outstanding[s.epoch]++
		s.bg.Add(1)
		go s.confirmPass(s.epoch, s.step.ID, cp.ID)
	}

	if s.grader.Complete() {
		s.fireCompleteLocked(ctx)
	}
}

// confirmPass calls PassCheckpoint with exponential backoff. The local pass
// stands whatever the outcome.
func (s *Session) confirmPass(epoch uint64, stepID, checkpointID string) {
	defer s.bg.Done()
	defer s.exec(func() {
		if s.outstanding[epoch]--; s.outstanding[epoch] <= 0 {
			delete(s.outstanding, epoch)
		}
	})

	attempts := max(s.retry.Attempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := context.WithTimeout(s.bgCtx, s.timings.CallTimeout)
		err = s.bridge.PassCheckpoint(ctx, checkpointID)
		cancel()
		if err == nil {
			return
		}
		if attempt == attempts {
			break
		}

		wait := s.retry.Base * time.Duration(1<<(attempt-1))
		s.logger.Debug("pass checkpoint retry", "checkpoint_id", checkpointID, "attempt", attempt, "wait", wait, "err", err)
		select {
		case <-s.bgCtx.Done():
			return
		case <-time.After(wait):
		}
	}

	s.logger.Error("pass checkpoint failed", "step_id", stepID, "checkpoint_id", checkpointID, "attempts", attempts, "err", err)
	if s.hooks.OnPersistFailed != nil {
		s.hooks.OnPersistFailed(s.bgCtx, &domain.PersistEvent{
			EventBase: domain.EventBase{
				Timestamp: time.Now(),
				Type:      domain.EventPersistFailed,
				SessionID: s.id,
				StepID:    stepID,
			},
			Op:           "passCheckpoint",
			CheckpointID: checkpointID,
			Attempts:     attempts,
			Err:          err,
		})
	}
}
