package runtime

import (
	"context"
	"fmt"
	"maps"

	"github.com/aretw0/stepwise/pkg/domain"
	"golang.org/x/sync/errgroup"
)

const maxParallelResolves = 4

// LoadStep replaces the workspace with the step at index. Pending sends,
// writes and suggestions of the previous step are cancelled first.
func (s *Session) LoadStep(ctx context.Context, index int) (*domain.View, error) {
	var view *domain.View
	err := s.do(func() error {
		if err := s.loadLocked(ctx, index); err != nil {
			return err
		}
		view = s.viewLocked()
		return nil
	})
	return view, err
}

// Resume loads the step recorded in the progress.
func (s *Session) Resume(ctx context.Context) (*domain.View, error) {
	s.mu.Lock()
	index := s.progress.StepIndex
	s.mu.Unlock()

	if index < 0 || index >= len(s.lesson.Steps) {
		index = 0
	}
	return s.LoadStep(ctx, index)
}

// Next marks every checkpoint of the current step as completed and loads the
// following step. It fails with domain.ErrStepIncomplete while checkpoints are pending.
func (s *Session) Next(ctx context.Context) (*domain.View, error) {
	var view *domain.View
	err := s.do(func() error {
		if !s.grader.Complete() {
			return fmt.Errorf("step %s: %w", s.step.ID, domain.ErrStepIncomplete)
		}
		if s.index+1 >= len(s.lesson.Steps) {
			return fmt.Errorf("no step after %s: %w", s.step.ID, domain.ErrStepNotFound)
		}

		if s.bridge != nil {
			for _, cp := range s.grader.Checkpoints() {
				callCtx, cancel := s.callCtx()
				if err := s.bridge.CompleteCheckpoint(callCtx, cp.ID); err != nil {
					s.logger.Warn("complete checkpoint failed", "step_id", s.step.ID, "checkpoint_id", cp.ID, "err", err)
				}
				cancel()
			}
		}

		if err := s.loadLocked(ctx, s.index+1); err != nil {
			return err
		}
		view = s.viewLocked()
		return nil
	})
	return view, err
}

// Prev loads the previous step. Going back is always allowed.
func (s *Session) Prev(ctx context.Context) (*domain.View, error) {
	var view *domain.View
	err := s.do(func() error {
		if s.index <= 0 {
			return fmt.Errorf("no step before %s: %w", s.step.ID, domain.ErrStepNotFound)
		}
		if err := s.loadLocked(ctx, s.index-1); err != nil {
			return err
		}
		view = s.viewLocked()
		return nil
	})
	return view, err
}

func (s *Session) loadLocked(ctx context.Context, index int) error {
	step, err := s.lesson.Step(index)
	if err != nil {
		return fmt.Errorf("load step %d of %s: %w", index, s.lesson.ID, err)
	}

	s.resetLocked()
	s.readyTimer.Cancel()

	s.index = index
	s.step = step
	s.cursor = nil

	s.grader.Load(step)
	if restored := s.grader.Restore(s.progress.Passed[step.ID]); len(restored) > 0 {
		s.logger.Debug("checkpoints restored", "step_id", step.ID, "count", len(restored))
	}

	snap := s.ws.Load(step)
	if content, ok := snap.Files[snap.Active]; ok {
		if pos, found := domain.LocateAnchor(content, step.Start); found {
			s.cursor = &pos
		}
	}

	s.progress.StepIndex = index
	s.saveProgressLocked()

	if s.loaderReady && s.editorReady && !s.ready {
		s.scheduleReadyLocked()
	}

	s.postMainLocked()
	if len(step.Dependencies) > 0 && s.resolver != nil {
		s.bg.Add(1)
		go s.resolveDependencies(s.epoch, step.ID, step.Dependencies)
	}

	s.logger.Info("step loaded", "step_id", step.ID, "index", index, "files", len(step.Files), "checkpoints", len(step.Checkpoints))
	if s.hooks.OnStepLoad != nil {
		s.hooks.OnStepLoad(ctx, &domain.StepEvent{EventBase: s.base(domain.EventStepLoad), Index: index})
	}
	if s.grader.Complete() {
		s.fireCompleteLocked(ctx)
	}
	return nil
}

// resolveDependencies fetches dependency files outside the session lock and
// hands them to the workspace when the step is still current. Failed packages
// are skipped; later dependencies win on path conflicts.
func (s *Session) resolveDependencies(epoch uint64, stepID string, deps []domain.Dependency) {
	defer s.bg.Done()

	resolved := make([]map[string]string, len(deps))
	var g errgroup.Group
	g.SetLimit(maxParallelResolves)
	for i, dep := range deps {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(s.bgCtx, s.timings.CallTimeout)
			defer cancel()
			files, err := s.resolver.Resolve(ctx, dep.Package, dep.Version)
			if err != nil {
				s.logger.Warn("dependency resolution failed", "step_id", stepID, "dependency", dep.String(), "err", err)
				return nil
			}
			resolved[i] = files
			return nil
		})
	}
	_ = g.Wait()

	files := make(map[string]string)
	for _, r := range resolved {
		maps.Copy(files, r)
	}

	s.exec(func() {
		if s.epoch != epoch {
			return
		}
		s.ws.SetDependencies(files)
		s.postMainLocked()
	})
}

func (s *Session) postMainLocked() {
	main := s.ws.Main()
	if main == "" {
		return
	}
	s.channel.PostCode(s.payloadLocked(main))
}

func (s *Session) fireCompleteLocked(ctx context.Context) {
	s.logger.Info("step complete", "step_id", s.step.ID)
	if s.hooks.OnStepComplete != nil {
		s.hooks.OnStepComplete(ctx, &domain.StepEvent{EventBase: s.base(domain.EventStepComplete), Index: s.index})
	}
}
