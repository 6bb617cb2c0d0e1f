package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/stepwise/internal/channel"
	"github.com/aretw0/stepwise/internal/workspace"
	"github.com/aretw0/stepwise/pkg/domain"
)

// Edit applies a full snapshot of path typed by the learner. It refreshes the
// editor handle, evaluates the current regex checkpoint, schedules the module
// write and the sandbox sync, and requests a grading run when the current
// checkpoint is an executed test.
func (s *Session) Edit(ctx context.Context, path, content string) (*domain.View, error) {
	var view *domain.View
	err := s.do(func() error {
		if s.index < 0 {
			return fmt.Errorf("edit %s: %w", path, domain.ErrStepNotFound)
		}

		before, _ := s.ws.Content(path)
		if !s.ws.SetFileContent(path, content) {
			view = s.viewLocked()
			return nil
		}

		if path == s.ws.Active() {
			if edit, ok := workspace.DeriveEdit(before, content); ok {
				s.cursor = &edit.Cursor
			}
		}

		if !domain.LanguageOf(path).IsImage() {
			if cp, ok := s.grader.EvaluateText(content); ok {
				s.passedLocked(ctx, cp)
			}
		}

		s.channel.PostCode(s.payloadLocked(path))
		if testPath, ok := s.grader.CurrentTestPath(); ok {
			s.channel.TestCode(s.payloadLocked(testPath))
		}

		view = s.viewLocked()
		return nil
	})
	return view, err
}

// SelectFile makes path the active file.
func (s *Session) SelectFile(path string) (*domain.View, error) {
	var view *domain.View
	err := s.do(func() error {
		if err := s.ws.SetActive(path); err != nil {
			return err
		}
		s.cursor = nil
		view = s.viewLocked()
		return nil
	})
	return view, err
}

// CreateFile adds an empty file to the step and records it through the bridge.
func (s *Session) CreateFile(ctx context.Context, path string) (*domain.View, error) {
	var view *domain.View
	err := s.do(func() error {
		if s.index < 0 {
			return fmt.Errorf("create %s: %w", path, domain.ErrStepNotFound)
		}
		if err := s.ws.CreateFile(path); err != nil {
			return err
		}
		s.grader.AddPath(path)
		s.cursor = nil
		view = s.viewLocked()
		return nil
	})
	return view, err
}

// DeleteFile removes path when a module exists for it. Deleting a path that
// was never persisted is a no-op reported as domain.ErrFileNotFound.
func (s *Session) DeleteFile(ctx context.Context, path string) (*domain.View, error) {
	var view *domain.View
	err := s.do(func() error {
		if !s.ws.RemoveFile(path) {
			return fmt.Errorf("delete %s: %w", path, domain.ErrFileNotFound)
		}
		s.grader.RemovePath(path)
		view = s.viewLocked()
		return nil
	})
	return view, err
}

// onChange applies the side effects of workspace mutations. It runs inside the
// session loop because the workspace is only mutated from there.
func (s *Session) onChange(c workspace.Change) {
	snap := c.Snapshot
	switch c.Kind {
	case workspace.ChangeLoad:
		s.reg.Begin(snap.StepID)
		for _, p := range snap.Paths {
			s.reg.Ensure(p, snap.Files[p], domain.LanguageOf(p))
		}
		s.reg.Activate(snap.Active)

	case workspace.ChangeContent:
		s.reg.Ensure(c.Path, snap.Files[c.Path], domain.LanguageOf(c.Path))
		if s.ws.Persisted(c.Path) {
			s.scheduleWriteLocked(snap.StepID, c.Path)
		}

	case workspace.ChangeCreate:
		s.reg.Ensure(c.Path, snap.Files[c.Path], domain.LanguageOf(c.Path))
		s.reg.Activate(c.Path)
		if s.bridge != nil {
			ctx, cancel := s.callCtx()
			if err := s.bridge.CreateModule(ctx, snap.StepID, c.Path, snap.Files[c.Path]); err != nil {
				s.logger.Warn("create module failed", "step_id", snap.StepID, "path", c.Path, "err", err)
			}
			cancel()
		}

	case workspace.ChangeRemove:
		s.reg.Dispose(c.Path)
		s.reg.Activate(snap.Active)
		s.writes.CancelKey(c.Path)
		if s.bridge != nil {
			ctx, cancel := s.callCtx()
			if err := s.bridge.DeleteModule(ctx, snap.StepID, c.Path); err != nil {
				s.logger.Warn("delete module failed", "step_id", snap.StepID, "path", c.Path, "err", err)
			}
			cancel()
		}

	case workspace.ChangeActive:
		if !s.reg.Activate(c.Path) {
			s.logger.Debug("handle not ready", "path", c.Path)
		}
	}
}

// scheduleWriteLocked debounces the module write of path. The latest content is
// read when the timer fires.
func (s *Session) scheduleWriteLocked(stepID, path string) {
	if s.bridge == nil {
		return
	}
	epoch := s.epoch
	s.writes.Trigger(path, func() {
		s.exec(func() {
			if s.epoch != epoch {
				return
			}
			content, ok := s.ws.Content(path)
			if !ok || !s.ws.Persisted(path) {
				return
			}
			ctx, cancel := s.callCtx()
			defer cancel()
			if err := s.bridge.UpdateModule(ctx, stepID, path, content); err != nil {
				s.logger.Warn("update module failed", "step_id", stepID, "path", path, "err", err)
			}
		})
	})
}

func (s *Session) payloadLocked(runPath string) channel.Payload {
	snap := s.ws.Snapshot()
	return channel.Payload{
		StepID:       snap.StepID,
		Files:        snap.Files,
		Dependencies: snap.Dependencies,
		Main:         snap.Main,
		RunPath:      runPath,
		RunContent:   snap.Files[runPath],
	}
}
