// Package validator checks lesson definitions for mistakes that would only
// surface once a learner reaches the broken step.
package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/stepwise/internal/grading"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/ports"
)

// ValidateLesson reports duplicate IDs, uncompilable patterns, checkpoints
// running files the step does not ship and dangling references.
func ValidateLesson(lesson domain.Lesson) error {
	var errors []string

	if len(lesson.Steps) == 0 {
		errors = append(errors, "lesson has no steps")
	}

	steps := make(map[string]bool)
	for i, step := range lesson.Steps {
		where := fmt.Sprintf("step %d", i)
		if step.ID == "" {
			errors = append(errors, where+": missing id")
		} else {
			where = fmt.Sprintf("step '%s'", step.ID)
			if steps[step.ID] {
				errors = append(errors, where+": duplicate id")
			}
			steps[step.ID] = true
		}

		files := make(map[string]bool)
		for _, f := range step.Files {
			if !strings.HasPrefix(f.Path, "/") {
				errors = append(errors, fmt.Sprintf("%s: file path '%s' must start with '/'", where, f.Path))
			}
			if files[f.Path] {
				errors = append(errors, fmt.Sprintf("%s: duplicate file '%s'", where, f.Path))
			}
			files[f.Path] = true
		}
		if step.MainFile != "" && !files[step.MainFile] {
			errors = append(errors, fmt.Sprintf("%s: main file '%s' is not a step file", where, step.MainFile))
		}

		checkpoints := make(map[string]bool)
		for _, cp := range step.Checkpoints {
			if checkpoints[cp.ID] {
				errors = append(errors, fmt.Sprintf("%s: duplicate checkpoint '%s'", where, cp.ID))
			}
			checkpoints[cp.ID] = true

			switch cp.Kind() {
			case domain.KindExecuted:
				if !files[cp.Test.Path] {
					errors = append(errors, fmt.Sprintf("%s: checkpoint '%s' runs missing file '%s'", where, cp.ID, cp.Test.Path))
				}
			case domain.KindRegex:
				if _, err := grading.Compile(cp.Test.Pattern); err != nil {
					errors = append(errors, fmt.Sprintf("%s: checkpoint '%s': %v", where, cp.ID, err))
				}
			}
		}
		if step.CurrentCheckpointID != "" && !checkpoints[step.CurrentCheckpointID] {
			errors = append(errors, fmt.Sprintf("%s: current checkpoint '%s' does not exist", where, step.CurrentCheckpointID))
		}

		for _, dep := range step.Dependencies {
			if dep.Package == "" || dep.Version == "" {
				errors = append(errors, fmt.Sprintf("%s: dependency '%s' needs a package and a version", where, dep.String()))
			}
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateAll loads and validates every lesson of loader. Lessons that fail
// to load are reported alongside invalid ones.
func ValidateAll(ctx context.Context, loader ports.LessonLoader) error {
	ids, err := loader.List(ctx)
	if err != nil {
		return fmt.Errorf("list lessons: %w", err)
	}

	var failed []string
	for _, id := range ids {
		lesson, err := loader.Load(ctx, id)
		if err == nil {
			err = ValidateLesson(lesson)
		}
		if err != nil {
			failed = append(failed, fmt.Sprintf("lesson '%s': %v", id, err))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d lessons invalid:\n%s", len(failed), len(ids), strings.Join(failed, "\n"))
	}
	return nil
}
