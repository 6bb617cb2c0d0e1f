package dsl

import (
	"fmt"

	"github.com/aretw0/stepwise/pkg/domain"
)

// StepBuilder provides a fluent API for configuring a step.
type StepBuilder struct {
	step domain.Step
}

// Instructions sets the Markdown shown next to the editor.
func (s *StepBuilder) Instructions(markdown string) *StepBuilder {
	s.step.Instructions = markdown
	return s
}

// File adds a file, or replaces the content of an existing one.
func (s *StepBuilder) File(path, content string) *StepBuilder {
	for i, f := range s.step.Files {
		if f.Path == path {
			s.step.Files[i].Content = content
			return s
		}
	}
	s.step.Files = append(s.step.Files, domain.FileEntry{Path: path, Content: content})
	return s
}

// Main overrides the runnable entry of the step.
func (s *StepBuilder) Main(path string) *StepBuilder {
	s.step.MainFile = path
	return s
}

// Start places the initial cursor after the first occurrence of anchor.
func (s *StepBuilder) Start(anchor string) *StepBuilder {
	s.step.Start = anchor
	return s
}

// Depends adds an npm dependency.
func (s *StepBuilder) Depends(pkg, version string) *StepBuilder {
	s.step.Dependencies = append(s.step.Dependencies, domain.Dependency{Package: pkg, Version: version})
	return s
}

// Regex adds a checkpoint that passes when pattern matches the edited text.
func (s *StepBuilder) Regex(message, pattern string) *StepBuilder {
	return s.checkpoint(message, domain.TestSpec{Pattern: pattern})
}

// Executed adds a checkpoint that passes when the sandbox reports a passing run of path.
func (s *StepBuilder) Executed(message, path string) *StepBuilder {
	return s.checkpoint(message, domain.TestSpec{Path: path})
}

// ID renames the last added checkpoint.
func (s *StepBuilder) ID(id string) *StepBuilder {
	if n := len(s.step.Checkpoints); n > 0 {
		s.step.Checkpoints[n-1].ID = id
	}
	return s
}

// Current marks the last added checkpoint as the one to work on first.
func (s *StepBuilder) Current() *StepBuilder {
	if n := len(s.step.Checkpoints); n > 0 {
		s.step.CurrentCheckpointID = s.step.Checkpoints[n-1].ID
	}
	return s
}

func (s *StepBuilder) checkpoint(message string, test domain.TestSpec) *StepBuilder {
	s.step.Checkpoints = append(s.step.Checkpoints, domain.Checkpoint{
		ID:      fmt.Sprintf("c%d", len(s.step.Checkpoints)+1),
		Message: message,
		Test:    test,
	})
	return s
}

// Build returns the underlying domain.Step.
// This is primarily used by the Builder, but exposed for advanced usage.
func (s *StepBuilder) Build() domain.Step {
	step := s.step
	step.Files = append([]domain.FileEntry(nil), s.step.Files...)
	step.Checkpoints = append([]domain.Checkpoint(nil), s.step.Checkpoints...)
	step.Dependencies = append([]domain.Dependency(nil), s.step.Dependencies...)
	return step
}
