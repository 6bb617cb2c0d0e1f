package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Renderer turns markdown into terminal output.
type Renderer func(string) (string, error)

// NewRenderer returns a glamour renderer when stdout is a terminal and a
// pass-through otherwise, so piped output stays plain markdown.
func NewRenderer() Renderer {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return Plain
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	if err != nil {
		return Plain
	}
	return r.Render
}

// Plain returns the markdown unchanged.
func Plain(markdown string) (string, error) {
	return markdown, nil
}

// LessonMarkdown describes a lesson for authors: every step with its
// instructions, files, dependencies and checkpoints.
func LessonMarkdown(lesson domain.Lesson) string {
	var b strings.Builder

	title := lesson.Title
	if title == "" {
		title = lesson.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "`%s` · %d steps\n\n", lesson.ID, len(lesson.Steps))

	for i, step := range lesson.Steps {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, step.ID)
		if step.Instructions != "" {
			fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(step.Instructions))
		}

		if len(step.Files) > 0 {
			main := domain.SelectMain(step.Paths(), step.MainFile)
			b.WriteString("**Files**\n\n")
			for _, f := range step.Files {
				marker := ""
				if f.Path == main {
					marker = " (main)"
				}
				fmt.Fprintf(&b, "- `%s`%s\n", f.Path, marker)
			}
			b.WriteString("\n")
		}

		if len(step.Dependencies) > 0 {
			b.WriteString("**Dependencies**\n\n")
			for _, d := range step.Dependencies {
				fmt.Fprintf(&b, "- `%s`\n", d.String())
			}
			b.WriteString("\n")
		}

		if len(step.Checkpoints) > 0 {
			b.WriteString("**Checkpoints**\n\n")
			for j, cp := range step.Checkpoints {
				fmt.Fprintf(&b, "%d. %s _(%s: `%s`)_\n", j+1, cp.Message, cp.Kind(), cp.Test.String())
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
