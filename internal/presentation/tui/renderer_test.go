package tui

import (
	"bytes"
	"testing"

	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestLessonMarkdown(t *testing.T) {
	md := LessonMarkdown(domain.Lesson{
		ID:    "intro",
		Title: "Intro to React",
		Steps: []domain.Step{
			{
				ID:           "hello",
				Instructions: "  Rename the variable.\n",
				Files: []domain.FileEntry{
					{Path: "/index.js"},
					{Path: "/index.test.js"},
				},
				Dependencies: []domain.Dependency{{Package: "react", Version: "18.2.0"}},
				Checkpoints: []domain.Checkpoint{
					{ID: "c1", Message: "Name it helloWorld", Test: domain.TestSpec{Pattern: "/helloWorld/"}},
					{ID: "c2", Message: "Tests pass", Test: domain.TestSpec{Path: "/index.test.js"}},
				},
			},
			{ID: "bye"},
		},
	})

	assert.Contains(t, md, "# Intro to React\n")
	assert.Contains(t, md, "`intro` · 2 steps")
	assert.Contains(t, md, "## 1. hello\n\nRename the variable.\n\n")
	assert.Contains(t, md, "- `/index.js` (main)\n- `/index.test.js`\n")
	assert.Contains(t, md, "- `react@18.2.0`")
	assert.Contains(t, md, "1. Name it helloWorld _(regex: `/helloWorld/`)_")
	assert.Contains(t, md, "2. Tests pass _(executed: `/index.test.js`)_")
	assert.Contains(t, md, "## 2. bye\n\n")
}

func TestLessonMarkdown_FallsBackToID(t *testing.T) {
	md := LessonMarkdown(domain.Lesson{ID: "intro", Steps: []domain.Step{{ID: "a"}}})
	assert.Contains(t, md, "# intro\n")
	assert.NotContains(t, md, "**Files**")
}

func TestPlain(t *testing.T) {
	out, err := Plain("# hi")
	assert.NoError(t, err)
	assert.Equal(t, "# hi", out)
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3")
	assert.Contains(t, buf.String(), "v1.2.3")
}
