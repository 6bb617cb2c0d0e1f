package suggest

import (
	"testing"
	"unicode/utf8"

	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	text := "const a = 1;\nconsole.log(a)"
	pos := domain.Position{Line: 2, Column: 1}

	t.Run("regex checkpoint", func(t *testing.T) {
		cp := &domain.Checkpoint{Test: domain.TestSpec{Pattern: "console"}}
		p := BuildPrompt("Log it", cp, text, pos)
		assert.Equal(t,
			"Only respond with code that follows the instructions.\nInstructions: Log it\n\nSatisfy Regex: consoleconst a = 1;\n",
			p.Prompt)
		assert.Equal(t, "console.log(a)", p.Suffix)
	})

	t.Run("executed checkpoint", func(t *testing.T) {
		cp := &domain.Checkpoint{Test: domain.TestSpec{Path: "/a.spec.js"}}
		p := BuildPrompt("Log it", cp, text, pos)
		assert.Contains(t, p.Prompt, "\nSatisfy Test: /a.spec.js")
	})

	t.Run("multibyte line", func(t *testing.T) {
		p := BuildPrompt("", nil, "é = 1", domain.Position{Line: 1, Column: 2})
		assert.True(t, utf8.ValidString(p.Prompt))
		assert.Equal(t, " = 1", p.Suffix)
	})

	t.Run("no checkpoint", func(t *testing.T) {
		p := BuildPrompt("", nil, text, domain.Position{Line: 1, Column: 1})
		assert.Equal(t, Preamble+"Instructions: \n", p.Prompt)
		assert.Equal(t, text, p.Suffix)
	})
}

func TestExplainPrompt(t *testing.T) {
	assert.Equal(t,
		`let x = 1 """ In the above code explain what x is doing to a total beginner.`,
		ExplainPrompt("let x = 1", "x"))
}

func TestHoverTarget(t *testing.T) {
	assert.Equal(t, "log", HoverTarget("log", false, "console.log(a)"))
	assert.Equal(t, "console.log(a)", HoverTarget("log", true, "console.log(a)"))
	assert.Equal(t, "sel", HoverTarget("", false, "sel"))
	assert.Equal(t, "word", HoverTarget("word", true, ""))
}
