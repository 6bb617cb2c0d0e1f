package suggest

import (
	"strings"

	"github.com/aretw0/stepwise/pkg/domain"
)

// Preamble opens every completion prompt.
const Preamble = "Only respond with code that follows the instructions.\n"

// Prompt is the text around the cursor sent to the completion service.
type Prompt struct {
	Prompt string
	Suffix string
}

// BuildPrompt assembles the completion prompt from the step instructions, the
// current checkpoint (nil when none) and the text split at pos.
func BuildPrompt(instructions string, checkpoint *domain.Checkpoint, text string, pos domain.Position) Prompt {
	offset := pos.Offset(text)

	var b strings.Builder
	b.WriteString(Preamble)
	b.WriteString("Instructions: ")
	b.WriteString(instructions)
	b.WriteString("\n")
	if checkpoint != nil {
		if checkpoint.Kind() == domain.KindExecuted {
			b.WriteString("\nSatisfy Test: " + checkpoint.Test.Path)
		} else {
			b.WriteString("\nSatisfy Regex: " + checkpoint.Test.Pattern)
		}
	}
	b.WriteString(text[:offset])

	return Prompt{Prompt: b.String(), Suffix: text[offset:]}
}

// ExplainPrompt asks for a beginner-level explanation of selection within code.
func ExplainPrompt(code, selection string) string {
	return code + ` """ In the above code explain what ` + selection + ` is doing to a total beginner.`
}

// HoverTarget picks what to explain: the word under the pointer, unless the
// pointer lies inside the selection, in which case the selection.
func HoverTarget(word string, inSelection bool, selection string) string {
	if inSelection && selection != "" {
		return selection
	}
	if word != "" {
		return word
	}
	return selection
}
