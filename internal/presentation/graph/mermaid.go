package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/stepwise/pkg/domain"
)

// Overlay carries a learner's progress to highlight on the graph.
type Overlay struct {
	StepIndex int
	Passed    map[string][]string
}

// OverlayFrom builds an overlay from stored progress.
func OverlayFrom(p *domain.Progress) *Overlay {
	if p == nil {
		return nil
	}
	return &Overlay{StepIndex: p.StepIndex, Passed: p.Passed}
}

// GenerateMermaid produces a Mermaid flowchart of a lesson: steps in order,
// each with its checkpoints in a subgraph. Shapes follow the checkpoint kind:
// - Regex: [Rectangle]
// - Executed: [[Subroutine]]
// Steps with dependencies are annotated with their package count.
func GenerateMermaid(lesson domain.Lesson, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i, step := range lesson.Steps {
		safeID := sanitizeMermaidID(step.ID)

		label := fmt.Sprintf("%d. %s", i+1, escape(step.ID))
		if n := len(step.Dependencies); n > 0 {
			label += fmt.Sprintf(" <br/> 📦 %d", n)
		}
		sb.WriteString(fmt.Sprintf("    %s((\"%s\"))\n", safeID, label))

		if len(step.Checkpoints) > 0 {
			sb.WriteString(fmt.Sprintf("    subgraph %s_checks [\" \"]\n", safeID))
			prev := safeID
			for _, cp := range step.Checkpoints {
				cpID := checkpointID(step.ID, cp.ID)
				opener, closer := "[", "]"
				if cp.Kind() == domain.KindExecuted {
					opener, closer = "[[", "]]"
				}
				text := cp.Message
				if text == "" {
					text = cp.ID
				}
				sb.WriteString(fmt.Sprintf("        %s%s\"%s\"%s\n", cpID, opener, escape(text), closer))
				sb.WriteString(fmt.Sprintf("        %s -.-> %s\n", prev, cpID))
				prev = cpID
			}
			sb.WriteString("    end\n")
		}

		if i+1 < len(lesson.Steps) {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", safeID, sanitizeMermaidID(lesson.Steps[i+1].ID)))
		}
	}

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef passed fill:#c8e6c9,stroke:#2e7d32,color:#000;\n")

		for i, step := range lesson.Steps {
			switch {
			case i < overlay.StepIndex:
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", sanitizeMermaidID(step.ID)))
			case i == overlay.StepIndex:
				sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(step.ID)))
			}
			for _, id := range overlay.Passed[step.ID] {
				sb.WriteString(fmt.Sprintf("    class %s passed;\n", checkpointID(step.ID, id)))
			}
		}
	}

	return sb.String()
}

func checkpointID(stepID, checkpointID string) string {
	return sanitizeMermaidID(stepID) + "__" + sanitizeMermaidID(checkpointID)
}

// escape replaces double quotes, which end a Mermaid label.
func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
