package domain

import "time"

// Readiness components reported by clients before the lesson is revealed.
const (
	ComponentLoader = "loader"
	ComponentEditor = "editor"
)

// View is the read model of a learner session.
type View struct {
	SessionID    string            `json:"session_id"`
	LessonID     string            `json:"lesson_id"`
	StepID       string            `json:"step_id"`
	StepIndex    int               `json:"step_index"`
	StepCount    int               `json:"step_count"`
	Instructions string            `json:"instructions,omitempty"`
	Files        map[string]string `json:"files"`
	Paths        []string          `json:"paths"`
	Active       string            `json:"active"`
	Main         string            `json:"main"`
	Cursor       *Position         `json:"cursor,omitempty"`
	Checkpoints  []Checkpoint      `json:"checkpoints"`
	Current      string            `json:"current_checkpoint_id,omitempty"`
	Complete     bool              `json:"complete"`
	Loading      bool              `json:"loading"`
	Grading      bool              `json:"grading"`
	Ready        bool              `json:"ready"`
}

// Progress is the durable part of a learner session.
type Progress struct {
	SessionID string              `json:"session_id"`
	LessonID  string              `json:"lesson_id"`
	StepIndex int                 `json:"step_index"`
	Passed    map[string][]string `json:"passed,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`

	// Sealed holds the encrypted record when a store encrypts progress at rest.
	Sealed string `json:"sealed,omitempty"`
}

// NewProgress creates a clean progress record at the first step.
func NewProgress(sessionID, lessonID string) *Progress {
	return &Progress{
		SessionID: sessionID,
		LessonID:  lessonID,
		Passed:    make(map[string][]string),
		UpdatedAt: time.Now(),
	}
}

// MarkPassed records a passed checkpoint; it reports false when already recorded.
func (p *Progress) MarkPassed(stepID, checkpointID string) bool {
	if p.Passed == nil {
		p.Passed = make(map[string][]string)
	}
	for _, id := range p.Passed[stepID] {
		if id == checkpointID {
			return false
		}
	}
	p.Passed[stepID] = append(p.Passed[stepID], checkpointID)
	p.UpdatedAt = time.Now()
	return true
}

// Snapshot returns a deep copy.
func (p *Progress) Snapshot() *Progress {
	cp := *p
	cp.Passed = make(map[string][]string, len(p.Passed))
	for k, v := range p.Passed {
		cp.Passed[k] = append([]string(nil), v...)
	}
	return &cp
}
