package domain

// CheckpointKind tells how a checkpoint is evaluated.
type CheckpointKind string

const (
	// KindRegex checkpoints pass when their pattern matches the edited text.
	KindRegex CheckpointKind = "regex"
	// KindExecuted checkpoints pass when the sandbox reports a passing run of their test file.
	KindExecuted CheckpointKind = "executed"
)

// TestSpec is either a pattern or the path of a test file. Path wins when both are set.
type TestSpec struct {
	Pattern string `json:"pattern,omitempty" mapstructure:"pattern"`
	Path    string `json:"path,omitempty" mapstructure:"path"`
}

// String returns the raw specification as authored.
func (t TestSpec) String() string {
	if t.Path != "" {
		return t.Path
	}
	return t.Pattern
}

// Checkpoint is a gating condition of a step. Passed is monotonic within a step instance.
type Checkpoint struct {
	ID      string   `json:"id"`
	Message string   `json:"message"`
	Test    TestSpec `json:"test"`
	Passed  bool     `json:"passed"`
}

// Kind classifies the checkpoint.
func (c Checkpoint) Kind() CheckpointKind {
	if c.Test.Path != "" {
		return KindExecuted
	}
	return KindRegex
}

// ClassifyTest turns a bare test string into a TestSpec: a path when it names one of
// the step files, a pattern otherwise.
func ClassifyTest(test string, paths []string) TestSpec {
	for _, p := range paths {
		if p == test {
			return TestSpec{Path: test}
		}
	}
	return TestSpec{Pattern: test}
}

// FirstPending returns the index of the first checkpoint not yet passed, or -1.
func FirstPending(checkpoints []Checkpoint) int {
	for i, c := range checkpoints {
		if !c.Passed {
			return i
		}
	}
	return -1
}
