package grading

import (
	"testing"

	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regexStep(patterns ...string) domain.Step {
	step := domain.Step{ID: "step-1", Files: []domain.FileEntry{{Path: "/index.js"}}}
	for i, p := range patterns {
		step.Checkpoints = append(step.Checkpoints, domain.Checkpoint{
			ID:   string(rune('a' + i)),
			Test: domain.TestSpec{Pattern: p},
		})
	}
	return step
}

func TestEmptyStepIsComplete(t *testing.T) {
	m := New()
	m.Load(domain.Step{ID: "s"})
	assert.True(t, m.Complete())
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestEvaluateText_LiteralPattern(t *testing.T) {
	m := New()
	m.Load(regexStep("/^helloWorld$/"))

	cp, ok := m.EvaluateText("helloWorld")
	require.True(t, ok)
	assert.Equal(t, "a", cp.ID)
	assert.True(t, cp.Passed)
	assert.True(t, m.Complete())
}

func TestEvaluateText_OnlyCurrentCheckpoint(t *testing.T) {
	m := New()
	m.Load(regexStep("first", "second"))

	_, ok := m.EvaluateText("second")
	assert.False(t, ok, "a later checkpoint cannot pass before the current one")

	_, ok = m.EvaluateText("first")
	assert.True(t, ok)
	cur, _ := m.Current()
	assert.Equal(t, "b", cur.ID)

	_, ok = m.EvaluateText("nothing")
	assert.False(t, ok)
	assert.True(t, m.Checkpoints()[0].Passed, "passed is monotonic")
}

func TestEvaluateText_InvalidPatternNeverMatches(t *testing.T) {
	m := New()
	m.Load(regexStep("(unclosed"))

	_, ok := m.EvaluateText("(unclosed")
	assert.False(t, ok)
	_, ok = m.EvaluateText("anything")
	assert.False(t, ok)
	assert.False(t, m.Complete())
}

func TestEvaluateText_IgnoresExecutedCheckpoint(t *testing.T) {
	m := New()
	m.Load(domain.Step{
		ID:          "s",
		Files:       []domain.FileEntry{{Path: "/sum.spec.js"}},
		Checkpoints: []domain.Checkpoint{{ID: "t", Test: domain.TestSpec{Path: "/sum.spec.js"}}},
	})
	_, ok := m.EvaluateText("/sum.spec.js")
	assert.False(t, ok)
}

func executedStep() domain.Step {
	return domain.Step{
		ID:    "step-1",
		Files: []domain.FileEntry{{Path: "/sum.js"}, {Path: "/sum.spec.js"}},
		Checkpoints: []domain.Checkpoint{
			{ID: "t1", Test: domain.TestSpec{Path: "/sum.spec.js"}},
			{ID: "t2", Test: domain.TestSpec{Path: "/missing.spec.js"}},
		},
	}
}

func passing(runID string) domain.TestReport {
	return domain.TestReport{StepID: "step-1", RunID: runID, Results: []domain.TestResult{{Status: "pass"}}}
}

func TestGradingFlag(t *testing.T) {
	m := New()
	m.Load(executedStep())

	assert.True(t, m.BeginRun("r1"))
	assert.True(t, m.IsGradingInFlight())
	assert.False(t, m.BeginRun("r2"), "one run at a time")

	failing := domain.TestReport{StepID: "step-1", RunID: "r1", Results: []domain.TestResult{{Status: "fail"}}}
	_, ok := m.HandleReport(failing)
	assert.False(t, ok)
	assert.False(t, m.IsGradingInFlight(), "any result clears the flag")
}

func TestHandleReport_PassesCurrent(t *testing.T) {
	m := New()
	m.Load(executedStep())

	path, ok := m.CurrentTestPath()
	require.True(t, ok)
	assert.Equal(t, "/sum.spec.js", path)

	m.BeginRun("r1")
	cp, ok := m.HandleReport(passing("r1"))
	require.True(t, ok)
	assert.Equal(t, "t1", cp.ID)

	_, ok = m.CurrentTestPath()
	assert.False(t, ok, "a test path outside the step is never sent")
	assert.False(t, m.Complete())
}

func TestHandleReport_ExplicitCheckpoint(t *testing.T) {
	m := New()
	m.Load(executedStep())
	m.Restore([]string{"t1"})

	report := passing("")
	report.CheckpointID = "t2"
	cp, ok := m.HandleReport(report)
	require.True(t, ok)
	assert.Equal(t, "t2", cp.ID)
	assert.True(t, m.Complete())
}

func TestHandleReport_UnresolvedPathStaysPending(t *testing.T) {
	m := New()
	m.Load(executedStep())
	m.Restore([]string{"t1"})

	untagged := domain.TestReport{Results: []domain.TestResult{{Status: "pass"}}}
	_, ok := m.HandleReport(untagged)
	assert.False(t, ok, "an unnamed report cannot pass a checkpoint whose test file is missing")

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "t2", cur.ID)
	assert.False(t, m.Complete())
}

func TestHandleReport_StaleIgnored(t *testing.T) {
	m := New()
	m.Load(executedStep())
	m.BeginRun("r2")

	old := passing("r1")
	_, ok := m.HandleReport(old)
	assert.False(t, ok)
	assert.True(t, m.IsGradingInFlight(), "stale runs keep the flag")

	other := passing("r2")
	other.StepID = "step-0"
	_, ok = m.HandleReport(other)
	assert.False(t, ok)
	assert.True(t, m.IsGradingInFlight())
}

func TestRestore(t *testing.T) {
	m := New()
	m.Load(regexStep("a", "b"))

	changed := m.Restore([]string{"a", "zzz", "a"})
	assert.Equal(t, []string{"a"}, changed)
	cur, _ := m.Current()
	assert.Equal(t, "b", cur.ID)
}
