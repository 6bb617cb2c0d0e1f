// Package grading decides when a step is complete.
//
// Checkpoints are evaluated in order. Regex checkpoints pass when their pattern
// matches the edited text; executed checkpoints pass when the sandbox reports a
// passing run. A passed checkpoint never reverts while its step is loaded.
package grading

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/dlclark/regexp2"
)

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// Machine is the checkpoint state machine of one step.
type Machine struct {
	mu          sync.Mutex
	stepID      string
	paths       map[string]bool
	checkpoints []domain.Checkpoint

	inFlight bool
	runID    string

	compiled map[string]*regexp2.Regexp
	invalid  map[string]bool

	logger *slog.Logger
}

// New creates a machine with no step loaded. An unloaded machine is complete.
func New(opts ...Option) *Machine {
	m := &Machine{
		paths:    make(map[string]bool),
		compiled: make(map[string]*regexp2.Regexp),
		invalid:  make(map[string]bool),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load resets the machine for step. Passed flags carried by the step are kept.
func (m *Machine) Load(step domain.Step) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stepID = step.ID
	m.paths = make(map[string]bool, len(step.Files))
	for _, f := range step.Files {
		m.paths[f.Path] = true
	}
	m.checkpoints = slices.Clone(step.Checkpoints)
	m.inFlight = false
	m.runID = ""
	m.compiled = make(map[string]*regexp2.Regexp)
	m.invalid = make(map[string]bool)
}

// AddPath makes path resolvable for executed checkpoints.
func (m *Machine) AddPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths[path] = true
}

// RemovePath makes path unresolvable.
func (m *Machine) RemovePath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.paths, path)
}

// Restore marks the given checkpoints as passed and returns the ones that changed.
func (m *Machine) Restore(ids []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed []string
	for _, id := range ids {
		if i := m.indexLocked(id); i >= 0 && !m.checkpoints[i].Passed {
			m.checkpoints[i].Passed = true
			changed = append(changed, id)
		}
	}
	return changed
}

// EvaluateText passes the current checkpoint when it is a regex checkpoint
// matching text. It returns the checkpoint that flipped.
func (m *Machine) EvaluateText(text string) (domain.Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := domain.FirstPending(m.checkpoints)
	if i < 0 {
		return domain.Checkpoint{}, false
	}
	cp := m.checkpoints[i]
	if cp.Kind() != domain.KindRegex {
		return domain.Checkpoint{}, false
	}

	re := m.patternLocked(cp)
	if re == nil {
		return domain.Checkpoint{}, false
	}
	ok, err := re.MatchString(text)
	if err != nil {
		m.logger.Warn("pattern evaluation failed", "step_id", m.stepID, "checkpoint_id", cp.ID, "err", err)
		return domain.Checkpoint{}, false
	}
	if !ok {
		return domain.Checkpoint{}, false
	}

	m.checkpoints[i].Passed = true
	return m.checkpoints[i], true
}

func (m *Machine) patternLocked(cp domain.Checkpoint) *regexp2.Regexp {
	if re, ok := m.compiled[cp.ID]; ok {
		return re
	}
	if m.invalid[cp.ID] {
		return nil
	}
	re, err := Compile(cp.Test.Pattern)
	if err != nil {
		m.invalid[cp.ID] = true
		m.logger.Warn("invalid checkpoint pattern", "step_id", m.stepID, "checkpoint_id", cp.ID, "err", err)
		return nil
	}
	m.compiled[cp.ID] = re
	return re
}

// BeginRun marks a grading run as in flight. It returns false when one already is.
func (m *Machine) BeginRun(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight {
		return false
	}
	m.inFlight = true
	m.runID = runID
	return true
}

// IsGradingInFlight reports whether a test run awaits its result.
func (m *Machine) IsGradingInFlight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// HandleReport applies a test result. Reports tagged with another step or run are
// ignored and leave the in-flight flag untouched. A passing report marks the named
// checkpoint, or the current executed checkpoint when its test file is part of
// the step, as passed and returns it.
func (m *Machine) HandleReport(report domain.TestReport) (domain.Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if report.StepID != "" && report.StepID != m.stepID {
		m.logger.Debug("stale report ignored", "step_id", m.stepID, "report_step_id", report.StepID)
		return domain.Checkpoint{}, false
	}
	if report.RunID != "" && m.runID != "" && report.RunID != m.runID {
		m.logger.Debug("stale run ignored", "step_id", m.stepID, "run_id", report.RunID)
		return domain.Checkpoint{}, false
	}

	m.inFlight = false
	m.runID = ""

	if !report.Passed() {
		return domain.Checkpoint{}, false
	}

	i := -1
	if report.CheckpointID != "" {
		i = m.indexLocked(report.CheckpointID)
	} else if cur := domain.FirstPending(m.checkpoints); cur >= 0 && m.checkpoints[cur].Kind() == domain.KindExecuted && m.paths[m.checkpoints[cur].Test.Path] {
		// An unresolved test path only passes when a report names it.
		i = cur
	}
	if i < 0 || m.checkpoints[i].Passed {
		return domain.Checkpoint{}, false
	}

	m.checkpoints[i].Passed = true
	return m.checkpoints[i], true
}

// CurrentTestPath returns the test file of the current checkpoint when it is an
// executed checkpoint whose path exists in the step.
func (m *Machine) CurrentTestPath() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := domain.FirstPending(m.checkpoints)
	if i < 0 {
		return "", false
	}
	cp := m.checkpoints[i]
	if cp.Kind() != domain.KindExecuted || !m.paths[cp.Test.Path] {
		return "", false
	}
	return cp.Test.Path, true
}

// Current returns the lowest pending checkpoint.
func (m *Machine) Current() (domain.Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := domain.FirstPending(m.checkpoints)
	if i < 0 {
		return domain.Checkpoint{}, false
	}
	return m.checkpoints[i], true
}

// Complete reports whether every checkpoint passed.
func (m *Machine) Complete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.FirstPending(m.checkpoints) < 0
}

// Checkpoints returns a copy of the checkpoints.
func (m *Machine) Checkpoints() []domain.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.checkpoints)
}

func (m *Machine) indexLocked(id string) int {
	for i, cp := range m.checkpoints {
		if cp.ID == id {
			return i
		}
	}
	return -1
}
