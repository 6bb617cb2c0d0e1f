package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/stepwise/internal/logging"
	"github.com/aretw0/stepwise/pkg/domain"
	"github.com/aretw0/stepwise/pkg/ports"
	"golang.org/x/sync/semaphore"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultConcurrency = 4
	maxErrorOutput     = 4 << 10
)

// Receiver accepts the test reports produced by a run.
type Receiver interface {
	HandleSandboxMessage(ctx context.Context, raw []byte) (domain.Inbound, error)
}

// ReceiverFunc resolves the receiver of a session, usually the live session itself.
type ReceiverFunc func(sessionID string) (Receiver, bool)

// Runner is a local sandbox: grading sends are executed as processes on the
// host and their exit status is reported back as a test run. Only commands
// registered per file extension may run.
type Runner struct {
	registry  map[string]ProcessConfig
	receivers ReceiverFunc
	baseDir   string
	timeout   time.Duration
	logger    *slog.Logger
	sem       *semaphore.Weighted
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(runners map[string]ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for _, cfg := range runners {
			r.Register(cfg.Extension, cfg.Command, cfg.Args...)
			if len(cfg.Environment) > 0 {
				reg := r.registry[cfg.Extension]
				reg.Environment = cfg.Environment
				r.registry[cfg.Extension] = reg
			}
		}
	}
}

// WithBaseDir sets the directory under which run workspaces are created.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithTimeout bounds a single run.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithConcurrency bounds the number of runs executing at once.
func WithConcurrency(n int64) RunnerOption {
	return func(r *Runner) {
		r.sem = semaphore.NewWeighted(max(n, 1))
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a process runner reporting to the receivers resolved by fn.
func NewRunner(fn ReceiverFunc, opts ...RunnerOption) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		registry:  make(map[string]ProcessConfig),
		receivers: fn,
		timeout:   defaultTimeout,
		logger:    logging.NewNop(),
		sem:       semaphore.NewWeighted(defaultConcurrency),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command for files with extension ext. The test
// file path is appended as the last argument.
func (r *Runner) Register(ext, command string, args ...string) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.registry[ext] = ProcessConfig{
		Extension: ext,
		Command:   command,
		Args:      args,
	}
}

// Sandbox returns the sandbox endpoint of sessionID.
func (r *Runner) Sandbox(sessionID string) ports.Sandbox {
	return endpoint{runner: r, sessionID: sessionID}
}

// Close cancels running processes and waits for them.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

type endpoint struct {
	runner    *Runner
	sessionID string
}

// Deliver starts a run for grading sends and ignores routine ones. It never
// blocks on the process.
func (e endpoint) Deliver(ctx context.Context, msg domain.EditorMessage) error {
	if !msg.IsTest {
		return nil
	}
	proc, ok := e.runner.registry[path.Ext(msg.RunPath)]
	if !ok {
		return fmt.Errorf("no runner registered for %s: %w", msg.RunPath, domain.ErrNotMounted)
	}
	if err := e.runner.ctx.Err(); err != nil {
		return fmt.Errorf("runner closed: %w", domain.ErrNotMounted)
	}

	e.runner.wg.Add(1)
	go e.runner.run(e.sessionID, proc, msg)
	return nil
}

func (r *Runner) run(sessionID string, proc ProcessConfig, msg domain.EditorMessage) {
	defer r.wg.Done()

	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		return
	}
	defer r.sem.Release(1)

	result := r.execute(sessionID, proc, msg)

	raw, err := json.Marshal(domain.PreviewMessage{
		From:   domain.OriginPreview,
		Type:   domain.MessageTypeTest,
		Result: mustMarshal([]domain.TestResult{result}),
		StepID: msg.StepID,
		RunID:  msg.RunID,
	})
	if err != nil {
		r.logger.Error("encode test report failed", "session_id", sessionID, "err", err)
		return
	}

	recv, ok := r.receivers(sessionID)
	if !ok {
		r.logger.Debug("test report dropped, session gone", "session_id", sessionID, "run_id", msg.RunID)
		return
	}
	if _, err := recv.HandleSandboxMessage(r.ctx, raw); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
		r.logger.Warn("test report rejected", "session_id", sessionID, "run_id", msg.RunID, "err", err)
	}
}

// execute writes the files into a scratch directory and runs the command on
// the test file. A zero exit status is a pass.
func (r *Runner) execute(sessionID string, proc ProcessConfig, msg domain.EditorMessage) domain.TestResult {
	result := domain.TestResult{Name: msg.RunPath, Status: "fail"}

	dir, err := os.MkdirTemp(r.baseDir, "stepwise-run-*")
	if err != nil {
		result.Error = fmt.Sprintf("workspace: %v", err)
		return result
	}
	defer os.RemoveAll(dir)

	for p, content := range msg.Files {
		dest, err := safeJoin(dir, p)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			result.Error = fmt.Sprintf("workspace: %v", err)
			return result
		}
		if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
			result.Error = fmt.Sprintf("workspace: %v", err)
			return result
		}
	}
	target, err := safeJoin(dir, msg.RunPath)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	args := append(append([]string{}, proc.Args...), target)
	cmd := exec.CommandContext(ctx, proc.Command, args...)
	cmd.Dir = dir

	// Run metadata is passed through the environment, never as flags.
	env := []string{
		"STEPWISE_SESSION_ID=" + sessionID,
		"STEPWISE_STEP_ID=" + msg.StepID,
		"STEPWISE_RUN_ID=" + msg.RunID,
	}
	for k, v := range proc.Environment {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	r.logger.Debug("test run finished", "session_id", sessionID, "run_path", msg.RunPath, "duration", time.Since(start), "err", err)

	if err != nil {
		output := strings.TrimSpace(stderr.String())
		if output == "" {
			output = strings.TrimSpace(stdout.String())
		}
		if len(output) > maxErrorOutput {
			output = output[:maxErrorOutput]
		}
		result.Error = fmt.Sprintf("execution failed: %v. %s", err, output)
		return result
	}

	result.Status = domain.StatusPass
	return result
}

// safeJoin maps an editor path onto dir, rejecting escapes.
func safeJoin(dir, p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", fmt.Errorf("invalid path %q", p)
	}
	return filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
