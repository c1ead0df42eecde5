package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const (
	// DefaultToolPath is the verifier binary looked up on PATH.
	DefaultToolPath = "semaphore-mtb-setup"
	// DefaultSubcommand verifies a phase-2 contribution.
	DefaultSubcommand = "p2v"
	// DefaultTimeout bounds one tool invocation.
	DefaultTimeout = 300 * time.Second

	// waitDelay bounds how long output pipes may stay open after the
	// process group is killed.
	waitDelay = 5 * time.Second
)

// ErrToolUnavailable wraps failures to start the verifier tool.
var ErrToolUnavailable = errors.New("verifier tool unavailable")

// ExecTool runs `Path Subcommand <candidate> <anchor>` as a subprocess.
type ExecTool struct {
	Path       string
	Subcommand string
	Timeout    time.Duration
}

// NewExecTool returns an ExecTool with defaults for empty fields.
func NewExecTool(path, subcommand string, timeout time.Duration) *ExecTool {
	if path == "" {
		path = DefaultToolPath
	}
	if subcommand == "" {
		subcommand = DefaultSubcommand
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecTool{Path: path, Subcommand: subcommand, Timeout: timeout}
}

// Check resolves the tool binary without running it.
func (t *ExecTool) Check() error {
	if _, err := exec.LookPath(t.Path); err != nil {
		return fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}
	return nil
}

// Verify runs the tool under the configured timeout. On timeout the whole
// process group is killed and TimedOut is set. If ctx itself ends first the
// process group is killed too and the context error is returned.
func (t *ExecTool) Verify(ctx context.Context, candidate, anchor string) (ToolResult, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var args []string
	if t.Subcommand != "" {
		args = append(args, t.Subcommand)
	}
	args = append(args, candidate, anchor)

	cmd := exec.CommandContext(runCtx, t.Path, args...)
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ToolResult{Stdout: stdout.String(), Stderr: stderr.String()}
	// A killed process also exits non-zero; an interrupted run is not a verdict.
	if cerr := ctx.Err(); cerr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("verifier interrupted: %w", cerr)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		res.Stderr += fmt.Sprintf("verification timed out after %s\n", timeout)
		return res, nil
	}
	if err == nil {
		res.OK = true
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("%w: %v", ErrToolUnavailable, err)
}
