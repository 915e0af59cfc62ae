// Package cmdrunner executes external commands (npm, wrangler) and returns
// their outcome in a single structured shape, so callers never have to poke
// at exec.ExitError internals.
package cmdrunner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultTimeout is the ceiling applied when the caller does not set one.
// A hung build or deploy command is converted into a failed Result rather
// than blocking the run forever.
const DefaultTimeout = 10 * time.Minute

// Result is the outcome of one command invocation.
type Result struct {
	// Output is the combined stdout and stderr of the command.
	Output string

	// ExitCode is the process exit code. -1 when the process never ran
	// or was killed by the timeout.
	ExitCode int

	// TimedOut reports whether the command was killed by the timeout ceiling.
	TimedOut bool

	// Duration is how long the command ran.
	Duration time.Duration

	// Err is the raw execution error, nil on exit code 0.
	Err error
}

// Runner abstracts command execution so orchestration logic can be tested
// without spawning processes, and so dry runs can skip execution entirely.
type Runner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) Result
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Timeout caps each invocation. Zero means DefaultTimeout.
	Timeout time.Duration

	logger hclog.Logger
}

// NewExecRunner creates a runner with the given per-command timeout.
func NewExecRunner(timeout time.Duration, logger hclog.Logger) *ExecRunner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ExecRunner{Timeout: timeout, logger: logger}
}

// Run executes the command in dir with the process environment extended by
// env, and returns the combined output.
func (r *ExecRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) Result {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)

	r.logger.Debug("executing command", "command", name, "args", args, "dir", dir)

	start := time.Now()
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	res := Result{
		Output:   string(output),
		Duration: elapsed,
		Err:      err,
	}

	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.TimedOut = true
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// Command never started (not found, permission denied).
			res.ExitCode = -1
		}
	}

	if res.Err != nil {
		r.logger.Debug("command failed", "command", name, "exit_code", res.ExitCode, "timed_out", res.TimedOut, "duration", elapsed)
	} else {
		r.logger.Debug("command completed", "command", name, "duration", elapsed)
	}

	return res
}
