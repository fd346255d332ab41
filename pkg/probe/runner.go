package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"
)

// DefaultTimeout bounds a single probe when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// waitDelay caps how long Run waits for inherited output pipes after the
// probe's process group has been killed.
const waitDelay = time.Second

// Result captures the outcome of executing one probe. ExitCode is nil when the
// probe could not be launched or was killed on timeout.
type Result struct {
	Name      string
	Path      string
	ExitCode  *int
	Stdout    string
	Stderr    string
	Duration  time.Duration
	TimedOut  bool
	LaunchErr error
}

// Failed reports whether the result counts against node health.
func (r Result) Failed() bool {
	return r.TimedOut || r.ExitCode == nil || *r.ExitCode != 0
}

// Runner executes probes as isolated child processes with a hard wall-clock bound.
type Runner struct {
	timeout time.Duration
	env     map[string]string
}

// NewRunner constructs a Runner. A non-positive timeout selects DefaultTimeout.
func NewRunner(timeout time.Duration, baseEnv map[string]string) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	envCopy := make(map[string]string, len(baseEnv))
	for k, v := range baseEnv {
		envCopy[k] = v
	}
	return &Runner{timeout: timeout, env: envCopy}
}

// Timeout returns the per-probe bound.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run executes the probe at path. It never returns an error: launch failures
// and timeouts are folded into the Result. When ctx is cancelled the probe is
// killed and the partial Result is returned; callers check ctx.Err().
func (r *Runner) Run(ctx context.Context, path string) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	result := Result{Name: filepath.Base(path), Path: path}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, path)
	cmd.Env = append(os.Environ(), formatEnv(r.env)...)
	isolate(cmd)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)

	if err != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.TimedOut = true
		result.Stdout = stdout.String()
		result.Stderr = stderr.String()
		return result
	}

	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		// The probe exited but a descendant kept its output pipes open.
		reapGroup(cmd)
		code := exitCode(cmd.ProcessState)
		result.ExitCode = &code
		result.Stdout = stdout.String()
		result.Stderr = stderr.String()
		return result
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitCode(exitErr.ProcessState)
			result.ExitCode = &code
			result.Stdout = stdout.String()
			result.Stderr = stderr.String()
			return result
		}
		if ctx.Err() != nil {
			result.LaunchErr = ctx.Err()
			return result
		}
		result.LaunchErr = fmt.Errorf("launch probe %s: %w", result.Name, err)
		return result
	}

	code := 0
	result.ExitCode = &code
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	return result
}

func formatEnv(values map[string]string) []string {
	if len(values) == 0 {
		return nil
	}
	formatted := make([]string, 0, len(values))
	for k, v := range values {
		formatted = append(formatted, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(formatted)
	return formatted
}
