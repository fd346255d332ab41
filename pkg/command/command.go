package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, command []string) ([]byte, error)
}

// ExecRunner shells out using os/exec. Every invocation inherits the process
// environment plus Env and is bounded by Timeout when it is positive.
type ExecRunner struct {
	Env     map[string]string
	Timeout time.Duration
}

// NewExecRunner constructs an ExecRunner.
func NewExecRunner(env map[string]string, timeout time.Duration) *ExecRunner {
	copied := make(map[string]string, len(env))
	for k, v := range env {
		copied[k] = v
	}
	return &ExecRunner{Env: copied, Timeout: timeout}
}

// Run executes command and captures stdout. A non-zero exit is returned as an
// error carrying the trimmed stderr text.
func (e *ExecRunner) Run(ctx context.Context, command []string) ([]byte, error) {
	if len(command) == 0 {
		return nil, errors.New("command is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if e != nil && e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if e != nil && len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), formatEnv(e.Env)...)
	}

	if err := cmd.Run(); err != nil {
		joined := strings.Join(command, " ")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return stdout.Bytes(), fmt.Errorf("run %q: timed out: %w", joined, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("run %q: %w: %s", joined, err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("run %q: %w", joined, err)
	}
	return stdout.Bytes(), nil
}

func formatEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+values[k])
	}
	return env
}

// RunnerFunc adapts a function into a Runner.
type RunnerFunc func(ctx context.Context, command []string) ([]byte, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, command []string) ([]byte, error) {
	return f(ctx, command)
}

var _ Runner = (*ExecRunner)(nil)
var _ Runner = RunnerFunc(nil)
