package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// DefaultCommandTimeout bounds commands run with a non-positive timeout.
const DefaultCommandTimeout = 30 * time.Second

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and waits at most timeout. Output holds the
// combined stdout and stderr.
func (ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) CommandResult {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	res := CommandResult{Output: out.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Err = fmt.Errorf("%s timed out after %s: %w", name, timeout, ctx.Err())
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = fmt.Errorf("running %s: %w", name, err)
	}
	return res
}
