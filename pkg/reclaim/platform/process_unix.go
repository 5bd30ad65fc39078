//go:build unix

package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// pollInterval is how often Wait re-checks a process.
const pollInterval = 50 * time.Millisecond

// signalDirectory implements Terminate and Wait with POSIX signals. The
// listing and liveness check differ between Linux and other systems.
type signalDirectory struct {
	list  func(ctx context.Context) ([]Process, error)
	alive func(pid int) bool
}

func (d signalDirectory) List(ctx context.Context) ([]Process, error) {
	return d.list(ctx)
}

// Terminate sends SIGTERM when graceful, SIGKILL otherwise.
func (d signalDirectory) Terminate(_ context.Context, pid int, graceful bool) error {
	sig := unix.SIGKILL
	if graceful {
		sig = unix.SIGTERM
	}
	return signalError(pid, unix.Kill(pid, sig))
}

func (d signalDirectory) Wait(ctx context.Context, pid int, timeout time.Duration) (bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		if !d.alive(pid) {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return !d.alive(pid), nil
		case <-tick.C:
		}
	}
}

func signalError(pid int, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("process %d: %w", pid, types.ErrNotFound)
	default:
		// EPERM matches fs.ErrPermission through syscall.Errno.Is.
		return fmt.Errorf("signal process %d: %w", pid, err)
	}
}

// forceKillCommand kills every process whose name is exactly name.
func forceKillCommand(name string) (string, []string) {
	return "pkill", []string{"-KILL", "-x", name}
}
