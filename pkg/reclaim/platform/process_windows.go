//go:build windows

package platform

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// gracefulCommandTimeout bounds the taskkill request sent for a graceful stop.
const gracefulCommandTimeout = 5 * time.Second

type windowsProcesses struct {
	runner CommandRunner
}

func newProcessDirectory(runner CommandRunner) ProcessDirectory {
	return windowsProcesses{runner: runner}
}

// List walks a toolhelp snapshot of the process table.
func (windowsProcesses) List(_ context.Context) ([]Process, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("process snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snap, &entry); err != nil {
		return nil, fmt.Errorf("process snapshot: %w", err)
	}

	var out []Process
	for {
		out = append(out, Process{
			PID:  int(entry.ProcessID),
			Name: windows.UTF16ToString(entry.ExeFile[:]),
		})
		if err := windows.Process32Next(snap, &entry); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				return out, nil
			}
			return out, fmt.Errorf("process snapshot: %w", err)
		}
	}
}

// Terminate asks the process to close through taskkill when graceful, which
// posts WM_CLOSE to its windows, and calls TerminateProcess otherwise.
func (w windowsProcesses) Terminate(ctx context.Context, pid int, graceful bool) error {
	if graceful {
		res := w.runner.Run(ctx, gracefulCommandTimeout, "taskkill", "/PID", strconv.Itoa(pid))
		if res.Err != nil {
			return res.Err
		}
		// taskkill exits 128 when the process does not exist.
		if res.ExitCode == 128 {
			return fmt.Errorf("process %d: %w", pid, types.ErrNotFound)
		}
		return nil
	}

	h, err := openProcess(pid, windows.PROCESS_TERMINATE)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)

	if err := windows.TerminateProcess(h, 1); err != nil {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	return nil
}

func (windowsProcesses) Wait(ctx context.Context, pid int, timeout time.Duration) (bool, error) {
	h, err := openProcess(pid, windows.SYNCHRONIZE)
	if err != nil {
		if types.IsAbsent(err) {
			return true, nil
		}
		return false, err
	}
	defer windows.CloseHandle(h)

	deadline := time.Now().Add(timeout)
	for {
		// Wait in short slices so ctx cancellation is observed.
		slice := time.Until(deadline)
		if slice > 250*time.Millisecond {
			slice = 250 * time.Millisecond
		}
		if slice < 0 {
			slice = 0
		}
		ev, err := windows.WaitForSingleObject(h, uint32(slice.Milliseconds()))
		if err != nil {
			return false, fmt.Errorf("wait for process %d: %w", pid, err)
		}
		if ev == windows.WAIT_OBJECT_0 {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
	}
}

func openProcess(pid int, access uint32) (windows.Handle, error) {
	h, err := windows.OpenProcess(access, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return 0, fmt.Errorf("process %d: %w", pid, types.ErrNotFound)
		}
		return 0, fmt.Errorf("open process %d: %w", pid, err)
	}
	return h, nil
}

func forceKillCommand(name string) (string, []string) {
	return "taskkill", []string{"/F", "/IM", name, "/T"}
}
