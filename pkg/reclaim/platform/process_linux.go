//go:build linux

package platform

import (
	"context"
	"fmt"

	"github.com/prometheus/procfs"
)

// newProcessDirectory lists processes from /proc.
func newProcessDirectory(_ CommandRunner) ProcessDirectory {
	return signalDirectory{list: listProc, alive: procAlive}
}

func listProc(_ context.Context) ([]Process, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		comm, err := p.Comm()
		if err != nil {
			// Exited while listing.
			continue
		}
		proc := Process{PID: p.PID, Name: comm}
		if exe, err := p.Executable(); err == nil {
			proc.Exe = exe
		}
		out = append(out, proc)
	}
	return out, nil
}

// procAlive treats zombies as exited, since they no longer hold resources
// and are only waiting for their parent to reap them.
func procAlive(pid int) bool {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return false
	}
	stat, err := p.Stat()
	if err != nil {
		return false
	}
	return stat.State != "Z" && stat.State != "X"
}
