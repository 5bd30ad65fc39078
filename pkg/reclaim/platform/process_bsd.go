//go:build unix && !linux

package platform

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const listTimeout = 10 * time.Second

// newProcessDirectory lists processes through ps(1).
func newProcessDirectory(runner CommandRunner) ProcessDirectory {
	return signalDirectory{
		list: func(ctx context.Context) ([]Process, error) {
			res := runner.Run(ctx, listTimeout, "ps", "-axo", "pid=,comm=")
			if res.Err != nil {
				return nil, res.Err
			}
			if res.ExitCode != 0 {
				return nil, fmt.Errorf("ps exited with status %d", res.ExitCode)
			}
			return parsePS(res.Output), nil
		},
		alive: killProbe,
	}
}

// parsePS parses "pid comm" lines. comm may be a full path.
func parsePS(out string) []Process {
	var procs []Process
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		comm := strings.Join(fields[1:], " ")
		procs = append(procs, Process{PID: pid, Name: baseName(comm), Exe: comm})
	}
	return procs
}

// killProbe reports whether pid exists using signal 0.
func killProbe(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
