// Package platform defines the capabilities the engine needs from the host
// and provides their implementations for Linux, other Unix systems and
// Windows. The engine only ever talks to these interfaces; tests substitute
// the in-memory versions from platform/fake.
package platform

import (
	"context"
	"io/fs"
	"strings"
	"time"
)

// Process is one entry of a process listing.
type Process struct {
	PID  int
	Name string
	// Exe is the executable path when the platform exposes it.
	Exe string
}

// Matches reports whether the process runs the image called name. The
// comparison is case-insensitive and considers both the short name and the
// base of the executable path.
func (p Process) Matches(name string) bool {
	if strings.EqualFold(p.Name, name) {
		return true
	}
	if p.Exe == "" {
		return false
	}
	return strings.EqualFold(baseName(p.Exe), name)
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ProcessDirectory enumerates and signals processes.
type ProcessDirectory interface {
	// List returns a snapshot of running processes.
	List(ctx context.Context) ([]Process, error)
	// Terminate asks pid to exit. graceful selects a request the process may
	// handle; otherwise the process is killed. A process that no longer
	// exists yields types.ErrNotFound.
	Terminate(ctx context.Context, pid int, graceful bool) error
	// Wait blocks until pid exits or timeout elapses and reports whether it
	// exited.
	Wait(ctx context.Context, pid int, timeout time.Duration) (bool, error)
}

// ServiceControl stops and removes installed services. An unknown service
// yields types.ErrNotFound.
type ServiceControl interface {
	Stop(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
}

// Filesystem is the subset of file operations the deleter and sweeper use.
type Filesystem interface {
	// Lstat describes path without following a final symlink.
	Lstat(path string) (fs.FileInfo, error)
	// ReadDir lists the direct entries of a directory.
	ReadDir(path string) ([]fs.DirEntry, error)
	// SizeOf measures path. partial is true when some entries were unreadable.
	SizeOf(ctx context.Context, path string) (bytes uint64, partial bool)
	// RemoveAll deletes path and everything below it.
	RemoveAll(path string) error
}

// KeyStore is a hierarchical key/value store addressed by hive and a
// backslash-separated subpath.
type KeyStore interface {
	// Children lists the names of the direct subkeys.
	Children(hive, key string) ([]string, error)
	// DeleteKey removes a key that has no subkeys.
	DeleteKey(hive, key string) error
	// StringValue reads a string value stored on a key.
	StringValue(hive, key, name string) (string, error)
}

// CommandResult captures a finished external command.
type CommandResult struct {
	ExitCode int
	Output   string
	// Err is set only when the command could not be started or timed out.
	// A non-zero exit is reported through ExitCode.
	Err error
}

// OK reports whether the command ran and exited with status zero.
func (r CommandResult) OK() bool { return r.Err == nil && r.ExitCode == 0 }

// CommandRunner runs external utilities with a bounded timeout.
type CommandRunner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) CommandResult
}

// Host bundles the capabilities for one platform.
type Host struct {
	Processes ProcessDirectory
	Services  ServiceControl
	Files     Filesystem
	Keys      KeyStore
	Runner    CommandRunner
	// ForceKill returns the command that force-kills every process with the
	// given image name, including its children.
	ForceKill func(name string) (string, []string)
}
