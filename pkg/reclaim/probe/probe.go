// Package probe measures the on-disk footprint of files and directory trees.
package probe

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
)

// Result is the outcome of a size probe.
type Result struct {
	// Bytes is the sum of the sizes of every reachable regular file.
	Bytes uint64
	// Files and Dirs count what was visited, the root included.
	Files uint64
	Dirs  uint64
	// Skipped counts entries that could not be read. A non-zero value means
	// Bytes is a lower bound.
	Skipped uint64
}

// Partial reports whether some entries were skipped.
func (r Result) Partial() bool { return r.Skipped > 0 }

// Size returns the footprint of path. A regular file yields its own size and
// a directory the recursive sum of its regular files. Symlinks are not
// followed. A missing or unreadable root yields a zero result with Skipped
// set; Size never fails the caller.
func Size(ctx context.Context, path string) Result {
	info, err := os.Lstat(path)
	if err != nil {
		return Result{Skipped: 1}
	}
	if !info.IsDir() {
		if info.Mode().IsRegular() {
			return Result{Bytes: uint64(info.Size()), Files: 1}
		}
		return Result{}
	}

	var bytes, files, dirs, skipped atomic.Uint64

	conf := fastwalk.Config{Follow: false}
	walkErr := fastwalk.Walk(&conf, path, func(p string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fastwalk.ErrSkipFiles
		}
		if err != nil {
			skipped.Add(1)
			return nil
		}
		if d.IsDir() {
			dirs.Add(1)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			skipped.Add(1)
			return nil
		}
		files.Add(1)
		bytes.Add(uint64(fi.Size()))
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fastwalk.ErrSkipFiles) {
		skipped.Add(1)
	}

	return Result{
		Bytes:   bytes.Load(),
		Files:   files.Load(),
		Dirs:    dirs.Load(),
		Skipped: skipped.Load(),
	}
}
