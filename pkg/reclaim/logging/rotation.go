package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	// MaxSize is the size in bytes that triggers rotation. Zero uses 10MB.
	MaxSize int64

	// MaxAge is the retention in days for rotated files. Zero keeps them.
	MaxAge int

	// MaxBackups caps the number of rotated files. Zero keeps them all.
	MaxBackups int

	// Daily also rotates on the first write after midnight.
	Daily bool
}

// DefaultRotationConfig returns the rotation used when nothing is configured.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 * 1024 * 1024,
		MaxAge:     30,
		MaxBackups: 5,
		Daily:      true,
	}
}

// RotatingWriter is an io.WriteCloser that rotates its file by size and day.
// Writes hold an exclusive OS file lock so that concurrent reclaim processes
// sharing one log do not interleave lines.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	cfg      RotationConfig
	file     *os.File
	size     int64
	openedAt time.Time
	now      func() time.Time
}

// NewRotatingWriter opens path for appending, creating parent directories.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultRotationConfig().MaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, cfg: cfg, now: time.Now}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()
	return w, nil
}

// Write appends p, rotating first when p would cross the size limit or the
// day has changed.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.due(int64(len(p))) {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	if err := lockFile(w.file); err != nil {
		return 0, fmt.Errorf("acquiring file lock: %w", err)
	}
	defer unlockFile(w.file)

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing to log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the file. Further writes fail with os.ErrClosed.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil
	if syncErr != nil {
		return fmt.Errorf("syncing log file: %w", syncErr)
	}
	return closeErr
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	w.openedAt = info.ModTime()
	return nil
}

func (w *RotatingWriter) due(incoming int64) bool {
	if w.size > 0 && w.size+incoming > w.cfg.MaxSize {
		return true
	}
	if !w.cfg.Daily {
		return false
	}
	y1, m1, d1 := w.now().Date()
	y2, m2, d2 := w.openedAt.Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// rotatedName returns base.<stamp>.ext for the current log path.
func (w *RotatingWriter) rotatedName() string {
	ext := filepath.Ext(w.path)
	stem := strings.TrimSuffix(w.path, ext)
	return fmt.Sprintf("%s.%s%s", stem, w.now().Format("2006-01-02-150405.000"), ext)
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing current file: %w", err)
	}
	w.file = nil

	if err := os.Rename(w.path, w.rotatedName()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("renaming log file: %w", err)
	}
	if err := w.open(); err != nil {
		return err
	}
	w.openedAt = w.now()
	w.prune()
	return nil
}

// prune removes rotated files beyond MaxBackups or older than MaxAge.
// Failures are ignored; pruning is retried on the next rotation.
func (w *RotatingWriter) prune() {
	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	type rotated struct {
		path string
		mod  time.Time
	}
	var files []rotated
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == base || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, rotated{path: filepath.Join(dir, name), mod: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })

	cutoff := w.now().Add(-time.Duration(w.cfg.MaxAge) * 24 * time.Hour)
	for i, f := range files {
		tooMany := w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups
		tooOld := w.cfg.MaxAge > 0 && f.mod.Before(cutoff)
		if tooMany || tooOld {
			_ = os.Remove(f.path)
		}
	}
}
