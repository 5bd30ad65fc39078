// Package sweeper removes selected entries from shared directories.
//
// Sweep removes only the entries a Selector picks, by keyword or by glob
// pattern, leaving everything else in the directory alone. Purge empties a
// directory but keeps the directory itself. Both honour protect patterns,
// which veto removal of matching names.
package sweeper

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/jamesainslie/reclaim/pkg/reclaim/deleter"
	"github.com/jamesainslie/reclaim/pkg/reclaim/logging"
	"github.com/jamesainslie/reclaim/pkg/reclaim/platform"
	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// Sweeper scans one directory level and removes matching entries.
type Sweeper struct {
	files   platform.Filesystem
	del     *deleter.Deleter
	protect []glob.Glob
	log     *logging.Logger
}

// New returns a Sweeper that removes entries through del. protect holds
// case-insensitive glob patterns matched against entry names.
func New(files platform.Filesystem, del *deleter.Deleter, protect []string, log *logging.Logger) (*Sweeper, error) {
	if log == nil {
		log = logging.Get("sweeper")
	}
	globs, err := compile("protect", protect)
	if err != nil {
		return nil, err
	}
	return &Sweeper{files: files, del: del, protect: globs, log: log}, nil
}

func compile(kind string, patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", kind, p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Selector picks the entries a sweep removes.
type Selector struct {
	keywords []string
	patterns []glob.Glob
}

// NewSelector returns a Selector for names that contain any keyword or match
// any glob pattern, ignoring case.
func NewSelector(keywords, patterns []string) (Selector, error) {
	globs, err := compile("sweep", patterns)
	if err != nil {
		return Selector{}, err
	}
	return Selector{keywords: keywords, patterns: globs}, nil
}

// Selects reports whether name is picked.
func (sel Selector) Selects(name string) bool {
	if Match(name, sel.keywords) {
		return true
	}
	lower := strings.ToLower(name)
	for _, g := range sel.patterns {
		if g.Match(lower) {
			return true
		}
	}
	return false
}

// Match reports whether name contains any keyword, ignoring case. Empty
// keywords never match.
func Match(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (s *Sweeper) protected(name string) bool {
	lower := strings.ToLower(name)
	for _, g := range s.protect {
		if g.Match(lower) {
			return true
		}
	}
	return false
}

// Sweep removes the direct entries of dir that sel picks.
func (s *Sweeper) Sweep(ctx context.Context, dir string, sel Selector, tally *stats.Tally) {
	s.each(ctx, dir, tally, sel.Selects)
}

// Purge removes every direct entry of dir and keeps dir itself.
func (s *Sweeper) Purge(ctx context.Context, dir string, tally *stats.Tally) {
	s.each(ctx, dir, tally, func(string) bool { return true })
}

func (s *Sweeper) each(ctx context.Context, dir string, tally *stats.Tally, selected func(string) bool) {
	ref := types.Path(dir)
	entries, err := s.files.ReadDir(dir)
	if err != nil {
		if types.IsAbsent(err) {
			s.log.Info("directory not found, skipping", "dir", dir)
			tally.Absent(ref)
			return
		}
		s.log.Error("cannot read directory", "dir", dir, "err", err)
		tally.Failed(ref, err)
		return
	}

	var targets []types.ResourceRef
	kept := 0
	for _, e := range entries {
		name := e.Name()
		if !selected(name) {
			kept++
			continue
		}
		if s.protected(name) {
			s.log.Debug("protected, keeping", "dir", dir, "entry", name)
			kept++
			continue
		}
		targets = append(targets, types.Path(filepath.Join(dir, name)))
	}

	s.log.Info("sweeping directory", "dir", dir, "selected", len(targets), "kept", kept)
	if len(targets) == 0 {
		return
	}
	s.del.DeletePaths(ctx, targets, tally)
}
