// Package deleter removes filesystem trees and registry key subtrees.
//
// Every target is handled in isolation: a failure is logged, recorded on the
// stage tally and counted, and processing moves on to the next target.
// Nothing is returned to the caller except through the tally.
package deleter

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/reclaim/pkg/reclaim/logging"
	"github.com/jamesainslie/reclaim/pkg/reclaim/platform"
	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// Options tunes a Deleter.
type Options struct {
	// RetryDelay is the pause before the single retry of a busy removal.
	RetryDelay time.Duration
	// Workers bounds how many paths are removed at once.
	Workers int
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{RetryDelay: 500 * time.Millisecond, Workers: 4}
}

// Deleter removes paths and key subtrees.
type Deleter struct {
	files platform.Filesystem
	keys  platform.KeyStore
	opts  Options
	log   *logging.Logger
}

// New returns a Deleter. A nil logger uses the shared "deleter" logger.
func New(files platform.Filesystem, keys platform.KeyStore, opts Options, log *logging.Logger) *Deleter {
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if log == nil {
		log = logging.Get("deleter")
	}
	return &Deleter{files: files, keys: keys, opts: opts, log: log}
}

// DeletePaths removes every path ref, recording one outcome per ref.
// Independent paths are removed concurrently. When one path lies inside
// another, the batch runs sequentially in declaration order so nothing is
// measured twice.
func (d *Deleter) DeletePaths(ctx context.Context, refs []types.ResourceRef, tally *stats.Tally) {
	limit := d.opts.Workers
	if nested(refs) {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, ref := range refs {
		g.Go(func() error {
			d.DeletePath(ctx, ref, tally)
			return nil
		})
	}
	_ = g.Wait()
}

// DeletePath removes one file or directory tree.
func (d *Deleter) DeletePath(ctx context.Context, ref types.ResourceRef, tally *stats.Tally) {
	path := ref.Name
	info, err := d.files.Lstat(path)
	if err != nil {
		if types.IsAbsent(err) {
			d.log.Info("not found, skipping", "path", path)
			tally.Absent(ref)
			return
		}
		d.log.Error("cannot inspect path", "path", path, "err", err)
		tally.Failed(ref, err)
		return
	}

	size, partial := d.files.SizeOf(ctx, path)

	if err := d.remove(ctx, path); err != nil {
		d.log.Error("failed to remove", "path", path, "class", types.Classify(err), "err", err)
		tally.Failed(ref, err)
		return
	}

	delta := stats.Counts{BytesFreed: size}
	kind := "file"
	if info.IsDir() {
		delta.DirectoriesDeleted = 1
		kind = "directory"
	} else {
		delta.FilesDeleted = 1
	}
	d.log.Deleted("removed "+kind, "path", path, "size", types.FormatSize(size), "partial", partial)
	tally.Deleted(ref, delta)
}

// remove deletes path, retrying once after RetryDelay when the failure is a
// transient lock or busy condition.
func (d *Deleter) remove(ctx context.Context, path string) error {
	return Remove(ctx, d.files, path, d.opts.RetryDelay)
}

// Remove deletes path through files and retries once on a busy failure.
// Permission and other failures are returned without retrying.
func Remove(ctx context.Context, files platform.Filesystem, path string, retryDelay time.Duration) error {
	op := func() error {
		err := files.RemoveAll(path)
		if err == nil || types.Classify(err).Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), 1), ctx)
	return backoff.Retry(op, policy)
}

// nested reports whether any path in refs is inside another.
func nested(refs []types.ResourceRef) bool {
	for i, a := range refs {
		for j, b := range refs {
			if i != j && within(a.Name, b.Name) {
				return true
			}
		}
	}
	return false
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// NodeOutcome is the result for one key and, recursively, its subkeys.
type NodeOutcome struct {
	Key      types.ResourceRef
	Outcome  types.Outcome
	Err      error
	Degraded bool
	Children []NodeOutcome
}

// Failures returns every failed node in the subtree, children first.
func (n NodeOutcome) Failures() []NodeOutcome {
	var out []NodeOutcome
	for _, c := range n.Children {
		out = append(out, c.Failures()...)
	}
	if n.Outcome == types.OutcomeFailed {
		out = append(out, n)
	}
	return out
}

// DeleteKeys removes every registry ref's subtree. A removed subtree counts
// as one deleted key regardless of how many subkeys it held.
func (d *Deleter) DeleteKeys(ctx context.Context, refs []types.ResourceRef, tally *stats.Tally) {
	for _, ref := range refs {
		if ctx.Err() != nil {
			tally.Failed(ref, ctx.Err())
			continue
		}

		node := d.DeleteTree(ref)
		switch node.Outcome {
		case types.OutcomeDeleted:
			d.log.Deleted("removed registry key", "key", ref.String(), "degraded", node.Degraded)
			tally.Deleted(ref, stats.Counts{RegistryKeysDeleted: 1})
		case types.OutcomeAbsent:
			if errors.Is(node.Err, types.ErrUnsupported) {
				d.log.Warn("registry not available on this platform, skipping", "key", ref.String())
			} else {
				d.log.Info("not found, skipping", "key", ref.String())
			}
			tally.Absent(ref)
		default:
			for _, f := range node.Failures() {
				d.log.Error("failed to remove registry key", "key", f.Key.String(), "err", f.Err)
			}
			tally.Failed(ref, node.Err)
		}
	}
}

// DeleteTree deletes ref post-order: each subkey subtree first, then ref
// itself. When the subkeys cannot be listed the key is deleted directly and
// the node is marked degraded.
func (d *Deleter) DeleteTree(ref types.ResourceRef) NodeOutcome {
	node := NodeOutcome{Key: ref}
	hive := string(ref.Hive)

	names, err := d.keys.Children(hive, ref.Name)
	switch {
	case err == nil:
		for _, name := range names {
			node.Children = append(node.Children, d.DeleteTree(ref.Child(name)))
		}
	case types.IsAbsent(err), errors.Is(err, types.ErrUnsupported):
		node.Outcome = types.OutcomeAbsent
		node.Err = err
		return node
	default:
		d.log.Warn("cannot list subkeys, deleting key directly", "key", ref.String(), "err", err)
		node.Degraded = true
	}

	err = d.keys.DeleteKey(hive, ref.Name)
	switch {
	case err == nil:
		node.Outcome = types.OutcomeDeleted
	case types.IsAbsent(err) && node.anyChildDeleted():
		// Removed concurrently after its subkeys were cleared.
		node.Outcome = types.OutcomeDeleted
	case types.IsAbsent(err):
		node.Outcome = types.OutcomeAbsent
		node.Err = err
	default:
		node.Outcome = types.OutcomeFailed
		node.Err = err
	}
	return node
}

func (n NodeOutcome) anyChildDeleted() bool {
	for _, c := range n.Children {
		if c.Outcome == types.OutcomeDeleted {
			return true
		}
	}
	return false
}
