// Package terminator stops processes and services in three escalating,
// idempotent passes:
//
//  1. graceful: each matching process is asked to exit, then killed if it is
//     still alive after the graceful timeout;
//  2. force: the host's kill-by-name utility runs for every target name,
//     catching children and processes that respawned;
//  3. services: each service is stopped and then deleted.
package terminator

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/reclaim/pkg/reclaim/logging"
	"github.com/jamesainslie/reclaim/pkg/reclaim/platform"
	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// Options tunes the passes.
type Options struct {
	// GracefulTimeout is how long a process may take to honour a graceful
	// request before it is killed.
	GracefulTimeout time.Duration
	// ForceTimeout is how long to wait for a killed process to disappear.
	ForceTimeout time.Duration
	// CommandTimeout bounds each kill-by-name command.
	CommandTimeout time.Duration
	// ServiceTimeout bounds each service stop or delete.
	ServiceTimeout time.Duration
	// SettleDelay is paused after the passes when anything was terminated,
	// giving the OS time to release file handles.
	SettleDelay time.Duration
	// Workers bounds how many processes are handled at once.
	Workers int
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		GracefulTimeout: 3 * time.Second,
		ForceTimeout:    2 * time.Second,
		CommandTimeout:  10 * time.Second,
		ServiceTimeout:  5 * time.Second,
		SettleDelay:     5 * time.Second,
		Workers:         8,
	}
}

// Result summarizes a Terminate call.
type Result struct {
	// Terminated counts processes whose termination was accepted.
	Terminated int
	// Stragglers were signalled but not seen to exit.
	Stragglers []platform.Process
	// Attempts holds the per-process state trail of the graceful pass.
	Attempts []Attempt
}

// Terminator runs the three passes against a host.
type Terminator struct {
	procs     platform.ProcessDirectory
	services  platform.ServiceControl
	runner    platform.CommandRunner
	forceKill func(string) (string, []string)
	opts      Options
	log       *logging.Logger
}

// New returns a Terminator for host. Zero option fields fall back to
// DefaultOptions, except SettleDelay where zero disables the pause.
func New(host *platform.Host, opts Options, log *logging.Logger) *Terminator {
	def := DefaultOptions()
	if opts.GracefulTimeout <= 0 {
		opts.GracefulTimeout = def.GracefulTimeout
	}
	if opts.ForceTimeout <= 0 {
		opts.ForceTimeout = def.ForceTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = def.CommandTimeout
	}
	if opts.ServiceTimeout <= 0 {
		opts.ServiceTimeout = def.ServiceTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if log == nil {
		log = logging.Get("terminator")
	}
	return &Terminator{
		procs:     host.Processes,
		services:  host.Services,
		runner:    host.Runner,
		forceKill: host.ForceKill,
		opts:      opts,
		log:       log,
	}
}

// Terminate runs all three passes and records outcomes on tally.
func (t *Terminator) Terminate(ctx context.Context, processes, services []string, tally *stats.Tally) Result {
	processes = unique(processes)
	services = unique(services)

	res := t.gracefulPass(ctx, processes, tally)
	t.forcePass(ctx, processes)
	t.servicePass(ctx, services, tally)

	if res.Terminated > 0 && t.opts.SettleDelay > 0 {
		t.log.Info("waiting for handles to be released", "delay", t.opts.SettleDelay)
		select {
		case <-time.After(t.opts.SettleDelay):
		case <-ctx.Done():
		}
	}
	return res
}

func (t *Terminator) gracefulPass(ctx context.Context, names []string, tally *stats.Tally) Result {
	var res Result
	if len(names) == 0 {
		return res
	}

	listing, err := t.procs.List(ctx)
	if err != nil {
		t.log.Error("cannot list processes, skipping graceful pass", "err", err)
		for _, name := range names {
			tally.Failed(types.Process(name), err)
		}
		return res
	}

	type match struct {
		name string
		proc platform.Process
	}
	// A process whose short name and executable differ can match two
	// names; it belongs to the first one declared.
	var matches []match
	claimed := make(map[int]bool)
	for _, name := range names {
		for _, p := range listing {
			if p.Matches(name) && !claimed[p.PID] {
				claimed[p.PID] = true
				matches = append(matches, match{name: name, proc: p})
			}
		}
	}

	attempts := make([]Attempt, len(matches))
	var g errgroup.Group
	g.SetLimit(t.opts.Workers)
	for i, m := range matches {
		g.Go(func() error {
			attempts[i] = t.terminate(ctx, m.proc)
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool, len(names))
	for i, a := range attempts {
		name := matches[i].name
		ref := types.Process(name)
		switch {
		case a.Counted():
			seen[name] = true
			res.Terminated++
			tally.Deleted(ref, stats.Counts{ProcessesTerminated: 1})
			if a.State == StateUnconfirmed {
				res.Stragglers = append(res.Stragglers, a.Process)
				t.log.Warn("process did not exit after kill", "name", name, "pid", a.Process.PID)
			} else {
				t.log.Success("terminated process", "name", name, "pid", a.Process.PID, "forced", a.Forced())
			}
		case a.State == StateGone:
			t.log.Debug("process already exited", "name", name, "pid", a.Process.PID)
		default:
			seen[name] = true
			t.log.Error("cannot terminate process", "name", name, "pid", a.Process.PID, "err", a.Err)
			tally.Failed(ref, a.Err)
		}
	}
	res.Attempts = attempts

	for _, name := range names {
		if !seen[name] {
			t.log.Info("process not running", "name", name)
			tally.Absent(types.Process(name))
		}
	}
	return res
}

// forcePass runs the kill-by-name utility for every name. Its outcome is
// informational only: a non-zero exit usually means nothing matched.
func (t *Terminator) forcePass(ctx context.Context, names []string) {
	if t.forceKill == nil {
		return
	}
	for _, name := range names {
		cmd, args := t.forceKill(name)
		r := t.runner.Run(ctx, t.opts.CommandTimeout, cmd, args...)
		switch {
		case r.Err != nil:
			t.log.Warn("force kill did not complete", "name", name, "err", r.Err)
		case r.ExitCode == 0:
			t.log.Info("force kill matched remaining processes", "name", name)
		default:
			t.log.Debug("force kill found nothing", "name", name, "exit", r.ExitCode)
		}
	}
}

func (t *Terminator) servicePass(ctx context.Context, names []string, tally *stats.Tally) {
	for _, name := range names {
		ref := types.Service(name)

		err := t.serviceOp(ctx, t.services.Stop, name)
		switch {
		case err == nil:
			t.log.Info("stopped service", "name", name)
		case errors.Is(err, types.ErrUnsupported):
			t.log.Warn("service control not available on this platform, skipping", "name", name)
			tally.Absent(ref)
			continue
		case types.IsAbsent(err):
			t.log.Info("service not installed", "name", name)
			tally.Absent(ref)
			continue
		default:
			t.log.Warn("cannot stop service, deleting anyway", "name", name, "err", err)
		}

		err = t.serviceOp(ctx, t.services.Delete, name)
		switch {
		case err == nil:
			t.log.Deleted("deleted service", "name", name)
			tally.Deleted(ref, stats.Counts{})
		case types.IsAbsent(err):
			t.log.Info("service already removed", "name", name)
			tally.Absent(ref)
		case types.Classify(err) == types.ClassPermissionDenied:
			t.log.Warn("not permitted to delete service", "name", name, "err", err)
			tally.Tolerated(ref, err)
		default:
			t.log.Error("cannot delete service", "name", name, "err", err)
			tally.Failed(ref, err)
		}
	}
}

func (t *Terminator) serviceOp(ctx context.Context, op func(context.Context, string) error, name string) error {
	ctx, cancel := context.WithTimeout(ctx, t.opts.ServiceTimeout)
	defer cancel()
	return op(ctx, name)
}

// unique drops blanks and case-insensitive duplicates, keeping order.
func unique(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
