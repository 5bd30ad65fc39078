package terminator

import (
	"context"
	"time"

	"github.com/jamesainslie/reclaim/pkg/reclaim/platform"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// State is a step in the termination of one process.
type State int

const (
	StateRequested State = iota + 1
	StateWaitingGraceful
	StateForced
	StateConfirmed
	StateUnconfirmed
	// StateGone means the process exited before the first request.
	StateGone
	// StateRefused means every request was rejected.
	StateRefused
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateWaitingGraceful:
		return "waiting-graceful"
	case StateForced:
		return "forced"
	case StateConfirmed:
		return "confirmed"
	case StateUnconfirmed:
		return "unconfirmed"
	case StateGone:
		return "gone"
	case StateRefused:
		return "refused"
	default:
		return "unknown"
	}
}

// Attempt is the record of terminating one process.
type Attempt struct {
	Process platform.Process
	State   State
	Trail   []State
	// Accepted is true once any request was delivered without error.
	Accepted bool
	Err      error
}

func (a *Attempt) enter(s State) {
	a.State = s
	a.Trail = append(a.Trail, s)
}

// Counted reports whether the process counts as terminated.
func (a Attempt) Counted() bool {
	switch a.State {
	case StateConfirmed:
		return true
	case StateUnconfirmed:
		return a.Accepted
	default:
		return false
	}
}

// Forced reports whether the attempt escalated past the graceful request.
func (a Attempt) Forced() bool {
	for _, s := range a.Trail {
		if s == StateForced {
			return true
		}
	}
	return false
}

type strategy struct {
	graceful bool
	wait     time.Duration
}

// terminate drives one process through graceful then forced termination,
// each with its own slice of the wait budget.
func (t *Terminator) terminate(ctx context.Context, p platform.Process) Attempt {
	steps := []strategy{
		{graceful: true, wait: t.opts.GracefulTimeout},
		{graceful: false, wait: t.opts.ForceTimeout},
	}

	a := Attempt{Process: p}
	a.enter(StateRequested)
	refused := 0

	for i, step := range steps {
		if i > 0 {
			a.enter(StateForced)
		}

		err := t.procs.Terminate(ctx, p.PID, step.graceful)
		switch {
		case err == nil:
			a.Accepted = true
		case types.IsAbsent(err) && i == 0:
			a.enter(StateGone)
			return a
		case types.IsAbsent(err):
			// Exited between the graceful wait and the kill.
			a.enter(StateConfirmed)
			return a
		default:
			if types.Classify(err) == types.ClassPermissionDenied {
				refused++
			}
			a.Err = err
			continue
		}

		if step.graceful {
			a.enter(StateWaitingGraceful)
		}
		exited, err := t.procs.Wait(ctx, p.PID, step.wait)
		if err != nil {
			a.Err = err
		}
		if exited {
			a.enter(StateConfirmed)
			return a
		}
	}

	if refused == len(steps) {
		a.enter(StateRefused)
		return a
	}
	a.enter(StateUnconfirmed)
	return a
}
