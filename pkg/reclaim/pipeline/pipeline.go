// Package pipeline runs ordered reclamation stages against one shared
// statistics accumulator.
//
// The runner drives stages strictly in order on the calling goroutine. A
// stage that returns an error or panics is logged and counted, and the run
// moves on to the next stage; only an unusable plan stops a run from
// starting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jamesainslie/reclaim/pkg/reclaim/logging"
	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

var (
	// ErrEmptyPlan is returned when a plan has no stages.
	ErrEmptyPlan = fmt.Errorf("%w: plan has no stages", types.ErrDriver)
	// ErrInvalidPlan is returned when a plan cannot be executed as given.
	ErrInvalidPlan = fmt.Errorf("%w: invalid plan", types.ErrDriver)
)

// Action performs a stage's work, recording outcomes on tally. A returned
// error is counted once; per-target failures belong on the tally.
type Action func(ctx context.Context, tally *stats.Tally) error

// Stage is a named step of a plan.
type Stage struct {
	Name   string
	Kind   Kind
	Action Action
	// Targets describes what the stage acts on, for plan listings.
	Targets []string
}

// Plan is an ordered list of stages.
type Plan struct {
	Mode   Mode
	Stages []Stage
}

// Validate checks that the plan can be run.
func (p Plan) Validate() error {
	if len(p.Stages) == 0 {
		return ErrEmptyPlan
	}
	seen := make(map[string]bool, len(p.Stages))
	for i, s := range p.Stages {
		if s.Name == "" {
			return fmt.Errorf("%w: stage %d has no name", ErrInvalidPlan, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate stage %q", ErrInvalidPlan, s.Name)
		}
		if s.Action == nil {
			return fmt.Errorf("%w: stage %q has no action", ErrInvalidPlan, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// State is the runner's position in a plan.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// StageResult summarizes one executed stage.
type StageResult struct {
	Name     string        `json:"name" yaml:"name"`
	Kind     Kind          `json:"kind,omitempty" yaml:"kind,omitempty"`
	Counts   stats.Counts  `json:"counts" yaml:"counts"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Panicked bool          `json:"panicked,omitempty" yaml:"panicked,omitempty"`
}

// Result is everything a run produced.
type Result struct {
	Mode     Mode           `json:"mode" yaml:"mode"`
	Snapshot stats.Snapshot `json:"stats" yaml:"stats"`
	Stages   []StageResult  `json:"stages" yaml:"stages"`
	Records  []stats.Record `json:"records" yaml:"records"`
}

// Runner executes plans. A Runner runs one plan at a time.
type Runner struct {
	log   *logging.Logger
	clock func() time.Time

	mu    sync.Mutex
	state State
	index int
}

// NewRunner returns a runner. A nil logger uses the shared "pipeline" logger.
func NewRunner(log *logging.Logger) *Runner {
	if log == nil {
		log = logging.Get("pipeline")
	}
	return &Runner{log: log, clock: time.Now}
}

// State returns the current state and, while running, the stage index.
func (r *Runner) State() (State, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.index
}

func (r *Runner) set(s State, i int) {
	r.mu.Lock()
	r.state, r.index = s, i
	r.mu.Unlock()
}

// Run executes every stage in order and returns the finalized statistics.
// The error is non-nil only when the plan could not be started.
func (r *Runner) Run(ctx context.Context, plan Plan) (Result, error) {
	if err := plan.Validate(); err != nil {
		r.log.Error("cannot start run", "err", err)
		return Result{Mode: plan.Mode}, err
	}

	run := stats.NewRun(r.clock)
	res := Result{Mode: plan.Mode}
	r.log.Info("run started", "mode", plan.Mode, "stages", len(plan.Stages))

	for i, stage := range plan.Stages {
		r.set(StateRunning, i)
		tally := stats.NewTally(stage.Name)

		r.log.Info("stage started", "stage", stage.Name, "position", fmt.Sprintf("%d/%d", i+1, len(plan.Stages)))
		start := r.clock()
		err, panicked := r.execute(ctx, stage, tally)
		sr := StageResult{Name: stage.Name, Kind: stage.Kind, Duration: r.clock().Sub(start), Panicked: panicked}
		if err != nil {
			tally.Error()
			sr.Error = err.Error()
			r.log.Error("stage failed, continuing", "stage", stage.Name, "err", err)
		}

		run.Fold(tally)
		sr.Counts = tally.Counts()
		res.Stages = append(res.Stages, sr)
		r.log.Success("stage finished", "stage", stage.Name, "errors", sr.Counts.Errors, "duration", sr.Duration)
	}

	res.Snapshot = run.Finalize()
	res.Records = run.Records()
	r.set(StateCompleted, len(plan.Stages))

	if res.Snapshot.Clean() {
		r.log.Success("run completed", "duration", res.Snapshot.Duration)
	} else {
		r.log.Warn("run completed with errors", "errors", res.Snapshot.Errors, "duration", res.Snapshot.Duration)
	}
	return res, nil
}

// execute runs one stage action and converts a panic into an error.
func (r *Runner) execute(ctx context.Context, stage Stage, tally *stats.Tally) (err error, panicked bool) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Debug("stage panic", "stage", stage.Name, "stack", string(debug.Stack()))
			err = fmt.Errorf("stage %s panicked: %v", stage.Name, v)
			panicked = true
		}
	}()
	if err := stage.Action(ctx, tally); err != nil {
		return err, false
	}
	return nil, false
}

// IsDriverFailure reports whether err prevented a run or a set from being
// processed.
func IsDriverFailure(err error) bool {
	return errors.Is(err, types.ErrDriver)
}
