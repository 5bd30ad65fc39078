// Package stats accumulates the counters produced by a reclamation run.
//
// Stages never touch the run totals directly. Each stage fills its own Tally,
// which is safe for concurrent use by the stage's workers, and the pipeline
// folds the finished tally into the Run. This keeps the run totals owned by a
// single goroutine and makes every stage's contribution inspectable on its own.
package stats

import (
	"sync"
	"time"

	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// Counts holds the aggregate counters of a stage or a whole run.
type Counts struct {
	ProcessesTerminated uint64 `json:"processes_terminated" yaml:"processes_terminated"`
	FilesDeleted        uint64 `json:"files_deleted" yaml:"files_deleted"`
	DirectoriesDeleted  uint64 `json:"directories_deleted" yaml:"directories_deleted"`
	RegistryKeysDeleted uint64 `json:"registry_keys_deleted" yaml:"registry_keys_deleted"`
	Errors              uint64 `json:"errors" yaml:"errors"`
	BytesFreed          uint64 `json:"bytes_freed" yaml:"bytes_freed"`
}

// Add adds every counter of o to c.
func (c *Counts) Add(o Counts) {
	c.ProcessesTerminated += o.ProcessesTerminated
	c.FilesDeleted += o.FilesDeleted
	c.DirectoriesDeleted += o.DirectoriesDeleted
	c.RegistryKeysDeleted += o.RegistryKeysDeleted
	c.Errors += o.Errors
	c.BytesFreed += o.BytesFreed
}

// Record is the per-target entry written for every processed reference.
type Record struct {
	Stage   string            `json:"stage" yaml:"stage"`
	Ref     types.ResourceRef `json:"ref" yaml:"ref"`
	Outcome types.Outcome     `json:"outcome" yaml:"outcome"`
	Bytes   uint64            `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	Class   string            `json:"class,omitempty" yaml:"class,omitempty"`
	Error   string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// Tally collects the counters and records of one stage.
// All methods are safe for concurrent use.
type Tally struct {
	mu      sync.Mutex
	stage   string
	counts  Counts
	records []Record
}

// NewTally returns an empty tally for the named stage.
func NewTally(stage string) *Tally {
	return &Tally{stage: stage}
}

// Stage returns the name the tally was created with.
func (t *Tally) Stage() string { return t.stage }

// Deleted records a successful removal or termination of ref and adds delta
// to the counters. delta.Errors is ignored.
func (t *Tally) Deleted(ref types.ResourceRef, delta Counts) {
	delta.Errors = 0
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts.Add(delta)
	t.records = append(t.records, Record{
		Stage:   t.stage,
		Ref:     ref,
		Outcome: types.OutcomeDeleted,
		Bytes:   delta.BytesFreed,
	})
}

// Absent records that ref did not exist. No counter changes.
func (t *Tally) Absent(ref types.ResourceRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, Record{
		Stage:   t.stage,
		Ref:     ref,
		Outcome: types.OutcomeAbsent,
	})
}

// Failed records that ref could not be processed and increments Errors.
func (t *Tally) Failed(ref types.ResourceRef, err error) {
	rec := Record{
		Stage:   t.stage,
		Ref:     ref,
		Outcome: types.OutcomeFailed,
		Class:   types.Classify(err).String(),
	}
	if err != nil {
		rec.Error = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts.Errors++
	t.records = append(t.records, rec)
}

// Tolerated records a failure that the caller chose not to count, such as
// a service the current user may not stop. Errors is unchanged.
func (t *Tally) Tolerated(ref types.ResourceRef, err error) {
	rec := Record{
		Stage:   t.stage,
		Ref:     ref,
		Outcome: types.OutcomeFailed,
		Class:   types.Classify(err).String(),
	}
	if err != nil {
		rec.Error = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
}

// Error increments Errors for a failure that is not tied to one target,
// such as a stage that could not start.
func (t *Tally) Error() {
	t.mu.Lock()
	t.counts.Errors++
	t.mu.Unlock()
}

// Counts returns a copy of the current counters.
func (t *Tally) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts
}

// Records returns a copy of the records in the order they were written.
func (t *Tally) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Snapshot is the read-only view of a run's statistics.
type Snapshot struct {
	Counts    `yaml:",inline"`
	StartTime time.Time     `json:"start_time" yaml:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Clean reports whether the run completed with zero errors.
func (s Snapshot) Clean() bool { return s.Errors == 0 }

// Run is the statistics accumulator for one pipeline run. It is created when
// the pipeline starts and becomes read-only once finalized.
type Run struct {
	mu        sync.Mutex
	now       func() time.Time
	start     time.Time
	end       time.Time
	counts    Counts
	records   []Record
	finalized bool
}

// NewRun starts a run at the current time. A nil clock uses time.Now.
func NewRun(clock func() time.Time) *Run {
	if clock == nil {
		clock = time.Now
	}
	return &Run{now: clock, start: clock()}
}

// Fold adds a finished stage tally to the run. Folding after Finalize is a
// no-op and reports false.
func (r *Run) Fold(t *Tally) bool {
	counts := t.Counts()
	records := t.Records()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return false
	}
	r.counts.Add(counts)
	r.records = append(r.records, records...)
	return true
}

// Finalize stamps the end time and returns the final snapshot. Calling it
// again returns the same snapshot.
func (r *Run) Finalize() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized {
		r.end = r.now()
		r.finalized = true
	}
	return r.snapshotLocked()
}

// Snapshot returns the current view. Before Finalize, EndTime is zero and
// Duration is the time elapsed so far.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Run) snapshotLocked() Snapshot {
	s := Snapshot{Counts: r.counts, StartTime: r.start, EndTime: r.end}
	if r.finalized {
		s.Duration = r.end.Sub(r.start)
	} else {
		s.Duration = r.now().Sub(r.start)
	}
	return s
}

// Records returns every record folded into the run, in stage order.
func (r *Run) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
