package stats

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestTally_OutcomesAndCounters(t *testing.T) {
	tally := NewTally("delete")

	tally.Deleted(types.Path("/a"), Counts{DirectoriesDeleted: 1, BytesFreed: 100, Errors: 7})
	tally.Absent(types.Path("/missing"))
	tally.Failed(types.Path("/locked"), fmt.Errorf("remove: %w", types.ErrStructural))

	c := tally.Counts()
	assert.Equal(t, uint64(1), c.DirectoriesDeleted)
	assert.Equal(t, uint64(100), c.BytesFreed)
	assert.Equal(t, uint64(1), c.Errors, "delta errors are ignored, only Failed counts")

	recs := tally.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, types.OutcomeDeleted, recs[0].Outcome)
	assert.Equal(t, uint64(100), recs[0].Bytes)
	assert.Equal(t, types.OutcomeAbsent, recs[1].Outcome)
	assert.Equal(t, types.OutcomeFailed, recs[2].Outcome)
	assert.Equal(t, "structural", recs[2].Class)
	assert.Equal(t, "delete", recs[2].Stage)
}

func TestTally_ConcurrentUpdatesAreNotLost(t *testing.T) {
	tally := NewTally("parallel")

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := types.Path(fmt.Sprintf("/t/%d", i))
			if i%2 == 0 {
				tally.Deleted(ref, Counts{FilesDeleted: 1, BytesFreed: 10})
			} else {
				tally.Failed(ref, errors.New("denied"))
			}
		}(i)
	}
	wg.Wait()

	c := tally.Counts()
	assert.Equal(t, uint64(32), c.FilesDeleted)
	assert.Equal(t, uint64(320), c.BytesFreed)
	assert.Equal(t, uint64(32), c.Errors)
	assert.Len(t, tally.Records(), 64)
}

func TestRun_FoldAndFinalize(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	run := NewRun(clock.Now)

	terminate := NewTally("terminate")
	terminate.Deleted(types.Process("x.exe"), Counts{ProcessesTerminated: 1})
	require.True(t, run.Fold(terminate))

	clock.Advance(2 * time.Second)
	assert.Equal(t, 2*time.Second, run.Snapshot().Duration)
	assert.True(t, run.Snapshot().EndTime.IsZero())

	del := NewTally("delete")
	del.Deleted(types.Path("/a"), Counts{FilesDeleted: 1, BytesFreed: 100})
	del.Deleted(types.Path("/b"), Counts{FilesDeleted: 1, BytesFreed: 250})
	del.Error()
	run.Fold(del)

	clock.Advance(time.Second)
	snap := run.Finalize()
	assert.Equal(t, uint64(1), snap.ProcessesTerminated)
	assert.Equal(t, uint64(2), snap.FilesDeleted)
	assert.Equal(t, uint64(350), snap.BytesFreed)
	assert.Equal(t, uint64(1), snap.Errors)
	assert.False(t, snap.Clean())
	assert.Equal(t, 3*time.Second, snap.Duration)

	// Read-only after finalization.
	late := NewTally("late")
	late.Error()
	assert.False(t, run.Fold(late))
	clock.Advance(time.Hour)
	assert.Equal(t, snap, run.Finalize())
	assert.Len(t, run.Records(), 3)
}

func TestTally_ToleratedDoesNotCount(t *testing.T) {
	tally := NewTally("terminate")
	tally.Tolerated(types.Service("agent"), errors.New("access denied"))

	assert.Zero(t, tally.Counts().Errors)
	recs := tally.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, types.OutcomeFailed, recs[0].Outcome)
	assert.Equal(t, "access denied", recs[0].Error)
}
