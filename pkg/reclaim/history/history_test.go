package history_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/reclaim/pkg/reclaim/history"
	"github.com/jamesainslie/reclaim/pkg/reclaim/pipeline"
	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func run(id string, start time.Time) *history.Run {
	return &history.Run{
		ID:   id,
		Mode: "conservative",
		Stats: stats.Snapshot{
			Counts:    stats.Counts{FilesDeleted: 2, BytesFreed: 4096},
			StartTime: start,
			EndTime:   start.Add(time.Second),
			Duration:  time.Second,
		},
		Stages: []pipeline.StageResult{{Name: "delete", Kind: pipeline.KindDelete}},
		Records: []stats.Record{
			{Stage: "delete", Ref: types.Path("/tmp/a"), Outcome: types.OutcomeDeleted, Bytes: 4096},
		},
	}
}

func TestStore_PutGet(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put(run("aaaa-1111", base)))

	got, err := s.Get("aaaa-1111")
	require.NoError(t, err)
	assert.Equal(t, "conservative", got.Mode)
	assert.Equal(t, uint64(4096), got.Stats.BytesFreed)
	assert.True(t, got.Stats.StartTime.Equal(base))
	require.Len(t, got.Records, 1)
	assert.Equal(t, types.OutcomeDeleted, got.Records[0].Outcome)
	assert.Equal(t, types.KindPath, got.Records[0].Ref.Kind)
}

func TestStore_GetByPrefix(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put(run("abc-1", base)))
	require.NoError(t, s.Put(run("abd-2", base.Add(time.Minute))))

	got, err := s.Get("abd")
	require.NoError(t, err)
	assert.Equal(t, "abd-2", got.ID)

	_, err = s.Get("ab")
	assert.ErrorIs(t, err, history.ErrAmbiguous)

	_, err = s.Get("zzz")
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put(run("second", base.Add(time.Hour))))
	require.NoError(t, s.Put(run("first", base)))
	require.NoError(t, s.Put(run("third", base.Add(2*time.Hour))))

	runs, err := s.List(0)
	require.NoError(t, err)
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"third", "second", "first"}, ids)

	runs, err = s.List(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStore_Prune(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put(run("old", base.Add(-48*time.Hour))))
	require.NoError(t, s.Put(run("edge", base)))
	require.NoError(t, s.Put(run("new", base.Add(time.Hour))))

	n, err := s.Prune(base)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get("old")
	assert.True(t, errors.Is(err, history.ErrNotFound))

	runs, err := s.List(0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	n, err = s.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	runs, err = s.List(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	s, err := history.Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(run("kept", base)))
	require.NoError(t, s.Close())

	s, err = history.Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get("kept")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.ID)
}

func TestStore_PutRequiresID(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.Put(&history.Run{}))
}
