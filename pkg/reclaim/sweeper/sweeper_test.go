package sweeper

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/reclaim/pkg/reclaim/deleter"
	"github.com/jamesainslie/reclaim/pkg/reclaim/logging"
	"github.com/jamesainslie/reclaim/pkg/reclaim/platform"
	"github.com/jamesainslie/reclaim/pkg/reclaim/platform/fake"
	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

func newSweeper(t *testing.T, protect ...string) *Sweeper {
	t.Helper()
	log, _ := logging.NewCapture("sweeper", io.Discard)
	files := platform.OSFilesystem{}
	s, err := New(files, deleter.New(files, fake.NewKeys(), deleter.Options{}, log), protect, log)
	require.NoError(t, err)
	return s
}

func populate(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644))
	}
}

func remaining(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		want     bool
	}{
		{"Vendor_log.txt", []string{"vendor"}, true},
		{"crash_dump.tmp", []string{"vendor", "crash"}, true},
		{"notes.txt", []string{"vendor", "crash"}, false},
		{"anything", []string{"", "  "}, false},
		{"anything", nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(tt.name, tt.keywords), tt.name)
	}
}

func selector(t *testing.T, keywords []string, patterns ...string) Selector {
	t.Helper()
	sel, err := NewSelector(keywords, patterns)
	require.NoError(t, err)
	return sel
}

func TestSelector_Selects(t *testing.T) {
	sel := selector(t, []string{"vendor"}, "STEAM.EXE-*.pf", "eac_usermode_*.dll")
	tests := []struct {
		name string
		want bool
	}{
		{"STEAM.EXE-1A2B3C4D.pf", true},
		{"steam.exe-00ff.PF", true},
		{"STEAM.EXE-1A2B3C4D.log", false},
		{"STEAMWEBHELPER.EXE-1234.pf", false},
		{"EAC_usermode_3.dll", true},
		{"eac_launcher.dll", false},
		{"my_vendor_cache", true},
		{"notes.txt", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sel.Selects(tt.name), tt.name)
	}
}

func TestSelector_Empty(t *testing.T) {
	assert.False(t, selector(t, nil).Selects("anything"))
}

func TestNewSelector_InvalidPattern(t *testing.T) {
	_, err := NewSelector(nil, []string{"[unclosed"})
	assert.ErrorContains(t, err, "invalid sweep pattern")
}

func TestSweep_RemovesOnlyMatches(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, "vendor_log.txt", "notes.txt", "CRASH_dump.tmp")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "VendorCache", "sub"), 0o755))

	s := newSweeper(t)
	tally := stats.NewTally("sweep")
	s.Sweep(context.Background(), dir, selector(t, []string{"vendor", "crash"}), tally)

	assert.Equal(t, []string{"notes.txt"}, remaining(t, dir))
	c := tally.Counts()
	assert.Equal(t, uint64(2), c.FilesDeleted)
	assert.Equal(t, uint64(1), c.DirectoriesDeleted)
	assert.Zero(t, c.Errors)
	assert.Equal(t, uint64(len("vendor_log.txt")+len("CRASH_dump.tmp")), c.BytesFreed)
}

func TestSweep_PatternsSelectPrefetchEntries(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, "STEAM.EXE-1A2B3C4D.pf", "STEAM.EXE-99.log", "EXPLORER.EXE-0F0F.pf", "eac_usermode_7.dll")

	s := newSweeper(t)
	tally := stats.NewTally("sweep")
	s.Sweep(context.Background(), dir, selector(t, nil, "STEAM.EXE-*.pf", "eac_usermode_*.dll"), tally)

	assert.Equal(t, []string{"EXPLORER.EXE-0F0F.pf", "STEAM.EXE-99.log"}, remaining(t, dir))
	assert.Equal(t, uint64(2), tally.Counts().FilesDeleted)
	assert.Zero(t, tally.Counts().Errors)
}

func TestSweep_ProtectPatternVetoes(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, "vendor_settings.ini", "vendor_cache.bin")

	s := newSweeper(t, "*SETTINGS*")
	tally := stats.NewTally("sweep")
	s.Sweep(context.Background(), dir, selector(t, []string{"vendor"}), tally)

	assert.Equal(t, []string{"vendor_settings.ini"}, remaining(t, dir))
	assert.Equal(t, uint64(1), tally.Counts().FilesDeleted)
}

func TestSweep_MissingDirIsAbsent(t *testing.T) {
	s := newSweeper(t)
	tally := stats.NewTally("sweep")
	s.Sweep(context.Background(), filepath.Join(t.TempDir(), "nope"), selector(t, []string{"x"}), tally)

	assert.Zero(t, tally.Counts().Errors)
	require.Len(t, tally.Records(), 1)
	assert.Equal(t, types.OutcomeAbsent, tally.Records()[0].Outcome)
}

func TestPurge_KeepsDirectory(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, "a.tmp", "b.tmp")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	populate(t, filepath.Join(dir, "nested"), "c.tmp")

	s := newSweeper(t)
	tally := stats.NewTally("purge")
	s.Purge(context.Background(), dir, tally)

	assert.DirExists(t, dir)
	assert.Empty(t, remaining(t, dir))
	c := tally.Counts()
	assert.Equal(t, uint64(2), c.FilesDeleted)
	assert.Equal(t, uint64(1), c.DirectoriesDeleted)
	assert.Equal(t, uint64(15), c.BytesFreed)
}

func TestNew_InvalidPattern(t *testing.T) {
	files := platform.OSFilesystem{}
	_, err := New(files, deleter.New(files, fake.NewKeys(), deleter.Options{}, nil), []string{"[unclosed"}, nil)
	assert.Error(t, err)
}
