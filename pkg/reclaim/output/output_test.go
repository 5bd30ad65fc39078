package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/reclaim/pkg/reclaim/pipeline"
	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

func sampleReport() *Report {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Report{
		RunID:    "4a1f0c2e-0000-4000-8000-000000000001",
		Mode:     "complete",
		Executed: true,
		Stats: stats.Snapshot{
			Counts: stats.Counts{
				ProcessesTerminated: 2,
				FilesDeleted:        3,
				DirectoriesDeleted:  1,
				Errors:              1,
				BytesFreed:          52428800,
			},
			StartTime: start,
			EndTime:   start.Add(1500 * time.Millisecond),
			Duration:  1500 * time.Millisecond,
		},
		Stages: []StageSummary{
			{Name: "terminate", Kind: "terminate", Counts: stats.Counts{ProcessesTerminated: 2}, Duration: 200 * time.Millisecond},
			{Name: "delete", Kind: "delete", Counts: stats.Counts{FilesDeleted: 3, DirectoriesDeleted: 1, Errors: 1, BytesFreed: 52428800}, Duration: time.Second},
		},
		Records: []stats.Record{
			{Stage: "delete", Ref: types.Path("/data/cache"), Outcome: types.OutcomeDeleted, Bytes: 52428800},
			{Stage: "delete", Ref: types.Path("/data/locked.db"), Outcome: types.OutcomeFailed, Class: "busy", Error: "file in use"},
		},
	}
}

func samplePlan() *Report {
	return &Report{
		Mode: "conservative",
		Stages: []StageSummary{
			{Name: "terminate", Kind: "terminate", Targets: []string{"process:tool.exe"}},
			{Name: "delete", Kind: "delete"},
		},
	}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "plain", "pretty", "yaml"}, Available())

	for _, name := range Available() {
		f, err := Get(name)
		require.NoError(t, err)
		assert.NotNil(t, f)
	}

	_, err := Get("xml")
	assert.Error(t, err)

	r := NewRegistry()
	r.Register("x", func() Formatter { return &PlainFormatter{} })
	assert.Equal(t, []string{"x"}, r.Available())
}

func TestReportSuccess(t *testing.T) {
	r := sampleReport()
	assert.False(t, r.Success())

	r.Stats.Errors = 0
	assert.True(t, r.Success())

	assert.False(t, samplePlan().Success(), "a plan is never a successful run")
}

func TestRunReport(t *testing.T) {
	noop := func(context.Context, *stats.Tally) error { return nil }
	plan := pipeline.Plan{Mode: pipeline.Complete, Stages: []pipeline.Stage{
		{Name: "terminate", Kind: pipeline.KindTerminate, Action: noop, Targets: []string{"process:a"}},
		{Name: "delete", Kind: pipeline.KindDelete, Action: noop},
	}}
	res := pipeline.Result{
		Mode:     pipeline.Complete,
		Snapshot: stats.Snapshot{Counts: stats.Counts{ProcessesTerminated: 1}},
		Stages: []pipeline.StageResult{
			{Name: "terminate", Counts: stats.Counts{ProcessesTerminated: 1}},
			{Name: "delete", Error: errors.New("boom").Error(), Panicked: true},
		},
	}

	r := RunReport("id-1", plan, res)

	assert.Equal(t, "id-1", r.RunID)
	assert.True(t, r.Executed)
	require.Len(t, r.Stages, 2)
	assert.Equal(t, []string{"process:a"}, r.Stages[0].Targets)
	assert.Equal(t, uint64(1), r.Stages[0].Counts.ProcessesTerminated)
	assert.True(t, r.Stages[1].Panicked)
	assert.Equal(t, "boom", r.Stages[1].Error)

	p := PlanReport(plan)
	assert.False(t, p.Executed)
	assert.Equal(t, "complete", p.Mode)
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, sampleReport()))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))

	assert.Equal(t, false, parsed["success"])
	st := parsed["stats"].(map[string]any)
	assert.Equal(t, float64(52428800), st["bytes_freed"])
	assert.Equal(t, "50 MiB", st["freed_human"])
	assert.Equal(t, "1.5s", st["duration"])

	records := parsed["records"].([]any)
	failed := records[1].(map[string]any)
	assert.Equal(t, "failed", failed["outcome"])
	assert.Equal(t, "path", failed["ref"].(map[string]any)["kind"])
}

func TestJSONFormatter_Plan(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, samplePlan()))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.NotContains(t, parsed, "stats")
	stages := parsed["stages"].([]any)
	assert.NotContains(t, stages[0].(map[string]any), "counts")
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&YAMLFormatter{}).Format(&buf, sampleReport()))

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &parsed))

	assert.Equal(t, "complete", parsed["mode"])
	st := parsed["stats"].(map[string]any)
	assert.Equal(t, 52428800, st["bytes_freed"])
	assert.Equal(t, 2, st["processes_terminated"])
	assert.Contains(t, buf.String(), "outcome: failed")
}

func TestPlainFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&PlainFormatter{}).Format(&buf, sampleReport()))
	out := buf.String()

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.True(t, strings.HasPrefix(lines[0], "STAGE"))
	assert.Contains(t, lines[2], "partial")
	assert.Contains(t, lines[3], "TOTAL")
	assert.Contains(t, lines[3], "50 MiB")
	assert.Contains(t, out, "failed\tdelete\tpath:/data/locked.db\tfile in use")
	assert.NotContains(t, out, "\x1b[", "plain output has no escape codes")
}

func TestPlainFormatter_Plan(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&PlainFormatter{}).Format(&buf, samplePlan()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "process:tool.exe")
	assert.True(t, strings.HasSuffix(lines[2], "-"))
}

func TestPrettyFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&PrettyFormatter{}).Format(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "4a1f0c2e")
	assert.Contains(t, out, "terminate")
	assert.Contains(t, out, "50 MiB")
	assert.Contains(t, out, "Failures:")
	assert.Contains(t, out, "/data/locked.db")
	assert.Contains(t, out, "Errors: 1")
}

func TestPrettyFormatter_Plan(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&PrettyFormatter{}).Format(&buf, samplePlan()))
	out := buf.String()

	assert.Contains(t, out, "nothing has been changed")
	assert.Contains(t, out, "process:tool.exe")
	assert.Contains(t, out, "nothing selected")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}
