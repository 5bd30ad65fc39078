package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/reclaim/pkg/reclaim/history"
	"github.com/jamesainslie/reclaim/pkg/reclaim/pipeline"
	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
)

func sampleRun() *history.Run {
	start := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	return &history.Run{
		ID:   "0b6e1c4a-5d7f-4c1e-9a3b-2f8d6e0c1a97",
		Mode: "complete",
		Stats: stats.Snapshot{
			Counts:    stats.Counts{FilesDeleted: 3, Errors: 1, BytesFreed: 3 << 20},
			StartTime: start,
			EndTime:   start.Add(2 * time.Second),
			Duration:  2 * time.Second,
		},
		Stages: []pipeline.StageResult{
			{Name: "terminate", Kind: pipeline.KindTerminate},
			{Name: "delete", Kind: pipeline.KindDelete, Counts: stats.Counts{FilesDeleted: 3, Errors: 1}, Error: "boom", Panicked: true},
		},
	}
}

func TestHistoryReport(t *testing.T) {
	r := historyReport(sampleRun())

	if !r.Executed {
		t.Error("Executed = false, want true")
	}
	if r.Success() {
		t.Error("Success() = true for a run with errors")
	}
	if len(r.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(r.Stages))
	}
	del := r.Stages[1]
	if del.Kind != "delete" || !del.Panicked || del.Error != "boom" || del.Counts.FilesDeleted != 3 {
		t.Errorf("delete stage = %+v", del)
	}
}

func TestListRuns(t *testing.T) {
	var buf bytes.Buffer
	listRuns(&buf, []*history.Run{sampleRun()})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") {
		t.Errorf("header = %q", lines[0])
	}
	for _, want := range []string{"0b6e1c4a", "complete", "3.0 MiB"} {
		if !strings.Contains(lines[2], want) {
			t.Errorf("row %q missing %q", lines[2], want)
		}
	}
}
