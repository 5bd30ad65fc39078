package output

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// document is the machine-readable shape shared by the json and yaml
// formatters. Durations are rendered as strings and sizes get a human
// form next to the raw byte count.
type document struct {
	RunID    string          `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Mode     string          `json:"mode" yaml:"mode"`
	Executed bool            `json:"executed" yaml:"executed"`
	Success  bool            `json:"success" yaml:"success"`
	Stats    *documentStats  `json:"stats,omitempty" yaml:"stats,omitempty"`
	Stages   []documentStage `json:"stages" yaml:"stages"`
	Records  []stats.Record  `json:"records,omitempty" yaml:"records,omitempty"`
	Warnings []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type documentStats struct {
	stats.Counts `yaml:",inline"`
	FreedHuman   string    `json:"freed_human" yaml:"freed_human"`
	StartTime    time.Time `json:"start_time" yaml:"start_time"`
	EndTime      time.Time `json:"end_time" yaml:"end_time"`
	Duration     string    `json:"duration" yaml:"duration"`
}

type documentStage struct {
	Name     string        `json:"name" yaml:"name"`
	Kind     string        `json:"kind" yaml:"kind"`
	Targets  []string      `json:"targets,omitempty" yaml:"targets,omitempty"`
	Counts   *stats.Counts `json:"counts,omitempty" yaml:"counts,omitempty"`
	Duration string        `json:"duration,omitempty" yaml:"duration,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Panicked bool          `json:"panicked,omitempty" yaml:"panicked,omitempty"`
}

func buildDocument(r *Report) document {
	doc := document{
		RunID:    r.RunID,
		Mode:     r.Mode,
		Executed: r.Executed,
		Success:  r.Success(),
		Records:  r.Records,
		Warnings: r.Warnings,
		Stages:   make([]documentStage, 0, len(r.Stages)),
	}
	if r.Executed {
		doc.Stats = &documentStats{
			Counts:     r.Stats.Counts,
			FreedHuman: types.FormatSize(r.Stats.BytesFreed),
			StartTime:  r.Stats.StartTime,
			EndTime:    r.Stats.EndTime,
			Duration:   r.Stats.Duration.String(),
		}
	}
	for _, s := range r.Stages {
		ds := documentStage{Name: s.Name, Kind: s.Kind, Targets: s.Targets}
		if r.Executed {
			counts := s.Counts
			ds.Counts = &counts
			ds.Duration = s.Duration.String()
			ds.Error = s.Error
			ds.Panicked = s.Panicked
		}
		doc.Stages = append(doc.Stages, ds)
	}
	return doc
}

// JSONFormatter writes the report as one indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildDocument(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)
