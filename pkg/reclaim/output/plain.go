package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// PlainFormatter writes tab-aligned text with no styling, for scripts and
// pipes. A plan lists one target per line; a run lists one line per stage
// followed by a totals line.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if !r.Executed {
		fmt.Fprintln(tw, "STAGE\tKIND\tTARGET")
		for _, s := range r.Stages {
			if len(s.Targets) == 0 {
				fmt.Fprintf(tw, "%s\t%s\t-\n", s.Name, s.Kind)
			}
			for _, t := range s.Targets {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Kind, t)
			}
		}
		return tw.Flush()
	}

	fmt.Fprintln(tw, "STAGE\tKIND\tPROCS\tFILES\tDIRS\tKEYS\tBYTES\tERRORS\tSTATUS")
	for _, s := range r.Stages {
		c := s.Counts
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			s.Name, s.Kind, c.ProcessesTerminated, c.FilesDeleted, c.DirectoriesDeleted,
			c.RegistryKeysDeleted, c.BytesFreed, c.Errors, stageStatus(s))
	}
	c := r.Stats.Counts
	fmt.Fprintf(tw, "TOTAL\t\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
		c.ProcessesTerminated, c.FilesDeleted, c.DirectoriesDeleted,
		c.RegistryKeysDeleted, c.BytesFreed, c.Errors, types.FormatSize(c.BytesFreed))
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, rec := range r.Records {
		if rec.Outcome == types.OutcomeFailed {
			fmt.Fprintf(w, "failed\t%s\t%s\t%s\n", rec.Stage, rec.Ref, strings.TrimSpace(rec.Error))
		}
	}
	return nil
}

func stageStatus(s StageSummary) string {
	switch {
	case s.Panicked:
		return "panicked"
	case s.Error != "":
		return "failed"
	case s.Counts.Errors > 0:
		return "partial"
	default:
		return "ok"
	}
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
