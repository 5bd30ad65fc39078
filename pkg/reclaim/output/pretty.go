package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// PrettyFormatter renders reports with colors and boxes for the terminal.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	if r.Executed {
		w.WriteString(f.formatStages(r))
		if failures := f.formatFailures(r.Records); failures != "" {
			w.WriteString("\n")
			w.WriteString(failures)
		}
		w.WriteString(f.formatFooter(r))
	} else {
		w.WriteString(f.formatPlan(r))
	}

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(warnText.Bold(true).Render("Warnings:"))
		w.WriteString("\n")
		for _, warning := range r.Warnings {
			w.WriteString(warnText.Render("  " + warning))
			w.WriteString("\n")
		}
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Report) string {
	var lines []string

	if r.Executed {
		lines = append(lines, fmt.Sprintf("%s %s", labelText.Render("Run:"), valueText.Render(r.RunID)))
	} else {
		lines = append(lines, titleText.Render("Plan (nothing has been changed)"))
	}

	info := []string{fmt.Sprintf("%s %s", labelText.Render("Mode:"), valueText.Render(r.Mode))}
	if r.Executed {
		info = append(info,
			fmt.Sprintf("%s %s", labelText.Render("Started:"), valueText.Render(r.Stats.StartTime.Format(time.DateTime))),
			fmt.Sprintf("%s %s", labelText.Render("Took:"), valueText.Render(formatDuration(r.Stats.Duration))),
		)
	}
	lines = append(lines, strings.Join(info, "  "))

	return headerBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatStages(r *Report) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s\n", columnText.Render(fmt.Sprintf("%-3s %-20s %-10s %10s %7s %8s", "#", "STAGE", "KIND", "FREED", "ERRORS", "TIME"))))

	for i, s := range r.Stages {
		st := stageStatus(s)
		status := statusText[st].Render(st)
		row := fmt.Sprintf("%-3d %-20s %-10s %s %7d %8s",
			i+1, truncate(s.Name, 20), s.Kind,
			freedText.Render(padLeft(humanize.IBytes(s.Counts.BytesFreed), 10)),
			s.Counts.Errors, formatDuration(s.Duration))
		sb.WriteString(fmt.Sprintf("  %s  %s\n", row, status))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatPlan(r *Report) string {
	if len(r.Stages) == 0 {
		return dimText.Render("  No stages to run\n")
	}

	var sb strings.Builder
	for i, s := range r.Stages {
		sb.WriteString(fmt.Sprintf("  %s %s\n",
			titleText.Render(fmt.Sprintf("%d. %s", i+1, s.Name)),
			dimText.Render("("+s.Kind+")")))
		if len(s.Targets) == 0 {
			sb.WriteString(dimText.Render("     nothing selected"))
			sb.WriteString("\n")
		}
		for _, t := range s.Targets {
			sb.WriteString("     " + valueText.Render(t) + "\n")
		}
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFailures(records []stats.Record) string {
	var sb strings.Builder
	for _, rec := range records {
		if rec.Outcome != types.OutcomeFailed {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString(failText.Bold(true).Render("Failures:"))
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			dimText.Render("["+rec.Stage+"]"),
			valueText.Render(rec.Ref.String()),
			failText.Render(rec.Error)))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Report) string {
	c := r.Stats.Counts
	parts := []string{
		fmt.Sprintf("%s %s", labelText.Render("Freed:"), freedText.Render(humanize.IBytes(c.BytesFreed))),
		fmt.Sprintf("%s %s", labelText.Render("Processes:"), valueText.Render(humanize.Comma(int64(c.ProcessesTerminated)))),
		fmt.Sprintf("%s %s", labelText.Render("Files:"), valueText.Render(humanize.Comma(int64(c.FilesDeleted)))),
		fmt.Sprintf("%s %s", labelText.Render("Dirs:"), valueText.Render(humanize.Comma(int64(c.DirectoriesDeleted)))),
		fmt.Sprintf("%s %s", labelText.Render("Keys:"), valueText.Render(humanize.Comma(int64(c.RegistryKeysDeleted)))),
	}
	if c.Errors > 0 {
		parts = append(parts, failText.Render(fmt.Sprintf("Errors: %d", c.Errors)))
		return failedBox.Render(strings.Join(parts, "  "))
	}
	parts = append(parts, okText.Render("no errors"))
	return totalsBox.Render(strings.Join(parts, "  "))
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	return s[:width-1] + "~"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
