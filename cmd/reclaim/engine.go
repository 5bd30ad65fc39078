package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/reclaim/pkg/reclaim/config"
	"github.com/jamesainslie/reclaim/pkg/reclaim/deleter"
	"github.com/jamesainslie/reclaim/pkg/reclaim/history"
	"github.com/jamesainslie/reclaim/pkg/reclaim/logging"
	"github.com/jamesainslie/reclaim/pkg/reclaim/output"
	"github.com/jamesainslie/reclaim/pkg/reclaim/pipeline"
	"github.com/jamesainslie/reclaim/pkg/reclaim/platform"
	"github.com/jamesainslie/reclaim/pkg/reclaim/terminator"
)

// runOptions are the per-invocation settings of plan and run.
type runOptions struct {
	Mode   string
	Output string
	Yes    bool
	DryRun bool
}

// newBuilder wires the engine for host from the engine section of cfg.
func newBuilder(cfg *config.Config, host *platform.Host) *pipeline.Builder {
	e := cfg.Engine
	term := terminator.New(host, terminator.Options{
		GracefulTimeout: e.GracefulTimeout,
		ForceTimeout:    e.ForceTimeout,
		CommandTimeout:  e.CommandTimeout,
		ServiceTimeout:  e.ServiceTimeout,
		SettleDelay:     e.SettleDelay,
		Workers:         e.Workers,
	}, logging.Get("terminator"))
	del := deleter.New(host.Files, host.Keys, deleter.Options{
		RetryDelay: e.RetryDelay,
		Workers:    e.Workers,
	}, logging.Get("deleter"))
	return pipeline.NewBuilder(host, term, del, logging.Get("pipeline"))
}

// loadPlan reads the targets file and builds the plan for mode. An empty
// mode falls back to the configured one.
func loadPlan(cfg *config.Config, host *platform.Host, mode string) (pipeline.Plan, error) {
	if mode == "" {
		mode = cfg.Mode
	}
	m, err := pipeline.ParseMode(mode)
	if err != nil {
		return pipeline.Plan{}, err
	}

	path, err := cfg.TargetsPath()
	if err != nil {
		return pipeline.Plan{}, err
	}
	def, err := config.LoadTargets(path)
	if err != nil {
		return pipeline.Plan{}, err
	}
	return newBuilder(cfg, host).Build(def, m)
}

// execute builds the plan and either prints it or runs it, writing the
// report to w. The returned report is nil when nothing could be rendered.
func execute(ctx context.Context, cfg *config.Config, host *platform.Host, opts runOptions, w io.Writer) (*output.Report, error) {
	formatter, err := output.Get(opts.Output)
	if err != nil {
		return nil, err
	}
	plan, err := loadPlan(cfg, host, opts.Mode)
	if err != nil {
		return nil, err
	}

	if opts.DryRun || !opts.Yes {
		report := output.PlanReport(plan)
		return report, render(w, formatter, report)
	}

	res, err := pipeline.NewRunner(logging.Get("pipeline")).Run(ctx, plan)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	report := output.RunReport(id, plan, res)
	if err := recordRun(cfg, id, res, time.Now()); err != nil {
		logging.Get("history").Warn("run not recorded", "run", id, "err", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("run not recorded in history: %v", err))
	}
	if err := render(w, formatter, report); err != nil {
		return report, err
	}
	if !report.Success() {
		return report, fmt.Errorf("%w: %d", errPartial, report.Stats.Errors)
	}
	return report, nil
}

// recordRun stores a finished run and prunes runs older than the retention
// period. It does nothing when history is disabled.
func recordRun(cfg *config.Config, id string, res pipeline.Result, now time.Time) error {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Put(&history.Run{
		ID:      id,
		Mode:    string(res.Mode),
		Stats:   res.Snapshot,
		Stages:  res.Stages,
		Records: res.Records,
	}); err != nil {
		return err
	}

	if days := cfg.History.RetentionDays; days > 0 {
		n, err := store.Prune(now.AddDate(0, 0, -days))
		if err != nil {
			return err
		}
		if n > 0 {
			logging.Get("history").Debug("pruned runs", "count", n, "retention_days", days)
		}
	}
	return nil
}

func render(w io.Writer, f output.Formatter, r *output.Report) error {
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return fmt.Errorf("formatting report: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
