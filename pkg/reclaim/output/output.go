// Package output provides formatters for reclaim run reports and plans
// in several output formats (pretty, plain, json, yaml).
//
// Formatters are looked up by name through a registry:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/reclaim/pkg/reclaim/pipeline"
	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
)

// StageSummary describes one stage of a plan or a finished run.
type StageSummary struct {
	Name    string   `json:"name" yaml:"name"`
	Kind    string   `json:"kind" yaml:"kind"`
	Targets []string `json:"targets,omitempty" yaml:"targets,omitempty"`

	// The fields below are only set once the stage has run.
	Counts   stats.Counts  `json:"counts" yaml:"counts"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Panicked bool          `json:"panicked,omitempty" yaml:"panicked,omitempty"`
}

// Report is the data every formatter renders. A report whose Executed flag
// is false describes a plan that was not acted on.
type Report struct {
	RunID    string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Mode     string         `json:"mode" yaml:"mode"`
	Executed bool           `json:"executed" yaml:"executed"`
	Stats    stats.Snapshot `json:"stats" yaml:"stats"`
	Stages   []StageSummary `json:"stages" yaml:"stages"`
	Records  []stats.Record `json:"records,omitempty" yaml:"records,omitempty"`
	Warnings []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Success reports whether the run finished without errors.
func (r *Report) Success() bool {
	return r.Executed && r.Stats.Errors == 0
}

// PlanReport describes plan without running it.
func PlanReport(plan pipeline.Plan) *Report {
	r := &Report{Mode: string(plan.Mode)}
	for _, s := range plan.Stages {
		r.Stages = append(r.Stages, StageSummary{
			Name:    s.Name,
			Kind:    string(s.Kind),
			Targets: append([]string(nil), s.Targets...),
		})
	}
	return r
}

// RunReport describes a finished run of plan.
func RunReport(id string, plan pipeline.Plan, res pipeline.Result) *Report {
	r := PlanReport(plan)
	r.RunID = id
	r.Mode = string(res.Mode)
	r.Executed = true
	r.Stats = res.Snapshot
	r.Records = res.Records

	byName := make(map[string]pipeline.StageResult, len(res.Stages))
	for _, s := range res.Stages {
		byName[s.Name] = s
	}
	for i := range r.Stages {
		s, ok := byName[r.Stages[i].Name]
		if !ok {
			continue
		}
		r.Stages[i].Counts = s.Counts
		r.Stages[i].Duration = s.Duration
		r.Stages[i].Error = s.Error
		r.Stages[i].Panicked = s.Panicked
	}
	return r
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted report to the buffer.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds a formatter factory to the registry, replacing any
// existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
