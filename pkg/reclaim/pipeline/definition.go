package pipeline

import (
	"fmt"
	"strings"
)

// Mode selects which parts of a definition a run acts on.
type Mode string

const (
	// Conservative skips protected sets and complete-only stages.
	Conservative Mode = "conservative"
	// Complete acts on everything.
	Complete Mode = "complete"
)

// ParseMode accepts "conservative" or "complete" in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Conservative:
		return Conservative, nil
	case Complete:
		return Complete, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want conservative or complete)", s)
	}
}

// Kind is the type of work a stage does.
type Kind string

const (
	KindTerminate Kind = "terminate"
	KindDelete    Kind = "delete"
	KindRegistry  Kind = "registry"
	KindSweep     Kind = "sweep"
	KindPurge     Kind = "purge"
)

func (k Kind) valid() bool {
	switch k {
	case KindTerminate, KindDelete, KindRegistry, KindSweep, KindPurge:
		return true
	}
	return false
}

// Definition is the declarative form of a plan, as loaded from a targets
// file.
type Definition struct {
	Bases  map[string]BaseSpec `mapstructure:"bases" yaml:"bases,omitempty"`
	Sets   []SetSpec           `mapstructure:"sets" yaml:"sets"`
	Stages []StageSpec         `mapstructure:"stages" yaml:"stages"`
}

// BaseSpec locates a directory that relative set paths are joined to. The
// sources are tried in order: registry value, environment variable, then
// the first fallback that exists.
type BaseSpec struct {
	Registry  *ValueSpec `mapstructure:"registry" yaml:"registry,omitempty"`
	Env       string     `mapstructure:"env" yaml:"env,omitempty"`
	Fallbacks []string   `mapstructure:"fallbacks" yaml:"fallbacks,omitempty"`
}

// ValueSpec names a string value on a registry key.
type ValueSpec struct {
	Hive  string `mapstructure:"hive" yaml:"hive"`
	Key   string `mapstructure:"key" yaml:"key"`
	Value string `mapstructure:"value" yaml:"value"`
}

// KeySpec names a registry key subtree.
type KeySpec struct {
	Hive string `mapstructure:"hive" yaml:"hive"`
	Key  string `mapstructure:"key" yaml:"key"`
}

// SetSpec declares one resource set.
type SetSpec struct {
	Name      string    `mapstructure:"name" yaml:"name"`
	Protected bool      `mapstructure:"protected" yaml:"protected,omitempty"`
	Base      string    `mapstructure:"base" yaml:"base,omitempty"`
	Processes []string  `mapstructure:"processes" yaml:"processes,omitempty"`
	Services  []string  `mapstructure:"services" yaml:"services,omitempty"`
	Paths     []string  `mapstructure:"paths" yaml:"paths,omitempty"`
	Registry  []KeySpec `mapstructure:"registry" yaml:"registry,omitempty"`
}

// StageSpec declares one stage. Sets limits terminate, delete and registry
// stages to the named sets; empty means every set. Dirs and Protect apply to
// sweep and purge stages. A sweep removes entries whose name contains one of
// Keywords or matches one of Patterns.
type StageSpec struct {
	Name         string   `mapstructure:"name" yaml:"name"`
	Kind         Kind     `mapstructure:"kind" yaml:"kind"`
	Sets         []string `mapstructure:"sets" yaml:"sets,omitempty"`
	Dirs         []string `mapstructure:"dirs" yaml:"dirs,omitempty"`
	Keywords     []string `mapstructure:"keywords" yaml:"keywords,omitempty"`
	Patterns     []string `mapstructure:"patterns" yaml:"patterns,omitempty"`
	Protect      []string `mapstructure:"protect" yaml:"protect,omitempty"`
	CompleteOnly bool     `mapstructure:"complete_only" yaml:"complete_only,omitempty"`
}

// Validate reports structural problems in the definition.
func (d Definition) Validate() error {
	if len(d.Stages) == 0 {
		return ErrEmptyPlan
	}

	sets := make(map[string]bool, len(d.Sets))
	for i, s := range d.Sets {
		if s.Name == "" {
			return fmt.Errorf("%w: set %d has no name", ErrInvalidPlan, i)
		}
		if sets[s.Name] {
			return fmt.Errorf("%w: duplicate set %q", ErrInvalidPlan, s.Name)
		}
		if s.Base != "" {
			if _, ok := d.Bases[s.Base]; !ok {
				return fmt.Errorf("%w: set %q uses undefined base %q", ErrInvalidPlan, s.Name, s.Base)
			}
		}
		sets[s.Name] = true
	}

	names := make(map[string]bool, len(d.Stages))
	for i, st := range d.Stages {
		if st.Name == "" {
			return fmt.Errorf("%w: stage %d has no name", ErrInvalidPlan, i)
		}
		if names[st.Name] {
			return fmt.Errorf("%w: duplicate stage %q", ErrInvalidPlan, st.Name)
		}
		names[st.Name] = true
		if !st.Kind.valid() {
			return fmt.Errorf("%w: stage %q has unknown kind %q", ErrInvalidPlan, st.Name, st.Kind)
		}
		for _, ref := range st.Sets {
			if !sets[ref] {
				return fmt.Errorf("%w: stage %q references unknown set %q", ErrInvalidPlan, st.Name, ref)
			}
		}
		if (st.Kind == KindSweep || st.Kind == KindPurge) && len(st.Dirs) == 0 {
			return fmt.Errorf("%w: %s stage %q has no dirs", ErrInvalidPlan, st.Kind, st.Name)
		}
		if st.Kind == KindSweep && len(st.Keywords) == 0 && len(st.Patterns) == 0 {
			return fmt.Errorf("%w: sweep stage %q has no keywords or patterns", ErrInvalidPlan, st.Name)
		}
	}
	return nil
}
