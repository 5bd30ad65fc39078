package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/reclaim/pkg/reclaim/deleter"
	"github.com/jamesainslie/reclaim/pkg/reclaim/logging"
	"github.com/jamesainslie/reclaim/pkg/reclaim/platform"
	"github.com/jamesainslie/reclaim/pkg/reclaim/stats"
	"github.com/jamesainslie/reclaim/pkg/reclaim/sweeper"
	"github.com/jamesainslie/reclaim/pkg/reclaim/terminator"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// Builder turns a Definition into a runnable Plan bound to one host.
type Builder struct {
	host *platform.Host
	term *terminator.Terminator
	del  *deleter.Deleter
	log  *logging.Logger
}

// NewBuilder returns a Builder that acts through term and del.
func NewBuilder(host *platform.Host, term *terminator.Terminator, del *deleter.Deleter, log *logging.Logger) *Builder {
	if log == nil {
		log = logging.Get("pipeline")
	}
	return &Builder{host: host, term: term, del: del, log: log}
}

// set is a compiled SetSpec. Paths stay unresolved until a stage needs them.
type set struct {
	types.ResourceSet
	base  string
	paths []string
}

// Build validates def and returns the plan for mode. Complete-only stages
// are dropped in conservative mode.
func (b *Builder) Build(def Definition, mode Mode) (Plan, error) {
	if err := def.Validate(); err != nil {
		return Plan{}, err
	}
	bases, err := normalizeBases(def.Bases)
	if err != nil {
		return Plan{}, err
	}

	sets := make(map[string]*set, len(def.Sets))
	order := make([]string, 0, len(def.Sets))
	for _, spec := range def.Sets {
		s, err := compileSet(spec)
		if err != nil {
			return Plan{}, err
		}
		sets[spec.Name] = s
		order = append(order, spec.Name)
	}

	res := NewResolver(bases, b.host.Keys, b.host.Files)
	plan := Plan{Mode: mode}
	for _, st := range def.Stages {
		if st.CompleteOnly && mode != Complete {
			b.log.Debug("stage only runs in complete mode", "stage", st.Name)
			continue
		}
		selected := selectSets(st, sets, order)
		stage, err := b.stage(st, selected, mode, res)
		if err != nil {
			return Plan{}, err
		}
		plan.Stages = append(plan.Stages, stage)
	}
	if len(plan.Stages) == 0 {
		return Plan{}, ErrEmptyPlan
	}
	return plan, nil
}

func (b *Builder) stage(st StageSpec, selected []*set, mode Mode, res *Resolver) (Stage, error) {
	out := Stage{Name: st.Name, Kind: st.Kind}

	// Protected sets are still terminated so their processes cannot hold
	// handles on the paths other stages delete.
	deletable := selected
	if mode == Conservative {
		deletable = nil
		for _, s := range selected {
			if !s.Protected() {
				deletable = append(deletable, s)
			}
		}
	}

	switch st.Kind {
	case KindTerminate:
		var procs, svcs []string
		for _, s := range selected {
			procs = append(procs, s.Names(types.KindProcess)...)
			svcs = append(svcs, s.Names(types.KindService)...)
		}
		out.Targets = append(prefixed(types.KindProcess, procs), prefixed(types.KindService, svcs)...)
		out.Action = func(ctx context.Context, tally *stats.Tally) error {
			b.term.Terminate(ctx, procs, svcs, tally)
			return nil
		}

	case KindDelete:
		for _, s := range deletable {
			refs, err := s.resolve(res)
			if err != nil {
				out.Targets = append(out.Targets, fmt.Sprintf("%s: %v", s.Name(), err))
				continue
			}
			for _, r := range refs {
				out.Targets = append(out.Targets, r.Name)
			}
		}
		out.Action = func(ctx context.Context, tally *stats.Tally) error {
			var refs []types.ResourceRef
			for _, s := range deletable {
				rs, err := s.resolve(res)
				if err != nil {
					b.log.Error("skipping set", "set", s.Name(), "err", err)
					for _, ref := range s.declared() {
						tally.Failed(ref, err)
					}
					continue
				}
				refs = append(refs, rs...)
			}
			b.del.DeletePaths(ctx, refs, tally)
			return nil
		}

	case KindRegistry:
		var refs []types.ResourceRef
		for _, s := range deletable {
			refs = append(refs, s.Of(types.KindRegistryKey)...)
		}
		for _, r := range refs {
			out.Targets = append(out.Targets, r.String())
		}
		out.Action = func(ctx context.Context, tally *stats.Tally) error {
			b.del.DeleteKeys(ctx, refs, tally)
			return nil
		}

	case KindSweep, KindPurge:
		dirs, err := cleanDirs(st)
		if err != nil {
			return Stage{}, err
		}
		sw, err := sweeper.New(b.host.Files, b.del, st.Protect, b.log.With("stage", st.Name))
		if err != nil {
			return Stage{}, fmt.Errorf("%w: stage %q: %w", ErrInvalidPlan, st.Name, err)
		}
		sel, err := sweeper.NewSelector(st.Keywords, st.Patterns)
		if err != nil {
			return Stage{}, fmt.Errorf("%w: stage %q: %w", ErrInvalidPlan, st.Name, err)
		}
		out.Targets = dirs
		purge := st.Kind == KindPurge
		out.Action = func(ctx context.Context, tally *stats.Tally) error {
			for _, dir := range dirs {
				if err := ctx.Err(); err != nil {
					return err
				}
				if purge {
					sw.Purge(ctx, dir, tally)
				} else {
					sw.Sweep(ctx, dir, sel, tally)
				}
			}
			return nil
		}
	}
	return out, nil
}

// declared returns the set's path refs as written, for reporting paths whose
// base could not be resolved.
func (s *set) declared() []types.ResourceRef {
	refs := make([]types.ResourceRef, 0, len(s.paths))
	for _, p := range s.paths {
		refs = append(refs, types.Path(filepath.FromSlash(p)))
	}
	return refs
}

// resolve returns the set's path refs, joining relative paths to its base.
func (s *set) resolve(res *Resolver) ([]types.ResourceRef, error) {
	if len(s.paths) == 0 {
		return nil, nil
	}
	base := ""
	if s.base != "" {
		dir, err := res.Resolve(s.base)
		if err != nil {
			return nil, err
		}
		base = dir
	}
	refs := make([]types.ResourceRef, 0, len(s.paths))
	for _, p := range s.paths {
		p = filepath.FromSlash(p)
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		refs = append(refs, types.Path(p))
	}
	return refs, nil
}

func compileSet(spec SetSpec) (*set, error) {
	var refs []types.ResourceRef
	for _, p := range spec.Processes {
		refs = append(refs, types.Process(p))
	}
	for _, sv := range spec.Services {
		refs = append(refs, types.Service(sv))
	}
	for _, k := range spec.Registry {
		hive, err := types.ParseHive(k.Hive)
		if err != nil {
			return nil, fmt.Errorf("%w: set %q: %w", ErrInvalidPlan, spec.Name, err)
		}
		refs = append(refs, types.RegistryKey(hive, k.Key))
	}

	rs := types.NewResourceSet(spec.Name, spec.Protected, refs...)
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	for _, p := range spec.Paths {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("%w: set %q has an empty path", ErrInvalidPlan, spec.Name)
		}
		if spec.Base == "" && !filepath.IsAbs(filepath.FromSlash(p)) {
			return nil, fmt.Errorf("%w: set %q: relative path %q needs a base", ErrInvalidPlan, spec.Name, p)
		}
	}
	return &set{ResourceSet: rs, base: spec.Base, paths: spec.Paths}, nil
}

func normalizeBases(in map[string]BaseSpec) (map[string]BaseSpec, error) {
	out := make(map[string]BaseSpec, len(in))
	for name, b := range in {
		if b.Registry != nil {
			hive, err := types.ParseHive(b.Registry.Hive)
			if err != nil {
				return nil, fmt.Errorf("%w: base %q: %w", ErrInvalidPlan, name, err)
			}
			reg := *b.Registry
			reg.Hive = string(hive)
			b.Registry = &reg
		}
		out[name] = b
	}
	return out, nil
}

func selectSets(st StageSpec, sets map[string]*set, order []string) []*set {
	names := st.Sets
	if len(names) == 0 {
		names = order
	}
	out := make([]*set, 0, len(names))
	for _, n := range names {
		out = append(out, sets[n])
	}
	return out
}

func cleanDirs(st StageSpec) ([]string, error) {
	dirs := make([]string, 0, len(st.Dirs))
	for _, d := range st.Dirs {
		d = filepath.FromSlash(d)
		if !filepath.IsAbs(d) {
			return nil, fmt.Errorf("%w: stage %q: directory %q is not absolute", ErrInvalidPlan, st.Name, d)
		}
		dirs = append(dirs, filepath.Clean(d))
	}
	return dirs, nil
}

func prefixed(kind types.Kind, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = kind.String() + ":" + n
	}
	return out
}
