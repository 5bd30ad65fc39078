package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jamesainslie/reclaim/pkg/reclaim/platform"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// Resolver locates named base directories. Each base is looked up once per
// Resolver; failures are remembered too, so every stage sees the same answer.
type Resolver struct {
	bases  map[string]BaseSpec
	keys   platform.KeyStore
	files  platform.Filesystem
	getenv func(string) string

	mu    sync.Mutex
	cache map[string]resolved
}

type resolved struct {
	dir string
	err error
}

// NewResolver returns a Resolver for bases.
func NewResolver(bases map[string]BaseSpec, keys platform.KeyStore, files platform.Filesystem) *Resolver {
	return &Resolver{
		bases:  bases,
		keys:   keys,
		files:  files,
		getenv: os.Getenv,
		cache:  make(map[string]resolved),
	}
}

// Resolve returns the directory for the named base. The error wraps
// types.ErrDriver when no source yields an existing directory.
func (r *Resolver) Resolve(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cache[name]; ok {
		return c.dir, c.err
	}
	dir, err := r.lookup(name)
	r.cache[name] = resolved{dir: dir, err: err}
	return dir, err
}

func (r *Resolver) lookup(name string) (string, error) {
	spec, ok := r.bases[name]
	if !ok {
		return "", fmt.Errorf("%w: undefined base %q", types.ErrDriver, name)
	}

	var tried []string
	if reg := spec.Registry; reg != nil {
		v, err := r.keys.StringValue(reg.Hive, reg.Key, reg.Value)
		switch {
		case err != nil:
			tried = append(tried, fmt.Sprintf(`registry %s\%s: %v`, reg.Hive, reg.Key, err))
		case r.isDir(v):
			return filepath.Clean(v), nil
		default:
			tried = append(tried, fmt.Sprintf(`registry %s\%s points at %q`, reg.Hive, reg.Key, v))
		}
	}

	if spec.Env != "" {
		v := r.getenv(spec.Env)
		if r.isDir(v) {
			return filepath.Clean(v), nil
		}
		tried = append(tried, fmt.Sprintf("$%s=%q", spec.Env, v))
	}

	for _, f := range spec.Fallbacks {
		if r.isDir(f) {
			return filepath.Clean(f), nil
		}
		tried = append(tried, f)
	}

	return "", fmt.Errorf("%w: base %q not found (tried %s)", types.ErrDriver, name, strings.Join(tried, "; "))
}

func (r *Resolver) isDir(p string) bool {
	if strings.TrimSpace(p) == "" {
		return false
	}
	info, err := r.files.Lstat(p)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return true
	}
	// A symlinked install dir is still usable as a base.
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Stat(p)
		return err == nil && target.IsDir()
	}
	return false
}
