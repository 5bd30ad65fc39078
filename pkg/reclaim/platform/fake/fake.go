// Package fake provides in-memory implementations of the platform
// capabilities. They record every call so tests can assert on ordering and
// escalation.
package fake

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jamesainslie/reclaim/pkg/reclaim/platform"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// Behavior controls how a fake process reacts to termination requests.
type Behavior int

const (
	// ExitOnGraceful processes exit when asked politely.
	ExitOnGraceful Behavior = iota
	// IgnoreGraceful processes only exit when killed.
	IgnoreGraceful
	// Denied processes refuse every request with a permission error.
	Denied
	// VanishOnSignal processes exit between listing and the first request.
	VanishOnSignal
)

// Call is one recorded capability invocation.
type Call struct {
	Op   string
	Arg  string
	Time time.Time
}

type proc struct {
	platform.Process
	behavior Behavior
}

// Processes is an in-memory process table.
type Processes struct {
	mu      sync.Mutex
	procs   map[int]*proc
	nextPID int
	calls   []Call

	// ListErr, when set, is returned by List.
	ListErr error
}

// NewProcesses returns an empty process table.
func NewProcesses() *Processes {
	return &Processes{procs: make(map[int]*proc), nextPID: 1000}
}

// Spawn adds a process and returns its pid.
func (p *Processes) Spawn(name string, b Behavior) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextPID++
	p.procs[p.nextPID] = &proc{Process: platform.Process{PID: p.nextPID, Name: name}, behavior: b}
	return p.nextPID
}

// Alive reports whether pid is still in the table.
func (p *Processes) Alive(pid int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.procs[pid]
	return ok
}

// Running returns the number of live processes named name.
func (p *Processes) Running(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pr := range p.procs {
		if pr.Matches(name) {
			n++
		}
	}
	return n
}

// KillByName removes every non-denied process named name and returns how
// many were removed.
func (p *Processes) KillByName(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for pid, pr := range p.procs {
		if pr.Matches(name) && pr.behavior != Denied {
			delete(p.procs, pid)
			n++
		}
	}
	return n
}

// Calls returns the recorded calls in order.
func (p *Processes) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

func (p *Processes) record(op string, pid int) {
	p.calls = append(p.calls, Call{Op: op, Arg: strconv.Itoa(pid), Time: time.Now()})
}

func (p *Processes) List(context.Context) ([]platform.Process, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	out := make([]platform.Process, 0, len(p.procs))
	for _, pr := range p.procs {
		out = append(out, pr.Process)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	for _, pr := range p.procs {
		if pr.behavior == VanishOnSignal {
			delete(p.procs, pr.PID)
		}
	}
	return out, nil
}

func (p *Processes) Terminate(_ context.Context, pid int, graceful bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	op := "force"
	if graceful {
		op = "graceful"
	}
	p.record(op, pid)

	pr, ok := p.procs[pid]
	if !ok {
		return fmt.Errorf("process %d: %w", pid, types.ErrNotFound)
	}
	switch {
	case pr.behavior == Denied:
		return &fs.PathError{Op: "kill", Path: strconv.Itoa(pid), Err: fs.ErrPermission}
	case graceful && pr.behavior == IgnoreGraceful:
		return nil
	default:
		delete(p.procs, pid)
		return nil
	}
}

// Wait returns immediately when pid has exited and otherwise sleeps for the
// full timeout before reporting.
func (p *Processes) Wait(ctx context.Context, pid int, timeout time.Duration) (bool, error) {
	if !p.Alive(pid) {
		return true, nil
	}
	select {
	case <-time.After(timeout):
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return !p.Alive(pid), nil
}

// Services is an in-memory service manager.
type Services struct {
	mu        sync.Mutex
	installed map[string]bool // name -> running
	denied    map[string]bool
	calls     []Call
}

// NewServices returns a manager with no services.
func NewServices() *Services {
	return &Services{installed: make(map[string]bool), denied: make(map[string]bool)}
}

// Install adds a service.
func (s *Services) Install(name string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed[strings.ToLower(name)] = running
}

// Deny makes every call on name fail with a permission error.
func (s *Services) Deny(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[strings.ToLower(name)] = true
}

// Installed reports whether name is still registered.
func (s *Services) Installed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.installed[strings.ToLower(name)]
	return ok
}

// Calls returns the recorded calls in order.
func (s *Services) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Services) check(op, name string) (string, error) {
	key := strings.ToLower(name)
	s.calls = append(s.calls, Call{Op: op, Arg: name, Time: time.Now()})
	if s.denied[key] {
		return key, fmt.Errorf("%s %s: %w", op, name, fs.ErrPermission)
	}
	if _, ok := s.installed[key]; !ok {
		return key, fmt.Errorf("service %s: %w", name, types.ErrNotFound)
	}
	return key, nil
}

func (s *Services) Stop(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := s.check("stop", name)
	if err != nil {
		return err
	}
	s.installed[key] = false
	return nil
}

func (s *Services) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := s.check("delete", name)
	if err != nil {
		return err
	}
	delete(s.installed, key)
	return nil
}

// Runner records commands. When Procs is set, force-kill commands remove the
// named processes from it.
type Runner struct {
	mu    sync.Mutex
	calls []Call
	Procs *Processes

	// Result, when set, decides the outcome of every command.
	Result func(name string, args []string) platform.CommandResult
}

// Calls returns the recorded commands as "name arg arg" strings.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Arg
	}
	return out
}

func (r *Runner) Run(_ context.Context, _ time.Duration, name string, args ...string) platform.CommandResult {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Op: "run", Arg: strings.Join(append([]string{name}, args...), " "), Time: time.Now()})
	r.mu.Unlock()

	if r.Result != nil {
		return r.Result(name, args)
	}
	if r.Procs != nil && len(args) > 0 {
		if r.Procs.KillByName(targetName(name, args)) == 0 {
			return platform.CommandResult{ExitCode: 1, Output: "no process found"}
		}
	}
	return platform.CommandResult{}
}

// targetName extracts the image name from a force-kill command line.
func targetName(name string, args []string) string {
	if name == "taskkill" {
		for i, a := range args {
			if strings.EqualFold(a, "/IM") && i+1 < len(args) {
				return args[i+1]
			}
		}
	}
	return args[len(args)-1]
}

// ForceKill is the command shape used with Runner.
func ForceKill(name string) (string, []string) {
	return "pkill", []string{"-KILL", "-x", name}
}

// Keys is an in-memory hierarchical key store. Names are case-insensitive
// and a key can only be deleted once it has no subkeys.
type Keys struct {
	mu      sync.Mutex
	nodes   map[string]*keyNode
	deleted []string

	// ChildrenErr and DeleteErr inject failures by "HIVE\path" (any case).
	ChildrenErr map[string]error
	DeleteErr   map[string]error
}

type keyNode struct {
	path     string
	children map[string]string
	values   map[string]string
}

// NewKeys returns an empty store.
func NewKeys() *Keys {
	return &Keys{
		nodes:       make(map[string]*keyNode),
		ChildrenErr: make(map[string]error),
		DeleteErr:   make(map[string]error),
	}
}

func join(hive, key string) string {
	return hive + `\` + strings.Trim(key, `\`)
}

func lower(s string) string { return strings.ToLower(s) }

// Add creates hive\key and any missing ancestors.
func (k *Keys) Add(hive, key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.add(hive, key)
}

func (k *Keys) add(hive, key string) *keyNode {
	parts := strings.Split(strings.Trim(key, `\`), `\`)
	path := hive
	var parent *keyNode
	for _, part := range parts {
		path += `\` + part
		n, ok := k.nodes[lower(path)]
		if !ok {
			n = &keyNode{path: path, children: map[string]string{}, values: map[string]string{}}
			k.nodes[lower(path)] = n
		}
		if parent != nil {
			parent.children[lower(part)] = part
		}
		parent = n
	}
	return parent
}

// SetValue stores a string value, creating the key if needed.
func (k *Keys) SetValue(hive, key, name, value string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.add(hive, key).values[name] = value
}

// Exists reports whether hive\key is present.
func (k *Keys) Exists(hive, key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.nodes[lower(join(hive, key))]
	return ok
}

// Deleted returns the full paths of deleted keys in deletion order.
func (k *Keys) Deleted() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.deleted...)
}

func (k *Keys) injected(m map[string]error, path string) error {
	for p, err := range m {
		if lower(p) == lower(path) {
			return err
		}
	}
	return nil
}

func (k *Keys) Children(hive, key string) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	path := join(hive, key)
	if err := k.injected(k.ChildrenErr, path); err != nil {
		return nil, err
	}
	n, ok := k.nodes[lower(path)]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, types.ErrNotFound)
	}
	out := make([]string, 0, len(n.children))
	for _, name := range n.children {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (k *Keys) DeleteKey(hive, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	path := join(hive, key)
	if err := k.injected(k.DeleteErr, path); err != nil {
		return err
	}
	n, ok := k.nodes[lower(path)]
	if !ok {
		return fmt.Errorf("delete %s: %w", path, types.ErrNotFound)
	}
	if len(n.children) > 0 {
		return errors.New("delete " + path + ": key has subkeys")
	}
	delete(k.nodes, lower(path))
	if i := strings.LastIndex(path, `\`); i >= 0 {
		if parent, ok := k.nodes[lower(path[:i])]; ok {
			delete(parent.children, lower(path[i+1:]))
		}
	}
	k.deleted = append(k.deleted, n.path)
	return nil
}

func (k *Keys) StringValue(hive, key, name string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	n, ok := k.nodes[lower(join(hive, key))]
	if !ok {
		return "", fmt.Errorf("open %s: %w", join(hive, key), types.ErrNotFound)
	}
	v, ok := n.values[name]
	if !ok {
		return "", fmt.Errorf("value %s on %s: %w", name, join(hive, key), types.ErrNotFound)
	}
	return v, nil
}

// FailingFS wraps a Filesystem and injects RemoveAll failures.
type FailingFS struct {
	platform.Filesystem

	mu sync.Mutex
	// Fail maps a path to the error RemoveAll returns for it. Once entries
	// are consumed by their first use; others fail every time.
	Fail    map[string]error
	Once    map[string]bool
	removes []string
}

// NewFailingFS wraps the real filesystem.
func NewFailingFS() *FailingFS {
	return &FailingFS{
		Filesystem: platform.OSFilesystem{},
		Fail:       make(map[string]error),
		Once:       make(map[string]bool),
	}
}

// Removes returns every path RemoveAll was called with.
func (f *FailingFS) Removes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removes...)
}

func (f *FailingFS) RemoveAll(path string) error {
	f.mu.Lock()
	f.removes = append(f.removes, path)
	err, fail := f.Fail[path]
	if fail && f.Once[path] {
		delete(f.Fail, path)
	}
	f.mu.Unlock()

	if fail {
		return err
	}
	return f.Filesystem.RemoveAll(path)
}

// NewHost returns a Host wired entirely to fakes, with the real filesystem.
func NewHost() (*platform.Host, *Processes, *Services, *Keys, *Runner) {
	procs := NewProcesses()
	svcs := NewServices()
	keys := NewKeys()
	runner := &Runner{Procs: procs}
	return &platform.Host{
		Processes: procs,
		Services:  svcs,
		Files:     platform.OSFilesystem{},
		Keys:      keys,
		Runner:    runner,
		ForceKill: ForceKill,
	}, procs, svcs, keys, runner
}
