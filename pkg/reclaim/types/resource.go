package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidRef indicates a resource reference that cannot be acted upon.
var ErrInvalidRef = errors.New("invalid resource reference")

// Kind identifies which variant a ResourceRef holds.
type Kind int

const (
	KindProcess Kind = iota + 1
	KindService
	KindPath
	KindRegistryKey
)

// String returns the short name used in logs and reports.
func (k Kind) String() string {
	switch k {
	case KindProcess:
		return "process"
	case KindService:
		return "service"
	case KindPath:
		return "path"
	case KindRegistryKey:
		return "registry"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "process":
		*k = KindProcess
	case "service":
		*k = KindService
	case "path":
		*k = KindPath
	case "registry":
		*k = KindRegistryKey
	default:
		return fmt.Errorf("unknown resource kind %q", string(b))
	}
	return nil
}

// Hive names the root of a hierarchical key store.
type Hive string

const (
	HiveCurrentUser   Hive = "HKCU"
	HiveLocalMachine  Hive = "HKLM"
	HiveClassesRoot   Hive = "HKCR"
	HiveUsers         Hive = "HKU"
	HiveCurrentConfig Hive = "HKCC"
)

var hiveAliases = map[string]Hive{
	"HKCU":                HiveCurrentUser,
	"HKEY_CURRENT_USER":   HiveCurrentUser,
	"HKLM":                HiveLocalMachine,
	"HKEY_LOCAL_MACHINE":  HiveLocalMachine,
	"HKCR":                HiveClassesRoot,
	"HKEY_CLASSES_ROOT":   HiveClassesRoot,
	"HKU":                 HiveUsers,
	"HKEY_USERS":          HiveUsers,
	"HKCC":                HiveCurrentConfig,
	"HKEY_CURRENT_CONFIG": HiveCurrentConfig,
}

// ParseHive accepts both the short (HKCU) and long (HKEY_CURRENT_USER) forms.
func ParseHive(s string) (Hive, error) {
	h, ok := hiveAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: unknown hive %q", ErrInvalidRef, s)
	}
	return h, nil
}

// ResourceRef identifies one system resource. It is a comparable value type,
// so two refs are equal exactly when they name the same resource.
//
// Name holds the process image name, the service name, the absolute path or
// the key subpath (backslash separated) depending on Kind. Hive is only set
// for registry keys.
type ResourceRef struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
	Hive Hive   `json:"hive,omitempty" yaml:"hive,omitempty"`
}

// Process returns a reference to every process with the given image name.
func Process(name string) ResourceRef {
	return ResourceRef{Kind: KindProcess, Name: strings.TrimSpace(name)}
}

// Service returns a reference to an installed service.
func Service(name string) ResourceRef {
	return ResourceRef{Kind: KindService, Name: strings.TrimSpace(name)}
}

// Path returns a reference to a file or directory. The path is cleaned.
func Path(p string) ResourceRef {
	return ResourceRef{Kind: KindPath, Name: filepath.Clean(p)}
}

// RegistryKey returns a reference to a key subtree under hive.
// Forward slashes and surrounding separators in subpath are normalized.
func RegistryKey(hive Hive, subpath string) ResourceRef {
	sub := strings.ReplaceAll(subpath, "/", `\`)
	sub = strings.Trim(sub, `\`)
	return ResourceRef{Kind: KindRegistryKey, Hive: hive, Name: sub}
}

// Child returns the registry ref for the named direct child of r.
func (r ResourceRef) Child(name string) ResourceRef {
	return RegistryKey(r.Hive, r.Name+`\`+name)
}

// Validate reports whether the reference is well formed.
func (r ResourceRef) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty %s name", ErrInvalidRef, r.Kind)
	}
	switch r.Kind {
	case KindProcess, KindService:
		return nil
	case KindPath:
		if !filepath.IsAbs(r.Name) {
			return fmt.Errorf("%w: path %q is not absolute", ErrInvalidRef, r.Name)
		}
		return nil
	case KindRegistryKey:
		if _, err := ParseHive(string(r.Hive)); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidRef, r.Kind)
	}
}

// String renders the reference as "kind:name", with the hive prefixed for keys.
func (r ResourceRef) String() string {
	if r.Kind == KindRegistryKey {
		return fmt.Sprintf("%s:%s\\%s", r.Kind, r.Hive, r.Name)
	}
	return fmt.Sprintf("%s:%s", r.Kind, r.Name)
}

// ResourceSet is a named, ordered, immutable group of references.
// Protected sets are skipped by the deletion stages of a conservative run.
type ResourceSet struct {
	name      string
	protected bool
	refs      []ResourceRef
}

// NewResourceSet copies refs into a new set. Duplicate refs are dropped,
// keeping the first occurrence.
func NewResourceSet(name string, protected bool, refs ...ResourceRef) ResourceSet {
	seen := make(map[ResourceRef]struct{}, len(refs))
	out := make([]ResourceRef, 0, len(refs))
	for _, r := range refs {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return ResourceSet{name: name, protected: protected, refs: out}
}

// Name returns the set's name.
func (s ResourceSet) Name() string { return s.name }

// Protected reports whether the set is excluded from conservative deletion.
func (s ResourceSet) Protected() bool { return s.protected }

// Len returns the number of references.
func (s ResourceSet) Len() int { return len(s.refs) }

// Refs returns a copy of the references in declaration order.
func (s ResourceSet) Refs() []ResourceRef {
	out := make([]ResourceRef, len(s.refs))
	copy(out, s.refs)
	return out
}

// Of returns the references of the given kind in declaration order.
func (s ResourceSet) Of(kind Kind) []ResourceRef {
	var out []ResourceRef
	for _, r := range s.refs {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Names returns the Name field of every reference of the given kind.
func (s ResourceSet) Names(kind Kind) []string {
	var out []string
	for _, r := range s.refs {
		if r.Kind == kind {
			out = append(out, r.Name)
		}
	}
	return out
}

// Validate checks every reference in the set.
func (s ResourceSet) Validate() error {
	var errs []error
	for _, r := range s.refs {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("set %q: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
