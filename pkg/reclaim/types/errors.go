package types

import (
	"errors"
	"io/fs"
)

var (
	// ErrNotFound is returned by capabilities when the named resource does
	// not exist. It classifies as ClassAbsent.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported is returned by capabilities that have no implementation
	// on the current platform.
	ErrUnsupported = errors.New("not supported on this platform")

	// ErrStructural marks a failure of an intermediate step, such as
	// enumerating the children of a key, that has a fallback branch.
	ErrStructural = errors.New("structural failure")

	// ErrDriver marks a failure that prevents a whole stage or set from
	// being processed, such as an unresolvable base path.
	ErrDriver = errors.New("driver failure")
)

// ErrorClass is the taxonomy every per-target failure is mapped into.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassAbsent
	ClassTransientBusy
	ClassPermissionDenied
	ClassStructural
	ClassDriver
	ClassOther
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassAbsent:
		return "absent"
	case ClassTransientBusy:
		return "busy"
	case ClassPermissionDenied:
		return "permission denied"
	case ClassStructural:
		return "structural"
	case ClassDriver:
		return "driver"
	default:
		return "other"
	}
}

// Retryable reports whether a single retry may succeed.
func (c ErrorClass) Retryable() bool {
	return c == ClassTransientBusy
}

// Classify maps err into the error taxonomy.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ClassAbsent
	case errors.Is(err, ErrDriver):
		return ClassDriver
	case errors.Is(err, ErrStructural):
		return ClassStructural
	case errors.Is(err, fs.ErrPermission):
		return ClassPermissionDenied
	case isBusy(err):
		return ClassTransientBusy
	default:
		return ClassOther
	}
}

// IsAbsent is shorthand for Classify(err) == ClassAbsent.
func IsAbsent(err error) bool {
	return err != nil && Classify(err) == ClassAbsent
}
