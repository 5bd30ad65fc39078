// Package types provides the core data types for the reclaim engine.
// It includes resource descriptors, per-target outcomes, the error taxonomy
// used to classify removal failures, and helpers for parsing and formatting
// byte sizes.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// Outcome is the terminal result of processing one target.
// Every processed target yields exactly one outcome.
type Outcome int

const (
	// OutcomeDeleted means the target existed and was removed or terminated.
	OutcomeDeleted Outcome = iota + 1
	// OutcomeAbsent means the target did not exist. It is not an error.
	OutcomeAbsent
	// OutcomeFailed means the target existed but could not be removed.
	OutcomeFailed
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeDeleted:
		return "deleted"
	case OutcomeAbsent:
		return "absent"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so outcomes serialize by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "deleted":
		*o = OutcomeDeleted
	case "absent":
		*o = OutcomeAbsent
	case "failed":
		*o = OutcomeFailed
	default:
		return fmt.Errorf("unknown outcome %q", string(b))
	}
	return nil
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB", etc.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string such as "10MB", "512K" or
// "1.5GiB" and returns the size in bytes. Units are binary.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	unit := strings.ToUpper(matches[2])
	unit = strings.TrimSuffix(unit, "IB")
	unit = strings.TrimSuffix(unit, "B")

	var multiplier int64
	switch unit {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, unit)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a byte count to a human-readable string using binary
// units, e.g. FormatSize(1536*1024) returns "1.5 MiB".
func FormatSize(bytes uint64) string {
	return humanize.IBytes(bytes)
}
