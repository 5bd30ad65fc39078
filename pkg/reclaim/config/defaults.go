// Package config provides configuration management for reclaim.
package config

import "time"

// Default configuration values for reclaim.
const (
	// DefaultMode is the run mode used when none is given.
	DefaultMode = "conservative"

	// DefaultTargetsFile is the name of the targets file in the config dir.
	DefaultTargetsFile = "targets.yaml"

	// DefaultRetentionDays is how long run history is kept.
	DefaultRetentionDays = 30

	// DefaultWorkers bounds parallel deletions and terminations.
	DefaultWorkers = 4

	DefaultGracefulTimeout = 3 * time.Second
	DefaultForceTimeout    = 2 * time.Second
	DefaultCommandTimeout  = 10 * time.Second
	DefaultServiceTimeout  = 5 * time.Second
	DefaultSettleDelay     = 5 * time.Second
	DefaultRetryDelay      = 500 * time.Millisecond
)

// DefaultComponents holds the per-component log thresholds written by
// WriteDefault.
var DefaultComponents = map[string]string{
	"terminator": "info",
	"deleter":    "info",
	"sweeper":    "info",
	"pipeline":   "info",
	"history":    "warn",
}
