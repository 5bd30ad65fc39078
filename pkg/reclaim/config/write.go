package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteDefault writes a default config file and an example targets file
// into the config directory. Existing files are left alone. It returns the
// paths it wrote.
func WriteDefault() ([]string, error) {
	if err := EnsureConfigDir(); err != nil {
		return nil, err
	}
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}

	files := []struct {
		name    string
		content string
	}{
		{"config.yaml", defaultConfig()},
		{DefaultTargetsFile, exampleTargets},
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return written, fmt.Errorf("failed to check %s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func defaultConfig() string {
	return fmt.Sprintf(`# reclaim configuration

# Run mode when --mode is not given: conservative or complete
mode: %s

# Targets file (empty means %s next to this file)
targets: ""

engine:
  graceful_timeout: %s
  force_timeout: %s
  command_timeout: %s
  service_timeout: %s
  # Pause after terminating processes so handles are released
  settle_delay: %s
  # Delay before the single retry of a busy file
  retry_delay: %s
  workers: %d

# Run history
history:
  enabled: true
  # Empty means %s
  path: ""
  retention_days: %d

logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/reclaim/reclaim.log)
  path: ""
  # Mirror log lines at or above this level to stderr (empty disables)
  console: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  # Per-component log levels
  components:
    terminator: info
    deleter: info
    sweeper: info
    pipeline: info
    history: warn
`, DefaultMode, DefaultTargetsFile,
		DefaultGracefulTimeout, DefaultForceTimeout, DefaultCommandTimeout, DefaultServiceTimeout,
		DefaultSettleDelay, DefaultRetryDelay, DefaultWorkers,
		DefaultHistoryPath(), DefaultRetentionDays)
}

const exampleTargets = `# reclaim targets
#
# Sets group the processes, services, paths and registry keys that belong
# to one application. Stages run in order; each acts on the named sets, or
# on every set when "sets" is omitted. Paths may use $VAR or ${VAR}; an
# unset variable stops the file from loading.

bases:
  example:
    # Tried in order: registry value, environment variable, fallbacks.
    registry:
      hive: HKCU
      key: Software\ExampleVendor\ExampleApp
      value: InstallPath
    env: EXAMPLE_APP_HOME
    fallbacks:
      - ${HOME}/.local/share/example-app

sets:
  - name: example-app
    base: example
    processes:
      - example-app
    paths:
      - cache
      - logs
    registry:
      - hive: HKCU
        key: Software\ExampleVendor\ExampleApp\Cache

  - name: example-shared
    # Skipped by the deletion stages of a conservative run.
    protected: true
    base: example
    paths:
      - shared

stages:
  - name: terminate
    kind: terminate
  - name: remove-files
    kind: delete
  - name: remove-keys
    kind: registry
  - name: sweep-temp
    kind: sweep
    dirs:
      - ${HOME}/.cache
    keywords:
      - example-app
    patterns:
      - "example-*.tmp"
    protect:
      - "*.keep"
  - name: purge-scratch
    kind: purge
    complete_only: true
    dirs:
      - ${HOME}/.cache/example-app-scratch
`
