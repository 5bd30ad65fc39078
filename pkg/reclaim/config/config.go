package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/reclaim/pkg/reclaim/logging"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Daily      bool   `mapstructure:"daily" yaml:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level"`
	Path       string            `mapstructure:"path" yaml:"path"`
	Console    string            `mapstructure:"console" yaml:"console"`
	Rotation   RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components map[string]string `mapstructure:"components" yaml:"components"`
}

// EngineConfig tunes termination and deletion.
type EngineConfig struct {
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout" yaml:"graceful_timeout"`
	ForceTimeout    time.Duration `mapstructure:"force_timeout" yaml:"force_timeout"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	ServiceTimeout  time.Duration `mapstructure:"service_timeout" yaml:"service_timeout"`
	SettleDelay     time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	Workers         int           `mapstructure:"workers" yaml:"workers"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Path          string `mapstructure:"path" yaml:"path"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

// Config represents the application configuration.
type Config struct {
	Mode    string        `mapstructure:"mode" yaml:"mode"`
	Targets string        `mapstructure:"targets" yaml:"targets"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/reclaim/config.yaml
//   - $HOME/.config/reclaim/config.yaml
//
// Environment variables are prefixed with RECLAIM_ (e.g. RECLAIM_MODE,
// RECLAIM_ENGINE_WORKERS).
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations, and a missing file there is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
			v.AddConfigPath(filepath.Join(dir, "reclaim"))
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", "reclaim"))
	}

	v.SetEnvPrefix("RECLAIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	var err error
	if cfg.Targets, err = ExpandPath(cfg.Targets); err != nil {
		return nil, err
	}
	if cfg.History.Path, err = ExpandPath(cfg.History.Path); err != nil {
		return nil, err
	}
	if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", DefaultMode)
	v.SetDefault("targets", "") // Empty means ConfigDir()/targets.yaml

	v.SetDefault("engine.graceful_timeout", DefaultGracefulTimeout)
	v.SetDefault("engine.force_timeout", DefaultForceTimeout)
	v.SetDefault("engine.command_timeout", DefaultCommandTimeout)
	v.SetDefault("engine.service_timeout", DefaultServiceTimeout)
	v.SetDefault("engine.settle_delay", DefaultSettleDelay)
	v.SetDefault("engine.retry_delay", DefaultRetryDelay)
	v.SetDefault("engine.workers", DefaultWorkers)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "") // Empty means DefaultHistoryPath
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.console", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{})
}

// LoggingConfig converts the logging section for logging.Init.
func (c *Config) LoggingConfig() (logging.Config, error) {
	out := logging.Config{
		Level:        c.Logging.Level,
		Path:         c.Logging.Path,
		ConsoleLevel: c.Logging.Console,
		Components:   c.Logging.Components,
		Rotation: logging.RotationConfig{
			MaxAge:     c.Logging.Rotation.MaxAge,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			Daily:      c.Logging.Rotation.Daily,
		},
	}
	if s := c.Logging.Rotation.MaxSize; s != "" {
		n, err := types.ParseSize(s)
		if err != nil {
			return logging.Config{}, fmt.Errorf("logging.rotation.max_size: %w", err)
		}
		out.Rotation.MaxSize = n
	}
	if out.Path == "" {
		out.Path = logging.DefaultLogPath()
	}
	return out, nil
}

// TargetsPath returns the targets file to load.
func (c *Config) TargetsPath() (string, error) {
	if c.Targets != "" {
		return c.Targets, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultTargetsFile), nil
}

// HistoryPath returns the history database directory.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return DefaultHistoryPath()
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "reclaim"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "reclaim"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/reclaim/ for the history database.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "reclaim")
}

// StateDir returns $XDG_STATE_HOME/reclaim/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "reclaim")
}

// DefaultHistoryPath returns the default history database directory.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}
