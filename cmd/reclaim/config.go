package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/reclaim/pkg/reclaim/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage reclaim configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/reclaim/config.yaml (if set)
  2. ~/.config/reclaim/config.yaml

Environment variables can override config file settings using the RECLAIM_ prefix:
  RECLAIM_MODE=complete
  RECLAIM_ENGINE_WORKERS=8
  RECLAIM_HISTORY_ENABLED=false`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after defaults, file and environment.`,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration and targets files",
	Long: `Create config.yaml and an example targets.yaml in the configuration
directory. Existing files are left untouched.`,
	RunE: runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file paths",
	Long:  `Display the config file, targets file and history paths in use.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// envOverrides lists the RECLAIM_ variables that are set.
var envOverrides = []string{
	"RECLAIM_MODE",
	"RECLAIM_TARGETS",
	"RECLAIM_ENGINE_GRACEFUL_TIMEOUT",
	"RECLAIM_ENGINE_FORCE_TIMEOUT",
	"RECLAIM_ENGINE_SETTLE_DELAY",
	"RECLAIM_ENGINE_WORKERS",
	"RECLAIM_HISTORY_ENABLED",
	"RECLAIM_HISTORY_PATH",
	"RECLAIM_HISTORY_RETENTION_DAYS",
	"RECLAIM_LOGGING_LEVEL",
	"RECLAIM_LOGGING_PATH",
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if cfg.File != "" {
		fmt.Fprintf(w, "# Config file: %s\n", cfg.File)
	} else {
		fmt.Fprintln(w, "# Config file: (using defaults, no file found)")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	fmt.Fprint(w, string(data))

	var set []string
	for _, name := range envOverrides {
		if val := os.Getenv(name); val != "" {
			set = append(set, fmt.Sprintf("%s=%s", name, val))
		}
	}
	if len(set) > 0 {
		fmt.Fprintln(w, "\n# Environment overrides:")
		for _, s := range set {
			fmt.Fprintf(w, "#   %s\n", s)
		}
	}
	return nil
}

// runConfigInit creates the default files.
func runConfigInit(cmd *cobra.Command, args []string) error {
	written, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config files: %w", err)
	}

	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	if len(written) == 0 {
		printInfo("Config files already exist in %s", dir)
		return nil
	}
	for _, path := range written {
		printInfo("Created %s", path)
	}
	printInfo("Edit %s to declare what reclaim should remove.", filepath.Join(dir, config.DefaultTargetsFile))
	return nil
}

// runConfigPath shows the paths in use.
func runConfigPath(cmd *cobra.Command, args []string) error {
	dir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	configPath := cfg.File
	if configPath == "" {
		configPath = filepath.Join(dir, "config.yaml")
	}
	targets, err := cfg.TargetsPath()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "config:  %s\n", configPath)
	fmt.Fprintf(w, "targets: %s\n", targets)
	fmt.Fprintf(w, "history: %s\n", cfg.HistoryPath())

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		printVerbose("config file does not exist (using defaults)")
	}
	return nil
}
