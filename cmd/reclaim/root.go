package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/reclaim/pkg/reclaim/config"
	"github.com/jamesainslie/reclaim/pkg/reclaim/logging"
)

// errPartial marks a run that finished with per-target errors.
var errPartial = errors.New("run finished with errors")

var (
	cfgFile string
	cfg     *config.Config
	rootCmd = &cobra.Command{
		Use:   "reclaim",
		Short: "Stop, delete and sweep what an application leaves behind",
		Long: `Reclaim runs an ordered list of stages against the resources declared in a
targets file: it terminates processes, stops and deletes services, removes
files, directories and registry keys, and sweeps directories for leftovers.

Every stage runs even when an earlier one failed. Missing targets are not
errors, so running reclaim twice is safe.

Examples:
  reclaim plan                    # Show what would be done
  reclaim run --yes               # Run in conservative mode
  reclaim run --mode complete -y  # Include protected sets and complete-only stages
  reclaim run -y -o json          # Machine-readable report
  reclaim history                 # List previous runs
  reclaim config init             # Write example config and targets files`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logging.Close() },
	}
)

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/reclaim/config.yaml)")
	rootCmd.PersistentFlags().StringP("mode", "m", "", "run mode: conservative or complete (default from config)")
	rootCmd.PersistentFlags().StringP("output", "o", "pretty", "output format: pretty, plain, json or yaml")
	rootCmd.PersistentFlags().StringP("targets", "t", "", "targets file (default: ~/.config/reclaim/targets.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log to the console at debug level")

	// Bind flags to viper
	_ = viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("targets", rootCmd.PersistentFlags().Lookup("targets"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// setup loads the configuration and starts logging before any subcommand.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadFile(cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	// Flags win over the config file when given.
	viper.SetDefault("mode", cfg.Mode)
	if t := viper.GetString("targets"); t != "" {
		if cfg.Targets, err = config.ExpandPath(t); err != nil {
			return err
		}
	}

	logCfg, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}
	if getVerbose() {
		logCfg.ConsoleLevel = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	printVerbose("config file: %s", cfg.File)
	return nil
}

// Execute runs the root command. Interrupts cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errPartial) {
		printError("%v", err)
	}
	return err
}

// exitCode maps a command error to the process exit status: 2 for a run
// with per-target errors, 1 for anything that kept a command from working.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errPartial):
		return 2
	default:
		return 1
	}
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message to stderr if quiet mode is not enabled. Reports
// go to stdout, so hints never mix with json or yaml output.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
