package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/reclaim/pkg/reclaim/platform"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stages in the targets file",
	Long: `Run every stage of the targets file in order.

Without --yes the plan is printed and nothing is changed. A run that
finishes with per-target errors exits with status 2; a targets file that
cannot be turned into a plan exits with status 1.

Modes:
  conservative  protected sets are terminated but not deleted, and
                complete-only stages are skipped
  complete      every set and every stage`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolP("yes", "y", false, "act on the plan instead of printing it")
	runCmd.Flags().BoolP("dry-run", "d", false, "print the plan even when --yes is given")

	_ = viper.BindPFlag("yes", runCmd.Flags().Lookup("yes"))
	_ = viper.BindPFlag("dry_run", runCmd.Flags().Lookup("dry-run"))

	rootCmd.AddCommand(runCmd)
}

// runRun executes the plan against the local host.
func runRun(cmd *cobra.Command, args []string) error {
	opts := runOptions{
		Mode:   viper.GetString("mode"),
		Output: viper.GetString("output"),
		Yes:    viper.GetBool("yes"),
		DryRun: viper.GetBool("dry_run"),
	}
	printVerbose("mode=%s yes=%t dry-run=%t", opts.Mode, opts.Yes, opts.DryRun)

	report, err := execute(cmd.Context(), cfg, platform.NewHost(), opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if !report.Executed && !opts.DryRun {
		printInfo("\nNothing was changed. Re-run with --yes to act on this plan.")
	}
	return nil
}
