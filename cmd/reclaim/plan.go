package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/reclaim/pkg/reclaim/platform"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the stages and targets a run would act on",
	Long: `Resolve the targets file for the selected mode and print every stage with
its targets. Base paths are resolved against the local host, so the
listing shows the directories a run would delete.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

// runPlan prints the plan without acting on it.
func runPlan(cmd *cobra.Command, args []string) error {
	_, err := execute(cmd.Context(), cfg, platform.NewHost(), runOptions{
		Mode:   viper.GetString("mode"),
		Output: viper.GetString("output"),
		DryRun: true,
	}, cmd.OutOrStdout())
	return err
}
