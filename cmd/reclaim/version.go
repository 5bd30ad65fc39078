package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build-time variables set by go build -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version, commit hash, and build date of reclaim.`,
	// Version needs no configuration.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run:               runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// runVersion prints version information.
func runVersion(cmd *cobra.Command, args []string) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "reclaim %s\n", version)
	fmt.Fprintf(w, "  commit:  %s\n", commit)
	fmt.Fprintf(w, "  built:   %s\n", date)
	fmt.Fprintf(w, "  go:      %s\n", runtime.Version())
	fmt.Fprintf(w, "  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
