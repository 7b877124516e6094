// Command mobility runs the social-mobility agent simulation, either headless
// to completion or behind the HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mobility",
		Short: "Social mobility agent simulation",
		Long: `mobility simulates a population of agents born into Low, Middle or High
wealth. Each round every agent picks a task from the catalog based on how it
sees itself, succeeds or fails, and updates that self-image. Agents whose
outlook collapses drop out.

Run a simulation to completion with 'mobility run', or serve it over HTTP
with 'mobility serve'.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newServeCmd(),
		newTasksCmd(),
	)
	return rootCmd
}
