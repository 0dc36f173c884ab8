// Package cmd defines the CLI commands for the delver executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delver",
		Short: "A time-boxed autonomous web research crawler.",
		Long: `delver researches a topic under a wall-clock budget: it searches the
web, fetches and deduplicates candidate pages into a local database, then
drives a second bounded phase from a self-refilling queue of research
questions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus DELVER_* env vars)")

	cmd.AddCommand(newResearchCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newSummarizeCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
