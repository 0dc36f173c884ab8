package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize <topic>",
		Short: "Summarize what has been stored for a topic",
		Long: `Builds a summary of the topic from the most recently stored documents.
Uses the configured LLM when an API key is set, otherwise a deterministic
digest of document excerpts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(cfgFile)
			if err != nil {
				return err
			}
			defer app.Close()

			summary, err := app.orch.Summarize(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}
			fmt.Println(summary)
			return nil
		},
	}
	return cmd
}
