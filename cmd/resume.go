package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	var deepBudget time.Duration
	cmd := &cobra.Command{
		Use:   "resume <topic>",
		Short: "Resume deep research on an existing topic",
		Long: `Re-enters the deep-research phase for a topic that was researched
before. Stored documents and questions are kept; dispatched questions left
over from an interrupted run are reclaimed first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(cfgFile)
			if err != nil {
				return err
			}
			defer app.Close()

			if deepBudget <= 0 {
				deepBudget = app.cfg.DeepBudget()
			}
			report, err := app.orch.Resume(cmd.Context(), args[0], deepBudget)
			if err != nil {
				return fmt.Errorf("resume run: %w", err)
			}
			fmt.Printf("Resumed %q: %d documents, %d questions asked\n",
				report.Topic, report.Documents, report.QuestionsAsked)
			return nil
		},
	}
	cmd.Flags().DurationVar(&deepBudget, "deep", 0, "deep phase budget (e.g. 5m)")
	return cmd
}
