package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newResearchCmd() *cobra.Command {
	var (
		initialBudget time.Duration
		deepBudget    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "research <topic>",
		Short: "Run a full time-boxed research session on a topic",
		Long: `Runs both research phases for the topic: an initial phase that seeds
the database from broad queries, then a deep phase driven by the question
queue. Budgets are wall-clock bounds; a phase stops scheduling new work once
its budget expires.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(cfgFile)
			if err != nil {
				return err
			}
			defer app.Close()

			if initialBudget <= 0 {
				initialBudget = app.cfg.InitialBudget()
			}
			if deepBudget <= 0 {
				deepBudget = app.cfg.DeepBudget()
			}

			report, err := app.orch.Run(cmd.Context(), args[0], initialBudget, deepBudget)
			if err != nil {
				return fmt.Errorf("research run: %w", err)
			}
			app.logger.Info("run complete",
				zap.String("run_id", report.RunID),
				zap.Int("documents", report.Documents),
				zap.Int("snippets", report.Snippets),
				zap.Int("questions_asked", report.QuestionsAsked),
			)
			fmt.Printf("Researched %q: %d documents, %d snippets, %d questions asked\n",
				report.Topic, report.Documents, report.Snippets, report.QuestionsAsked)
			return nil
		},
	}
	cmd.Flags().DurationVar(&initialBudget, "initial", 0, "initial phase budget (e.g. 2m)")
	cmd.Flags().DurationVar(&deepBudget, "deep", 0, "deep phase budget (e.g. 5m)")
	return cmd
}
