package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockboxhq/lockbox/internal/cli"
	"github.com/lockboxhq/lockbox/internal/common"
	"github.com/lockboxhq/lockbox/internal/prompt"
)

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback <result-id>",
		Short: "Rate a detection result",
		Long: `Attach your judgment to a previously recorded AI result. Each result
accepts feedback exactly once; the ratings feed the per-version prompt
accuracy report.

Examples:
  lockbox feedback 4f7cbe31-09... --outcome correct
  lockbox feedback 4f7cbe31-09... --outcome incorrect --score 2`,
		Args: cobra.ExactArgs(1),
		RunE: runFeedback,
	}

	cmd.Flags().String("outcome", "", "correct or incorrect (required)")
	cmd.Flags().Float64("score", 0, "Optional quality score from 1 (poor) to 5 (excellent)")
	_ = cmd.MarkFlagRequired("outcome")

	return cmd
}

func runFeedback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	resultID := args[0]
	outcome, _ := cmd.Flags().GetString("outcome")

	var score *float64
	if cmd.Flags().Changed("score") {
		v, _ := cmd.Flags().GetFloat64("score")
		score = &v
	}

	registry, cleanup, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	err = registry.UpdateOutcome(ctx, resultID, prompt.Outcome(outcome), score)
	switch {
	case errors.Is(err, prompt.ErrOutcomeFinal):
		return fmt.Errorf("result %s already has feedback; each result can be rated once", resultID)
	case errors.Is(err, common.ErrNotFound):
		return fmt.Errorf("no recorded result with id %s", resultID)
	case err != nil:
		return fmt.Errorf("failed to record feedback: %w", err)
	}

	fmt.Println(cli.FormatSuccess("Feedback recorded for " + resultID))
	return nil
}
