package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pulseDeliver bool

var pulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Rebuild the pulse from stored classifications",
	Long: `Assembles the weekly pulse from the classifications already in the store
and prints the markdown report. No store fetches and no re-classification;
action generation uses the configured LLM when available and falls back to
templates otherwise. With --deliver the report also goes out to the
configured channels.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, pulseDeliver)
		if err != nil {
			return eris.Wrap(err, "pulse: init pipeline")
		}
		defer env.Close()

		p, err := env.Pipeline.Rebuild(ctx, pulseDeliver)
		if err != nil {
			return eris.Wrap(err, "pulse: rebuild")
		}

		zap.L().Info("pulse rebuilt",
			zap.String("pulse_id", p.ID),
			zap.String("run_id", p.RunID),
			zap.Int("reviews", p.Summary.TotalReviews),
			zap.Int("with_issues", p.Summary.ReviewsWithIssues),
		)

		fmt.Fprintln(os.Stdout, p.Markdown)
		return nil
	},
}

func init() {
	pulseCmd.Flags().BoolVar(&pulseDeliver, "deliver", false, "send the rebuilt pulse to the configured channels")
	rootCmd.AddCommand(pulseCmd)
}
