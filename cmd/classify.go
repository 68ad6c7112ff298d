package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify the stored window against the latest theme set",
	Long:  "Re-classifies every persisted review in the window using the most recently discovered themes. Requires a prior run or themes preview that persisted a theme set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := requireLLMKey(); err != nil {
			return err
		}

		env, err := initPipeline(ctx, false)
		if err != nil {
			return eris.Wrap(err, "classify: init pipeline")
		}
		defer env.Close()

		run, err := env.Pipeline.ClassifyStored(ctx)
		if err != nil {
			return eris.Wrap(err, "classify")
		}

		zap.L().Info("classification complete",
			zap.String("run_id", run.ID),
			zap.Int("classified", run.Stats.Classified),
			zap.Int("fallback_themed", run.Stats.FallbackThemed),
			zap.Int("no_issue", run.Stats.NoIssue),
			zap.Float64("cost_usd", run.Usage.Cost),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run.Stats)
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
