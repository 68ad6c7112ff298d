package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch and persist reviews without analyzing them",
	Long:  "Fetches recent reviews from the configured stores, redacts and deduplicates them, and persists the window. No LLM calls are made.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		warnUnconfiguredSources()

		env, err := initPipeline(ctx, false)
		if err != nil {
			return eris.Wrap(err, "ingest: init pipeline")
		}
		defer env.Close()

		out, err := env.Pipeline.RunIngest(ctx)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		zap.L().Info("ingest complete",
			zap.Time("window_start", out.Window.Start),
			zap.Time("window_end", out.Window.End),
			zap.Int("persisted", out.Persisted),
			zap.Int("duplicates_dropped", out.Stats.DuplicatesDropped),
			zap.Int("skipped_malformed", out.Stats.SkippedMalformed),
			zap.Int("outside_window", out.Stats.OutsideWindow),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
