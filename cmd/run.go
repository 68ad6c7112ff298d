package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/review-pulse/internal/model"
	"github.com/sells-group/review-pulse/internal/pipeline"
	"github.com/sells-group/review-pulse/internal/report"
	"github.com/sells-group/review-pulse/internal/store"
)

var (
	runOffline bool
	runDryRun  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full weekly pulse",
	Long: `Runs the complete pipeline: fetch reviews from both stores, redact and
persist them, discover themes, classify every review in the window,
assemble the pulse and deliver it to the configured channels.

Supports two modes:
  - Real API mode (default): live store endpoints and the configured LLM
  - Offline mode (--offline): stub clients, no API keys needed

Examples:
  # Full weekly run, delivered to the configured channels
  pulse run

  # Analyze and print the report without sending anything
  pulse run --dry-run

  # Full pipeline against canned reviews and a canned model (no keys)
  pulse run --offline --dry-run`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if !runOffline {
			if err := requireLLMKey(); err != nil {
				return err
			}
			warnUnconfiguredSources()
		}

		var (
			env *pipelineEnv
			err error
		)
		if runOffline {
			env, err = initOfflinePipeline(ctx, !runDryRun)
		} else {
			env, err = initPipeline(ctx, !runDryRun)
		}
		if err != nil {
			return eris.Wrap(err, "run: init pipeline")
		}
		defer env.Close()

		run, summary, err := env.Pipeline.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "run: pipeline")
		}

		logRunResult(run)

		if runDryRun {
			fmt.Fprintln(os.Stdout, report.Markdown(cfg.Product, *summary))
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "use stub clients (no API keys needed)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "skip delivery and print the markdown report")
	rootCmd.AddCommand(runCmd)
}

// initOfflinePipeline builds a pipeline backed by SQLite and stub clients.
// Stub delivery clients are still gated by withDelivery so --dry-run means
// the same thing in both modes.
func initOfflinePipeline(ctx context.Context, withDelivery bool) (*pipelineEnv, error) {
	dsn := cfg.Store.Path
	if dsn == "" {
		dsn = "pulse.db"
	}
	st, err := store.NewSQLite(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "run: init sqlite store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "run: migrate store")
	}

	var p *pipeline.Pipeline
	if withDelivery {
		p = pipeline.New(cfg, st,
			&pipeline.StubLLMClient{},
			&pipeline.StubPlayStoreClient{},
			&pipeline.StubAppStoreClient{},
			&pipeline.StubResendClient{},
			&pipeline.StubNotionClient{},
		)
	} else {
		p = pipeline.New(cfg, st,
			&pipeline.StubLLMClient{},
			&pipeline.StubPlayStoreClient{},
			&pipeline.StubAppStoreClient{},
			nil,
			nil,
		)
	}

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}

// logRunResult logs a per-phase summary and the final run metrics.
func logRunResult(run *model.RunRecord) {
	log := zap.L().With(zap.String("run_id", run.ID))

	for _, phase := range run.Phases {
		log.Info("phase",
			zap.String("name", phase.Name),
			zap.String("status", string(phase.Status)),
			zap.Int64("duration_ms", phase.Duration),
		)
	}

	log.Info("run finished",
		zap.String("status", string(run.Status)),
		zap.Int("ingested", run.Stats.Ingested),
		zap.Int("classified", run.Stats.Classified),
		zap.Int("fallback_themed", run.Stats.FallbackThemed),
		zap.Int("tokens", run.Usage.InputTokens+run.Usage.OutputTokens),
		zap.Float64("cost_usd", run.Usage.Cost),
	)
}
