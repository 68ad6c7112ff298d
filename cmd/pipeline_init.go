package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/review-pulse/internal/pipeline"
	"github.com/sells-group/review-pulse/internal/store"
	"github.com/sells-group/review-pulse/pkg/appstore"
	"github.com/sells-group/review-pulse/pkg/llm"
	"github.com/sells-group/review-pulse/pkg/notion"
	"github.com/sells-group/review-pulse/pkg/playstore"
	"github.com/sells-group/review-pulse/pkg/resend"
)

// pipelineEnv holds the initialized store and pipeline shared by the
// commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store and the configured API clients and builds
// the Pipeline. Clients without configuration stay nil and the pipeline
// degrades per phase: fetch skips missing stores, delivery skips missing
// channels. When withDelivery is false the delivery clients are never
// built, so a run cannot send anything. Callers should defer env.Close().
func initPipeline(ctx context.Context, withDelivery bool) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var aiClient llm.Client
	if cfg.LLM.Key() != "" {
		aiClient, err = llm.New(ctx, cfg.LLM.Provider, cfg.LLM.Key(), cfg.LLM.Model())
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	playClient := playstore.NewClient()
	appClient := appstore.NewClient()

	var mailClient resend.Client
	var notionClient notion.Client
	if withDelivery {
		if cfg.Email.ResendKey != "" {
			mailClient = resend.NewClient(cfg.Email.ResendKey)
		}
		if cfg.Notion.Token != "" {
			notionClient = notion.NewClient(cfg.Notion.Token)
		}
	}

	p := pipeline.New(cfg, st, aiClient, playClient, appClient, mailClient, notionClient)

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}

// requireLLMKey fails fast when an LLM-dependent command has no API key,
// before any fetching starts.
func requireLLMKey() error {
	if cfg.LLM.Key() != "" {
		return nil
	}
	if cfg.LLM.Provider == "gemini" {
		return eris.New("missing LLM API key: set PULSE_LLM_GEMINI_KEY (or use run --offline for stub mode)")
	}
	return eris.New("missing LLM API key: set PULSE_LLM_ANTHROPIC_KEY (or use run --offline for stub mode)")
}

// warnUnconfiguredSources logs when neither store app ID is set. The
// pipeline would still run against previously ingested reviews.
func warnUnconfiguredSources() {
	if cfg.Apps.PlayStoreID == "" && cfg.Apps.AppStoreID == "" {
		zap.L().Warn("no app IDs configured, nothing will be fetched",
			zap.String("hint", "set PULSE_APPS_PLAY_STORE_ID and/or PULSE_APPS_APP_STORE_ID"),
		)
	}
}
