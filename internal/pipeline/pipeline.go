// Package pipeline orchestrates the weekly pulse run: fetch reviews from
// the app stores, normalize and persist them, discover themes, classify
// every review in the window, assemble the pulse and deliver it.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/review-pulse/internal/config"
	"github.com/sells-group/review-pulse/internal/cost"
	"github.com/sells-group/review-pulse/internal/model"
	"github.com/sells-group/review-pulse/internal/report"
	"github.com/sells-group/review-pulse/internal/resilience"
	"github.com/sells-group/review-pulse/internal/store"
	"github.com/sells-group/review-pulse/pkg/appstore"
	"github.com/sells-group/review-pulse/pkg/llm"
	"github.com/sells-group/review-pulse/pkg/notion"
	"github.com/sells-group/review-pulse/pkg/playstore"
	"github.com/sells-group/review-pulse/pkg/resend"
)

// Pipeline wires the pulse phases to their external dependencies. Any
// client may be nil: fetch skips missing stores, delivery skips missing
// channels, and the LLM-dependent phases fail the run with a config error
// only after ingestion has persisted.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	llm       llm.Client
	playStore playstore.Client
	appStore  appstore.Client
	resend    resend.Client
	notion    notion.Client
	costCalc  *cost.Calculator
	retry     resilience.RetryConfig
}

// New creates a new Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	aiClient llm.Client,
	playClient playstore.Client,
	appClient appstore.Client,
	mailClient resend.Client,
	notionClient notion.Client,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		llm:       aiClient,
		playStore: playClient,
		appStore:  appClient,
		resend:    mailClient,
		notion:    notionClient,
		costCalc:  cost.NewCalculator(ratesFrom(cfg.Pricing)),
		retry: resilience.FromRetryConfig(
			cfg.Retry.MaxAttempts,
			cfg.Retry.InitialBackoffMs,
			cfg.Retry.MaxBackoffMs,
			cfg.Retry.Multiplier,
			cfg.Retry.JitterFraction,
		),
	}
}

// Run executes one full pulse run: fetch, ingest, discover, classify,
// assemble, report. The run record is persisted at every phase boundary so
// an aborted run shows where it stopped.
func (p *Pipeline) Run(ctx context.Context) (*model.RunRecord, *model.PulseSummary, error) {
	window := p.window()
	run := &model.RunRecord{
		ID:     uuid.New().String(),
		Period: window,
		Status: model.RunStatusQueued,
	}

	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting pulse run",
		zap.Time("window_start", window.Start),
		zap.Time("window_end", window.End),
	)

	if err := p.store.SaveRun(ctx, run); err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: create run")
	}

	// Status update helper.
	setStatus := func(status model.RunStatus) {
		run.Status = status
		if statusErr := p.store.SaveRun(ctx, run); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	// Phase tracking helper: measure, record, persist, log.
	runPhase := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		duration := time.Since(start).Milliseconds()

		pr := model.PhaseResult{Name: name, Status: model.PhaseStatusComplete, Duration: duration}
		if err != nil {
			pr.Status = model.PhaseStatusFailed
			pr.Error = err.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
		} else {
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
			)
		}

		run.Phases = append(run.Phases, pr)
		if saveErr := p.store.SaveRun(ctx, run); saveErr != nil {
			log.Warn("pipeline: failed to save phase", zap.String("phase", name), zap.Error(saveErr))
		}
		return err
	}

	fail := func(err error) (*model.RunRecord, *model.PulseSummary, error) {
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		if saveErr := p.store.SaveRun(ctx, run); saveErr != nil {
			log.Warn("pipeline: failed to save failed run", zap.Error(saveErr))
		}
		return run, nil, err
	}

	var usage model.TokenUsage

	// ===== Fetch =====
	setStatus(model.RunStatusFetching)
	var raw []model.RawReview

	if err := runPhase("fetch", func() error {
		raw = FetchPhase(ctx, p.cfg.Apps, p.playStore, p.appStore, p.retry, &run.Stats)
		if len(raw) == 0 && len(run.Stats.FetchFailures) > 0 {
			return resilience.Classify(resilience.KindFetch, eris.New("pipeline: all review sources failed"))
		}
		return nil
	}); err != nil {
		return fail(err)
	}

	// ===== Ingest =====
	setStatus(model.RunStatusIngesting)

	if err := runPhase("ingest", func() error {
		res := Ingest(raw, window)
		run.Stats.SkippedMalformed += res.SkippedMalformed
		run.Stats.OutsideWindow += res.OutsideWindow
		run.Stats.DuplicatesDropped += res.DuplicatesDropped

		inserted, upsertErr := p.store.UpsertReviews(ctx, res.Reviews)
		if upsertErr != nil {
			return eris.Wrap(upsertErr, "pipeline: persist reviews")
		}
		run.Stats.DuplicatesDropped += len(res.Reviews) - inserted
		run.Stats.Ingested = inserted
		return nil
	}); err != nil {
		return fail(err)
	}

	// The analysis covers every persisted review in the window, not just
	// this fetch, so overlapping runs converge on the same input set.
	reviews, err := p.loadWindow(ctx, window)
	if err != nil {
		return fail(err)
	}
	log.Info("pipeline: window loaded", zap.Int("reviews", len(reviews)))

	// ===== Discover =====
	setStatus(model.RunStatusDiscovering)
	var themes []model.Theme

	if err := runPhase("discover", func() error {
		if p.llm == nil {
			return resilience.Classify(resilience.KindConfig, eris.New("pipeline: no llm client configured"))
		}
		discovered, fellBack, dUsage, dErr := DiscoverThemes(ctx, p.llm, p.cfg.Product, reviews,
			p.cfg.Pulse.MaxThemes, p.cfg.Pulse.SampleCap, p.retry)
		usage.Add(dUsage)
		if dErr != nil {
			return dErr
		}
		themes = discovered
		run.Stats.DiscoveryFellBack = fellBack

		return p.store.SaveThemes(ctx, run.ID, append(discovered, model.ReservedTheme()))
	}); err != nil {
		return fail(err)
	}

	// ===== Classify =====
	setStatus(model.RunStatusClassifying)
	var classified []model.ClassifiedReview

	if err := runPhase("classify", func() error {
		cls, cStats, cUsage, cErr := ClassifyPhase(ctx, p.llm, p.store, run.ID, p.cfg.Product, reviews, themes, ClassifyOptions{
			BatchSize:   p.cfg.Pulse.BatchSize,
			Concurrency: p.cfg.Pulse.Concurrency,
			Retry:       p.retry,
		})
		usage.Add(cUsage)
		if cErr != nil {
			return cErr
		}
		classified = cls
		run.Stats.Classified = cStats.Classified
		run.Stats.FallbackThemed = cStats.FallbackThemed
		run.Stats.NoIssue = cStats.NoIssue
		return nil
	}); err != nil {
		return fail(err)
	}

	// ===== Assemble =====
	setStatus(model.RunStatusAssembling)
	var summary model.PulseSummary

	_ = runPhase("assemble", func() error {
		summary = Assemble(classified, window, p.cfg.Pulse.TopThemes, p.cfg.Pulse.QuotesPerTheme)

		actions, aUsage := GenerateActions(ctx, p.llm, p.cfg.Product, summary.Themes, p.actionTemplates(), p.retry)
		usage.Add(aUsage)
		summary.Actions = actions
		summary.Stats = run.Stats
		return nil
	})

	// ===== Report =====
	setStatus(model.RunStatusReporting)
	var delivery DeliveryResult

	if err := runPhase("report", func() error {
		markdown := report.Markdown(p.cfg.Product, summary)
		if _, saveErr := p.store.SavePulse(ctx, run.ID, &summary, markdown); saveErr != nil {
			return eris.Wrap(saveErr, "pipeline: save pulse")
		}
		delivery = DeliverPhase(ctx, p.resend, p.notion, p.cfg.Email, p.cfg.Notion, p.cfg.Product, summary)
		return nil
	}); err != nil {
		return fail(err)
	}

	// Finalize.
	usage.Cost = p.costCalc.Provider(p.cfg.LLM.Provider, p.cfg.LLM.Model(),
		int64(usage.InputTokens), int64(usage.OutputTokens))
	run.Usage = usage
	run.Status = model.RunStatusComplete
	if saveErr := p.store.SaveRun(ctx, run); saveErr != nil {
		log.Warn("pipeline: failed to save run", zap.Error(saveErr))
	}

	log.Info("pipeline: pulse run complete",
		zap.Int("reviews", summary.TotalReviews),
		zap.Int("with_issues", summary.ReviewsWithIssues),
		zap.Int("themes", len(summary.Themes)),
		zap.Bool("delivered", delivery.Delivered()),
		zap.Int("tokens", usage.InputTokens+usage.OutputTokens),
		zap.Float64("cost_usd", usage.Cost),
	)

	return run, &summary, nil
}

// IngestOutcome reports what a standalone ingest did.
type IngestOutcome struct {
	Window    model.Window
	Stats     model.RunStats
	Persisted int
}

// RunIngest fetches and persists reviews without running analysis: the
// fetch and ingest phases of Run as a standalone operation, recorded as its
// own run so the bookkeeping stays queryable.
func (p *Pipeline) RunIngest(ctx context.Context) (*IngestOutcome, error) {
	window := p.window()
	run := &model.RunRecord{
		ID:     uuid.New().String(),
		Period: window,
		Status: model.RunStatusFetching,
	}
	log := zap.L().With(zap.String("run_id", run.ID))

	if err := p.store.SaveRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	raw := FetchPhase(ctx, p.cfg.Apps, p.playStore, p.appStore, p.retry, &run.Stats)
	if len(raw) == 0 && len(run.Stats.FetchFailures) > 0 {
		return nil, p.failRun(ctx, run, resilience.Classify(resilience.KindFetch, eris.New("pipeline: all review sources failed")))
	}

	run.Status = model.RunStatusIngesting
	res := Ingest(raw, window)
	run.Stats.SkippedMalformed = res.SkippedMalformed
	run.Stats.OutsideWindow = res.OutsideWindow
	run.Stats.DuplicatesDropped = res.DuplicatesDropped

	inserted, err := p.store.UpsertReviews(ctx, res.Reviews)
	if err != nil {
		return nil, p.failRun(ctx, run, eris.Wrap(err, "pipeline: persist reviews"))
	}
	run.Stats.DuplicatesDropped += len(res.Reviews) - inserted
	run.Stats.Ingested = inserted

	run.Status = model.RunStatusComplete
	if err := p.store.SaveRun(ctx, run); err != nil {
		log.Warn("pipeline: failed to save run", zap.Error(err))
	}

	log.Info("pipeline: ingest complete",
		zap.Int("fetched", len(raw)),
		zap.Int("persisted", inserted),
		zap.Int("duplicates", run.Stats.DuplicatesDropped),
	)
	return &IngestOutcome{Window: window, Stats: run.Stats, Persisted: inserted}, nil
}

// PreviewThemes runs discovery over the stored window without persisting
// anything. fellBack reports whether the fallback theme was used.
func (p *Pipeline) PreviewThemes(ctx context.Context) (themes []model.Theme, fellBack bool, err error) {
	if p.llm == nil {
		return nil, false, resilience.Classify(resilience.KindConfig, eris.New("pipeline: no llm client configured"))
	}

	reviews, err := p.loadWindow(ctx, p.window())
	if err != nil {
		return nil, false, err
	}

	themes, fellBack, _, err = DiscoverThemes(ctx, p.llm, p.cfg.Product, reviews,
		p.cfg.Pulse.MaxThemes, p.cfg.Pulse.SampleCap, p.retry)
	return themes, fellBack, err
}

// ClassifyStored classifies every review in the stored window against the
// most recently persisted theme set. It requires a prior discovery run.
func (p *Pipeline) ClassifyStored(ctx context.Context) (*model.RunRecord, error) {
	if p.llm == nil {
		return nil, resilience.Classify(resilience.KindConfig, eris.New("pipeline: no llm client configured"))
	}

	themes, err := p.store.LatestThemes(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load themes")
	}
	if len(themes) == 0 {
		return nil, resilience.Classify(resilience.KindConfig, eris.New("pipeline: no themes persisted, run discovery first"))
	}

	window := p.window()
	run := &model.RunRecord{
		ID:     uuid.New().String(),
		Period: window,
		Status: model.RunStatusClassifying,
	}
	log := zap.L().With(zap.String("run_id", run.ID))

	if err := p.store.SaveRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	reviews, err := p.loadWindow(ctx, window)
	if err != nil {
		return nil, p.failRun(ctx, run, err)
	}

	_, cStats, cUsage, err := ClassifyPhase(ctx, p.llm, p.store, run.ID, p.cfg.Product, reviews, themes, ClassifyOptions{
		BatchSize:   p.cfg.Pulse.BatchSize,
		Concurrency: p.cfg.Pulse.Concurrency,
		Retry:       p.retry,
	})
	if err != nil {
		return nil, p.failRun(ctx, run, err)
	}

	run.Stats.Classified = cStats.Classified
	run.Stats.FallbackThemed = cStats.FallbackThemed
	run.Stats.NoIssue = cStats.NoIssue
	cUsage.Cost = p.costCalc.Provider(p.cfg.LLM.Provider, p.cfg.LLM.Model(),
		int64(cUsage.InputTokens), int64(cUsage.OutputTokens))
	run.Usage = cUsage

	run.Status = model.RunStatusComplete
	if err := p.store.SaveRun(ctx, run); err != nil {
		log.Warn("pipeline: failed to save run", zap.Error(err))
	}
	return run, nil
}

// Rebuild assembles a pulse from the classifications already in the store
// and persists it; when deliver is true it also goes out to the configured
// channels. No store fetches and no classification calls are made, though
// action generation still uses the model when one is configured.
func (p *Pipeline) Rebuild(ctx context.Context, deliver bool) (*model.Pulse, error) {
	window := p.window()
	run := &model.RunRecord{
		ID:     uuid.New().String(),
		Period: window,
		Status: model.RunStatusAssembling,
	}
	log := zap.L().With(zap.String("run_id", run.ID))

	if err := p.store.SaveRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	classified, err := p.store.ReviewsInWindow(ctx, window)
	if err != nil {
		return nil, p.failRun(ctx, run, eris.Wrap(err, "pipeline: load window"))
	}

	summary := Assemble(classified, window, p.cfg.Pulse.TopThemes, p.cfg.Pulse.QuotesPerTheme)
	actions, aUsage := GenerateActions(ctx, p.llm, p.cfg.Product, summary.Themes, p.actionTemplates(), p.retry)
	summary.Actions = actions
	summary.Stats = run.Stats

	run.Status = model.RunStatusReporting
	markdown := report.Markdown(p.cfg.Product, summary)
	pulse, err := p.store.SavePulse(ctx, run.ID, &summary, markdown)
	if err != nil {
		return nil, p.failRun(ctx, run, eris.Wrap(err, "pipeline: save pulse"))
	}

	if deliver {
		delivery := DeliverPhase(ctx, p.resend, p.notion, p.cfg.Email, p.cfg.Notion, p.cfg.Product, summary)
		log.Info("pipeline: pulse delivered", zap.Bool("delivered", delivery.Delivered()))
	}

	aUsage.Cost = p.costCalc.Provider(p.cfg.LLM.Provider, p.cfg.LLM.Model(),
		int64(aUsage.InputTokens), int64(aUsage.OutputTokens))
	run.Usage = aUsage
	run.Status = model.RunStatusComplete
	if err := p.store.SaveRun(ctx, run); err != nil {
		log.Warn("pipeline: failed to save run", zap.Error(err))
	}
	return pulse, nil
}

// window returns the rolling reporting window ending now.
func (p *Pipeline) window() model.Window {
	weeks := p.cfg.Pulse.WindowWeeks
	if weeks <= 0 {
		weeks = 1
	}
	return model.WindowEndingAt(time.Now(), weeks)
}

// loadWindow pulls every persisted review in the window, stripped of any
// previous classification.
func (p *Pipeline) loadWindow(ctx context.Context, w model.Window) ([]model.Review, error) {
	stored, err := p.store.ReviewsInWindow(ctx, w)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load window")
	}
	reviews := make([]model.Review, 0, len(stored))
	for _, cr := range stored {
		reviews = append(reviews, cr.Review)
	}
	return reviews, nil
}

// actionTemplates loads the configured fallback template file. An unusable
// file degrades to the built-in defaults rather than failing the run.
func (p *Pipeline) actionTemplates() []ActionTemplate {
	if p.cfg.Pulse.ActionTemplates == "" {
		return nil
	}
	templates, err := LoadActionTemplates(p.cfg.Pulse.ActionTemplates)
	if err != nil {
		zap.L().Warn("pipeline: action templates unusable, using defaults",
			zap.String("path", p.cfg.Pulse.ActionTemplates),
			zap.Error(err),
		)
		return nil
	}
	return templates
}

// failRun marks the run failed with the error and persists it.
func (p *Pipeline) failRun(ctx context.Context, run *model.RunRecord, err error) error {
	run.Status = model.RunStatusFailed
	run.Error = err.Error()
	if saveErr := p.store.SaveRun(ctx, run); saveErr != nil {
		zap.L().Warn("pipeline: failed to save failed run",
			zap.String("run_id", run.ID),
			zap.Error(saveErr),
		)
	}
	return err
}

// ratesFrom overlays configured per-model pricing on the defaults.
func ratesFrom(pricing config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	for name, mp := range pricing.Anthropic {
		rates.Anthropic[name] = cost.ModelRate{Input: mp.Input, Output: mp.Output}
	}
	for name, mp := range pricing.Gemini {
		rates.Gemini[name] = cost.ModelRate{Input: mp.Input, Output: mp.Output}
	}
	return rates
}
