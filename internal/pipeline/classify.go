package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/review-pulse/internal/model"
	"github.com/sells-group/review-pulse/internal/resilience"
	"github.com/sells-group/review-pulse/internal/store"
	"github.com/sells-group/review-pulse/pkg/llm"
)

// ClassifyOptions bounds the classification fan-out.
type ClassifyOptions struct {
	BatchSize   int
	Concurrency int
	Retry       resilience.RetryConfig
}

// ClassifyStats counts classification outcomes for the run record.
type ClassifyStats struct {
	Classified     int
	FallbackThemed int
	NoIssue        int
}

// ClassifyPhase assigns every review exactly one theme and a sentiment.
// Reviews are classified in batches, several batches in flight at once, and
// each batch is committed to the store in its own transaction so aborting
// between batches never leaves a partial batch behind. A batch whose LLM
// call or parse still fails after the retry budget is assigned the reserved
// "No Issue" label with neutral sentiment rather than failing the run.
func ClassifyPhase(
	ctx context.Context,
	ai llm.Client,
	st store.Store,
	runID, product string,
	reviews []model.Review,
	themes []model.Theme,
	opts ClassifyOptions,
) ([]model.ClassifiedReview, ClassifyStats, model.TokenUsage, error) {
	var stats ClassifyStats
	var usage model.TokenUsage
	if len(reviews) == 0 {
		return nil, stats, usage, nil
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	log := zap.L().With(zap.String("phase", "classify"), zap.String("run_id", runID))
	themeSet := model.NewThemeSet(themes)
	batches := chunkReviews(reviews, opts.BatchSize)

	results := make([][]model.ClassifiedReview, len(batches))
	usages := make([]model.TokenUsage, len(batches))
	fallbacks := make([]int, len(batches))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, batch := range batches {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			classified, batchUsage, fellBack := classifyBatch(gCtx, ai, product, batch, themes, themeSet, opts.Retry, log.With(zap.Int("batch", i)))
			results[i] = classified
			usages[i] = batchUsage
			fallbacks[i] = fellBack

			if err := st.UpdateClassifications(gCtx, runID, classified); err != nil {
				return eris.Wrapf(err, "pipeline: commit batch %d", i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, usage, err
	}

	all := make([]model.ClassifiedReview, 0, len(reviews))
	for i, batch := range results {
		all = append(all, batch...)
		usage.Add(usages[i])
		stats.FallbackThemed += fallbacks[i]
	}
	for _, cr := range all {
		if cr.Theme == model.ThemeNoIssue && cr.Confidence > 0 {
			stats.NoIssue++
		}
	}
	stats.Classified = len(all) - stats.FallbackThemed

	log.Info("classify: complete",
		zap.Int("reviews", len(all)),
		zap.Int("batches", len(batches)),
		zap.Int("fallback_themed", stats.FallbackThemed),
		zap.Int("no_issue", stats.NoIssue),
	)
	return all, stats, usage, nil
}

// classifyBatch runs one LLM call for a batch and reconciles the response
// against it. Both transport errors and unusable responses consume the same
// retry budget; whatever still fails is defaulted, never dropped.
func classifyBatch(
	ctx context.Context,
	ai llm.Client,
	product string,
	batch []model.Review,
	themes []model.Theme,
	themeSet *model.ThemeSet,
	retryCfg resilience.RetryConfig,
	log *zap.Logger,
) ([]model.ClassifiedReview, model.TokenUsage, int) {
	var usage model.TokenUsage

	prompt := buildClassifyPrompt(product, batch, themes)

	cfg := retryCfg
	cfg.ShouldRetry = func(error) bool { return true }
	cfg.OnRetry = resilience.RetryLogger("llm", "classify batch")

	parsed, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]rawClassification, error) {
		resp, callErr := ai.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 4096, JSONOnly: true})
		if callErr != nil {
			return nil, callErr
		}
		usage.Add(model.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		})
		return parseClassifications(resp.Text)
	})
	if err != nil {
		log.Warn("classify: batch defaulted after retries", zap.Int("size", len(batch)), zap.Error(err))
		return fallbackBatch(batch), usage, len(batch)
	}

	byIndex := make(map[int]rawClassification, len(parsed))
	for _, rc := range parsed {
		byIndex[rc.Index] = rc
	}

	fallbackCount := 0
	out := make([]model.ClassifiedReview, 0, len(batch))
	for i, review := range batch {
		rc, ok := byIndex[i+1]
		if !ok {
			fallbackCount++
			out = append(out, fallbackClassification(review))
			continue
		}

		theme, known := themeSet.Resolve(rc.Theme)
		if !known {
			log.Debug("classify: unknown theme coerced",
				zap.String("returned", rc.Theme),
				zap.String("fingerprint", review.Fingerprint),
			)
		}

		sentiment := model.Sentiment(strings.ToLower(strings.TrimSpace(rc.Sentiment)))
		confidence := clamp(rc.Confidence, 0, 1)
		if !sentiment.Valid() {
			sentiment = model.SentimentNeutral
		}

		out = append(out, model.ClassifiedReview{
			Review:         review,
			Theme:          theme,
			Sentiment:      sentiment,
			SentimentScore: clamp(sentiment.Sign()*confidence, -1, 1),
			Confidence:     confidence,
		})
	}

	return out, usage, fallbackCount
}

func fallbackBatch(batch []model.Review) []model.ClassifiedReview {
	out := make([]model.ClassifiedReview, 0, len(batch))
	for _, r := range batch {
		out = append(out, fallbackClassification(r))
	}
	return out
}

func fallbackClassification(r model.Review) model.ClassifiedReview {
	return model.ClassifiedReview{
		Review:    r,
		Theme:     model.ThemeNoIssue,
		Sentiment: model.SentimentNeutral,
	}
}

func chunkReviews(reviews []model.Review, size int) [][]model.Review {
	var chunks [][]model.Review
	for start := 0; start < len(reviews); start += size {
		end := min(start+size, len(reviews))
		chunks = append(chunks, reviews[start:end])
	}
	return chunks
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
