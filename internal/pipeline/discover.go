package pipeline

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/review-pulse/internal/model"
	"github.com/sells-group/review-pulse/internal/resilience"
	"github.com/sells-group/review-pulse/pkg/llm"
)

// DiscoverThemes finds up to maxThemes recurring complaint labels in the
// most recent reviews. It never returns an empty set: when the model cannot
// produce a usable answer after one stricter retry, the single fallback
// theme is returned and fellBack is true so the run record shows it.
func DiscoverThemes(
	ctx context.Context,
	ai llm.Client,
	product string,
	reviews []model.Review,
	maxThemes, sampleCap int,
	retryCfg resilience.RetryConfig,
) (themes []model.Theme, fellBack bool, usage model.TokenUsage, err error) {
	log := zap.L().With(zap.String("phase", "discover"))

	if len(reviews) == 0 {
		log.Warn("discover: no reviews in window, using fallback theme")
		return []model.Theme{model.FallbackTheme()}, true, usage, nil
	}

	sample := sampleRecent(reviewsCopy(reviews), sampleCap)
	prompt := buildDiscoverPrompt(product, sample, maxThemes)

	// A malformed response gets exactly one stricter retry before the
	// deterministic fallback. Transport errors burn the same two attempts.
	prompts := []string{prompt, prompt + discoverStrictSuffix}
	for attempt, pr := range prompts {
		cfg := retryCfg
		cfg.OnRetry = resilience.RetryLogger("llm", "discover themes")

		resp, callErr := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*llm.Response, error) {
			return ai.Complete(ctx, llm.Request{Prompt: pr, MaxTokens: 2048, JSONOnly: true})
		})
		if callErr != nil {
			if ctx.Err() != nil {
				return nil, false, usage, ctx.Err()
			}
			log.Warn("discover: llm call failed", zap.Int("attempt", attempt+1), zap.Error(callErr))
			continue
		}
		usage.Add(model.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		})

		parsed, parseErr := parseThemes(resp.Text, maxThemes)
		if parseErr != nil {
			log.Warn("discover: unusable response", zap.Int("attempt", attempt+1), zap.Error(parseErr))
			continue
		}

		log.Info("discover: themes discovered", zap.Int("count", len(parsed)))
		return parsed, false, usage, nil
	}

	log.Warn("discover: falling back to single catch-all theme")
	return []model.Theme{model.FallbackTheme()}, true, usage, nil
}

// sampleRecent returns the limit most recent reviews, newest first. The
// input slice is sorted in place.
func sampleRecent(reviews []model.Review, limit int) []model.Review {
	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].Date.After(reviews[j].Date)
	})
	if limit > 0 && len(reviews) > limit {
		return reviews[:limit]
	}
	return reviews
}

func reviewsCopy(reviews []model.Review) []model.Review {
	out := make([]model.Review, len(reviews))
	copy(out, reviews)
	return out
}
