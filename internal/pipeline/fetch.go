package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/review-pulse/internal/config"
	"github.com/sells-group/review-pulse/internal/model"
	"github.com/sells-group/review-pulse/internal/resilience"
	"github.com/sells-group/review-pulse/pkg/appstore"
	"github.com/sells-group/review-pulse/pkg/playstore"
)

// FetchPhase pulls the newest reviews from every configured store in
// parallel. A source that still fails after its retry budget is recorded as
// a fetch failure and the run degrades to the sources that answered; the
// caller decides whether zero sources is fatal.
func FetchPhase(
	ctx context.Context,
	apps config.AppsConfig,
	play playstore.Client,
	app appstore.Client,
	retryCfg resilience.RetryConfig,
	stats *model.RunStats,
) []model.RawReview {
	log := zap.L().With(zap.String("country", apps.Country))

	type sourceFetch struct {
		source model.Source
		fn     func(ctx context.Context) ([]model.RawReview, error)
	}

	var fetches []sourceFetch
	if apps.PlayStoreID != "" && play != nil {
		fetches = append(fetches, sourceFetch{
			source: model.SourceGooglePlay,
			fn: func(ctx context.Context) ([]model.RawReview, error) {
				reviews, err := play.RecentReviews(ctx, apps.PlayStoreID, apps.Country, apps.PlayCount)
				if err != nil {
					return nil, err
				}
				return fromPlayReviews(reviews), nil
			},
		})
	}
	if apps.AppStoreID != "" && app != nil {
		fetches = append(fetches, sourceFetch{
			source: model.SourceAppStore,
			fn: func(ctx context.Context) ([]model.RawReview, error) {
				reviews, err := app.RecentReviews(ctx, apps.AppStoreID, apps.Country, apps.AppPages)
				if err != nil {
					return nil, err
				}
				return fromAppStoreReviews(reviews), nil
			},
		})
	}

	var (
		mu  sync.Mutex
		all []model.RawReview
	)

	// Failures are recorded per source and never fail the group.
	g, gCtx := errgroup.WithContext(ctx)
	for _, f := range fetches {
		g.Go(func() error {
			cfg := retryCfg
			cfg.OnRetry = resilience.RetryLogger(string(f.source), "fetch reviews")

			reviews, err := resilience.DoVal(gCtx, cfg, f.fn)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("fetch: source failed",
					zap.String("source", string(f.source)),
					zap.Error(err),
				)
				stats.AddFetchFailure(f.source)
				return nil
			}

			log.Info("fetch: source complete",
				zap.String("source", string(f.source)),
				zap.Int("reviews", len(reviews)),
			)
			stats.AddFetched(f.source, len(reviews))
			all = append(all, reviews...)
			return nil
		})
	}
	_ = g.Wait()

	return all
}

func fromPlayReviews(reviews []playstore.Review) []model.RawReview {
	out := make([]model.RawReview, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, model.RawReview{
			Source:     model.SourceGooglePlay,
			ExternalID: r.ID,
			Text:       r.Text,
			Rating:     r.Score,
			Date:       r.At,
			Author:     anonymizeAuthor(r.UserName),
			AppVersion: r.Version,
			ThumbsUp:   r.ThumbsUp,
		})
	}
	return out
}

func fromAppStoreReviews(reviews []appstore.Review) []model.RawReview {
	out := make([]model.RawReview, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, model.RawReview{
			Source:     model.SourceAppStore,
			ExternalID: r.ID,
			Text:       r.Content,
			Rating:     r.Rating,
			Date:       r.Updated,
			AppVersion: r.Version,
			ThumbsUp:   r.VoteSum,
		})
	}
	return out
}

// anonymizeAuthor keeps the first two characters of a display name. Store
// usernames never leave the fetch layer in full.
func anonymizeAuthor(name string) string {
	runes := []rune(name)
	if len(runes) == 0 {
		return "Anonymous"
	}
	if len(runes) <= 2 {
		return string(runes) + "***"
	}
	return string(runes[:2]) + "***"
}
