package store

import (
	"context"

	"github.com/sells-group/review-pulse/internal/model"
)

// Store defines the persistence interface for the pulse pipeline.
type Store interface {
	// Reviews
	UpsertReviews(ctx context.Context, reviews []model.Review) (int, error)
	ReviewsInWindow(ctx context.Context, w model.Window) ([]model.ClassifiedReview, error)
	UpdateClassifications(ctx context.Context, runID string, reviews []model.ClassifiedReview) error

	// Themes
	SaveThemes(ctx context.Context, runID string, themes []model.Theme) error
	LatestThemes(ctx context.Context) ([]model.Theme, error)

	// Runs
	SaveRun(ctx context.Context, run *model.RunRecord) error
	GetRun(ctx context.Context, runID string) (*model.RunRecord, error)
	RecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error)

	// Pulses
	SavePulse(ctx context.Context, runID string, summary *model.PulseSummary, markdown string) (*model.Pulse, error)
	LatestPulse(ctx context.Context) (*model.Pulse, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
