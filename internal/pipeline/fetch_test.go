package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/review-pulse/internal/model"
	"github.com/sells-group/review-pulse/internal/resilience"
	"github.com/sells-group/review-pulse/pkg/appstore"
	"github.com/sells-group/review-pulse/pkg/playstore"
)

func TestFetchPhase(t *testing.T) {
	now := time.Now().UTC()
	play := &mockPlayStore{reviews: []playstore.Review{
		{ID: "gp-1", UserName: "Rahul Sharma", Text: "Crashes a lot", Score: 1, ThumbsUp: 4, Version: "5.2.1", At: now.AddDate(0, 0, -1)},
		{ID: "gp-2", UserName: "A", Text: "Works fine", Score: 5, At: now.AddDate(0, 0, -2)},
	}}
	app := &mockAppStore{reviews: []appstore.Review{
		{ID: "as-1", Title: "Stuck", Content: "Money stuck in wallet", Rating: 1, VoteSum: 7, Version: "5.2.0", Updated: now.AddDate(0, 0, -3)},
	}}

	var stats model.RunStats
	raw := FetchPhase(context.Background(), testConfig().Apps, play, app, fastRetry(), &stats)

	require.Len(t, raw, 3)
	assert.Equal(t, 2, stats.Fetched[model.SourceGooglePlay])
	assert.Equal(t, 1, stats.Fetched[model.SourceAppStore])
	assert.Empty(t, stats.FetchFailures)
	assert.Equal(t, 1, play.calls)
	assert.Equal(t, 1, app.calls)

	byID := make(map[string]model.RawReview, len(raw))
	for _, r := range raw {
		byID[r.ExternalID] = r
	}

	gp := byID["gp-1"]
	assert.Equal(t, model.SourceGooglePlay, gp.Source)
	assert.Equal(t, "Crashes a lot", gp.Text)
	assert.Equal(t, 1, gp.Rating)
	assert.Equal(t, 4, gp.ThumbsUp)
	assert.Equal(t, "5.2.1", gp.AppVersion)
	assert.Equal(t, "Ra***", gp.Author)

	as := byID["as-1"]
	assert.Equal(t, model.SourceAppStore, as.Source)
	assert.Equal(t, "Money stuck in wallet", as.Text)
	assert.Equal(t, 1, as.Rating)
	assert.Equal(t, 7, as.ThumbsUp)
	assert.Equal(t, now.AddDate(0, 0, -3), as.Date)
}

func TestFetchPhaseDegradesOnSourceFailure(t *testing.T) {
	play := &mockPlayStore{err: eris.New("blocked by store")}
	app := &mockAppStore{reviews: []appstore.Review{
		{ID: "as-1", Content: "Login loop after update", Rating: 2, Updated: time.Now().UTC()},
	}}

	var stats model.RunStats
	raw := FetchPhase(context.Background(), testConfig().Apps, play, app, fastRetry(), &stats)

	require.Len(t, raw, 1)
	assert.Equal(t, model.SourceAppStore, raw[0].Source)
	assert.Equal(t, 1, stats.FetchFailures[model.SourceGooglePlay])
	assert.Empty(t, stats.Fetched[model.SourceGooglePlay])
	// A permanent error is not retried.
	assert.Equal(t, 1, play.calls)
}

func TestFetchPhaseRetriesTransientFailures(t *testing.T) {
	play := &mockPlayStore{err: resilience.NewTransientError(eris.New("rate limited"), 429)}

	var stats model.RunStats
	apps := testConfig().Apps
	apps.AppStoreID = ""
	raw := FetchPhase(context.Background(), apps, play, &mockAppStore{}, fastRetry(), &stats)

	assert.Empty(t, raw)
	assert.Equal(t, 1, stats.FetchFailures[model.SourceGooglePlay])
	assert.Equal(t, 2, play.calls, "transient errors burn the retry budget")
}

func TestFetchPhaseSkipsUnconfiguredSources(t *testing.T) {
	play := &mockPlayStore{}
	apps := testConfig().Apps
	apps.PlayStoreID = ""

	var stats model.RunStats
	raw := FetchPhase(context.Background(), apps, play, nil, fastRetry(), &stats)

	assert.Empty(t, raw)
	assert.Empty(t, stats.Fetched)
	assert.Empty(t, stats.FetchFailures)
	assert.Zero(t, play.calls)
}

func TestAnonymizeAuthor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "Anonymous"},
		{"A", "A***"},
		{"Ab", "Ab***"},
		{"Rahul Sharma", "Ra***"},
		{"Приянка", "Пр***"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, anonymizeAuthor(tt.in))
	}
}
