package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/review-pulse/internal/model"
	"github.com/sells-group/review-pulse/pkg/llm"
)

func discoveredThemes() []model.Theme {
	return []model.Theme{
		{Name: "App Crashes", Description: "Crashes and freezes"},
		{Name: "Withdrawal Delays", Description: "Money stuck in transit"},
		{Name: "Login Problems", Description: "Cannot sign in"},
	}
}

func TestClassifyPhase(t *testing.T) {
	reviews := []model.Review{
		testReview("App crashes on startup", 1, 1),
		testReview("My withdrawal is stuck", 1, 2),
		testReview("Love this app, great design", 5, 3),
		testReview("Cannot login, OTP never arrives", 2, 4),
		testReview("Another crash after the update", 1, 5),
	}
	st := newMockStore()
	_, err := st.UpsertReviews(context.Background(), reviews)
	require.NoError(t, err)

	all, stats, usage, err := ClassifyPhase(context.Background(), &StubLLMClient{}, st,
		"run-1", "TestApp", reviews, discoveredThemes(),
		ClassifyOptions{BatchSize: 2, Concurrency: 2, Retry: fastRetry()})

	require.NoError(t, err)
	require.Len(t, all, 5)

	// Results come back in input order regardless of batch completion order.
	for i := range reviews {
		assert.Equal(t, reviews[i].Fingerprint, all[i].Fingerprint)
	}
	assert.Equal(t, "App Crashes", all[0].Theme)
	assert.Equal(t, model.SentimentNegative, all[0].Sentiment)
	assert.InDelta(t, -0.9, all[0].SentimentScore, 1e-9)
	assert.Equal(t, "Withdrawal Delays", all[1].Theme)
	assert.Equal(t, model.ThemeNoIssue, all[2].Theme)
	assert.Equal(t, model.SentimentPositive, all[2].Sentiment)
	assert.Equal(t, "Login Problems", all[3].Theme)
	assert.Equal(t, "App Crashes", all[4].Theme)

	assert.Equal(t, 5, stats.Classified)
	assert.Zero(t, stats.FallbackThemed)
	assert.Equal(t, 1, stats.NoIssue)

	// One commit per batch.
	assert.Equal(t, 3, st.classifyCalls)
	assert.Equal(t, 450, usage.InputTokens)
	assert.Equal(t, 150, usage.OutputTokens)

	// Classifications landed on the stored rows.
	row, ok := st.row(reviews[0])
	require.True(t, ok)
	assert.Equal(t, "App Crashes", row.Theme)
}

func TestClassifyBatchReconciliation(t *testing.T) {
	reviews := []model.Review{
		testReview("weird complaint", 2, 1),
		testReview("crashes sometimes", 2, 2),
		testReview("always crashing", 1, 3),
	}
	ai := &mockLLM{respond: func(llm.Request, int) (*llm.Response, error) {
		return textResponse(`[
			{"index": 1, "theme": "Nonexistent Theme", "sentiment": "negative", "confidence": 0.9},
			{"index": 2, "theme": "App Crashes", "sentiment": "angry", "confidence": 0.5},
			{"index": 3, "theme": " app crashes ", "sentiment": "negative", "confidence": 1.7}
		]`), nil
	}}
	st := newMockStore()

	all, stats, _, err := ClassifyPhase(context.Background(), ai, st,
		"run-1", "TestApp", reviews, discoveredThemes(),
		ClassifyOptions{BatchSize: 10, Concurrency: 1, Retry: fastRetry()})

	require.NoError(t, err)
	require.Len(t, all, 3)

	// Unknown theme coerces to the reserved label; the sentiment survives.
	assert.Equal(t, model.ThemeNoIssue, all[0].Theme)
	assert.Equal(t, model.SentimentNegative, all[0].Sentiment)
	assert.InDelta(t, -0.9, all[0].SentimentScore, 1e-9)

	// Unknown sentiment labels become neutral with a zero score.
	assert.Equal(t, model.SentimentNeutral, all[1].Sentiment)
	assert.Zero(t, all[1].SentimentScore)

	// Theme matching is case- and whitespace-insensitive; confidence clamps.
	assert.Equal(t, "App Crashes", all[2].Theme)
	assert.InDelta(t, 1.0, all[2].Confidence, 1e-9)
	assert.InDelta(t, -1.0, all[2].SentimentScore, 1e-9)

	assert.Equal(t, 3, stats.Classified)
	assert.Equal(t, 1, stats.NoIssue)
}

func TestClassifyPhaseMissingEntriesDefaulted(t *testing.T) {
	reviews := []model.Review{
		testReview("crashes on login", 1, 1),
		testReview("no opinion", 3, 2),
	}
	ai := &mockLLM{respond: func(llm.Request, int) (*llm.Response, error) {
		return textResponse(`[{"index": 1, "theme": "App Crashes", "sentiment": "negative", "confidence": 0.9}]`), nil
	}}
	st := newMockStore()

	all, stats, _, err := ClassifyPhase(context.Background(), ai, st,
		"run-1", "TestApp", reviews, discoveredThemes(),
		ClassifyOptions{BatchSize: 10, Concurrency: 1, Retry: fastRetry()})

	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "App Crashes", all[0].Theme)
	assert.Equal(t, model.ThemeNoIssue, all[1].Theme)
	assert.Equal(t, model.SentimentNeutral, all[1].Sentiment)
	assert.Zero(t, all[1].Confidence)

	assert.Equal(t, 1, stats.Classified)
	assert.Equal(t, 1, stats.FallbackThemed)
	// Defaulted reviews are not counted as genuine No Issue classifications.
	assert.Zero(t, stats.NoIssue)
}

func TestClassifyPhaseFailedBatchDefaulted(t *testing.T) {
	reviews := []model.Review{
		testReview("a", 1, 1),
		testReview("b", 1, 2),
		testReview("c", 1, 3),
	}
	ai := &mockLLM{respond: func(llm.Request, int) (*llm.Response, error) {
		return nil, eris.New("api down")
	}}
	st := newMockStore()

	all, stats, usage, err := ClassifyPhase(context.Background(), ai, st,
		"run-1", "TestApp", reviews, discoveredThemes(),
		ClassifyOptions{BatchSize: 2, Concurrency: 1, Retry: fastRetry()})

	require.NoError(t, err, "a dead model degrades the run, it does not fail it")
	require.Len(t, all, 3)
	for _, cr := range all {
		assert.Equal(t, model.ThemeNoIssue, cr.Theme)
		assert.Equal(t, model.SentimentNeutral, cr.Sentiment)
	}

	assert.Equal(t, 3, stats.FallbackThemed)
	assert.Zero(t, stats.Classified)
	assert.Zero(t, usage.InputTokens)

	// Defaulted batches are still committed.
	assert.Equal(t, 2, st.classifyCalls)
	// Both transport failures burn the full retry budget.
	assert.Equal(t, 4, ai.callCount())
}

func TestClassifyPhaseCommitFailure(t *testing.T) {
	st := newMockStore()
	st.classifyErr = eris.New("disk full")

	_, _, _, err := ClassifyPhase(context.Background(), &StubLLMClient{}, st,
		"run-1", "TestApp", []model.Review{testReview("crash", 1, 1)}, discoveredThemes(),
		ClassifyOptions{BatchSize: 10, Concurrency: 1, Retry: fastRetry()})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit batch")
}

func TestClassifyPhaseEmptyInput(t *testing.T) {
	ai := &mockLLM{}

	all, stats, usage, err := ClassifyPhase(context.Background(), ai, newMockStore(),
		"run-1", "TestApp", nil, discoveredThemes(),
		ClassifyOptions{BatchSize: 10, Concurrency: 1, Retry: fastRetry()})

	require.NoError(t, err)
	assert.Nil(t, all)
	assert.Zero(t, stats.Classified)
	assert.Zero(t, usage.InputTokens)
	assert.Zero(t, ai.callCount())
}

func TestChunkReviews(t *testing.T) {
	reviews := []model.Review{
		testReview("a", 1, 1), testReview("b", 1, 2), testReview("c", 1, 3),
		testReview("d", 1, 4), testReview("e", 1, 5),
	}

	chunks := chunkReviews(reviews, 2)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 2)
	assert.Len(t, chunks[2], 1)
	assert.Equal(t, "e", chunks[2][0].Content)

	assert.Nil(t, chunkReviews(nil, 2))
}
