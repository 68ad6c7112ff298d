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

const discoveryJSON = `[
	{"name": "App Crashes", "description": "Crashes and freezes on startup"},
	{"name": "Withdrawal Delays", "description": "Money stuck in transit"}
]`

func TestDiscoverThemes(t *testing.T) {
	ai := &mockLLM{respond: func(llm.Request, int) (*llm.Response, error) {
		return textResponse(discoveryJSON), nil
	}}
	reviews := []model.Review{
		testReview("App crashes every time I open it", 1, 2),
		testReview("Withdrawal pending for five days", 1, 4),
	}

	themes, fellBack, usage, err := DiscoverThemes(context.Background(), ai, "TestApp", reviews, 5, 100, fastRetry())

	require.NoError(t, err)
	assert.False(t, fellBack)
	require.Len(t, themes, 2)
	assert.Equal(t, "App Crashes", themes[0].Name)
	assert.Equal(t, "Withdrawal Delays", themes[1].Name)
	assert.Equal(t, 100, usage.InputTokens)
	assert.Equal(t, 25, usage.OutputTokens)

	require.Equal(t, 1, ai.callCount())
	prompt := ai.calls[0].Prompt
	assert.Contains(t, prompt, "TestApp")
	assert.Contains(t, prompt, "App crashes every time I open it")
	assert.Contains(t, prompt, "TOP 5 ACTIONABLE")
	assert.True(t, ai.calls[0].JSONOnly)
}

func TestDiscoverThemesEmptyWindowFallsBack(t *testing.T) {
	ai := &mockLLM{}

	themes, fellBack, _, err := DiscoverThemes(context.Background(), ai, "TestApp", nil, 5, 100, fastRetry())

	require.NoError(t, err)
	assert.True(t, fellBack)
	require.Len(t, themes, 1)
	assert.Equal(t, model.ThemeFallback, themes[0].Name)
	assert.Zero(t, ai.callCount(), "no reviews means no LLM call")
}

func TestDiscoverThemesRetriesMalformedOnce(t *testing.T) {
	ai := &mockLLM{respond: func(_ llm.Request, call int) (*llm.Response, error) {
		if call == 0 {
			return textResponse("I think the main themes are crashes and delays."), nil
		}
		return textResponse(discoveryJSON), nil
	}}

	themes, fellBack, usage, err := DiscoverThemes(context.Background(), ai, "TestApp",
		[]model.Review{testReview("crash", 1, 1)}, 5, 100, fastRetry())

	require.NoError(t, err)
	assert.False(t, fellBack)
	assert.Len(t, themes, 2)

	require.Equal(t, 2, ai.callCount())
	assert.Contains(t, ai.calls[1].Prompt, "was not parseable")
	// Both responses count against the budget, usable or not.
	assert.Equal(t, 200, usage.InputTokens)
	assert.Equal(t, 50, usage.OutputTokens)
}

func TestDiscoverThemesFallsBackWhenExhausted(t *testing.T) {
	ai := &mockLLM{respond: func(llm.Request, int) (*llm.Response, error) {
		return textResponse("still not json"), nil
	}}

	themes, fellBack, _, err := DiscoverThemes(context.Background(), ai, "TestApp",
		[]model.Review{testReview("crash", 1, 1)}, 5, 100, fastRetry())

	require.NoError(t, err)
	assert.True(t, fellBack)
	require.Len(t, themes, 1)
	assert.Equal(t, model.ThemeFallback, themes[0].Name)
	assert.Equal(t, 2, ai.callCount())
}

func TestDiscoverThemesTransportErrorsFallBack(t *testing.T) {
	ai := &mockLLM{respond: func(llm.Request, int) (*llm.Response, error) {
		return nil, eris.New("api unreachable")
	}}

	themes, fellBack, _, err := DiscoverThemes(context.Background(), ai, "TestApp",
		[]model.Review{testReview("crash", 1, 1)}, 5, 100, fastRetry())

	require.NoError(t, err)
	assert.True(t, fellBack)
	require.Len(t, themes, 1)
	assert.Equal(t, model.ThemeFallback, themes[0].Name)
}

func TestDiscoverThemesContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ai := &mockLLM{respond: func(llm.Request, int) (*llm.Response, error) {
		cancel()
		return nil, eris.New("interrupted")
	}}

	_, _, _, err := DiscoverThemes(ctx, ai, "TestApp",
		[]model.Review{testReview("crash", 1, 1)}, 5, 100, fastRetry())

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSampleRecent(t *testing.T) {
	oldest := testReview("oldest", 3, 9)
	middle := testReview("middle", 3, 5)
	newest := testReview("newest", 3, 1)

	got := sampleRecent([]model.Review{oldest, newest, middle}, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "newest", got[0].Content)
	assert.Equal(t, "middle", got[1].Content)
}

func TestSampleRecentNoCap(t *testing.T) {
	reviews := []model.Review{testReview("a", 3, 1), testReview("b", 3, 2)}

	got := sampleRecent(reviews, 0)

	assert.Len(t, got, 2)
}

func TestDiscoverPromptCapsSampleSize(t *testing.T) {
	ai := &mockLLM{respond: func(llm.Request, int) (*llm.Response, error) {
		return textResponse(discoveryJSON), nil
	}}
	reviews := []model.Review{
		testReview("oldest review text", 3, 9),
		testReview("middle review text", 3, 5),
		testReview("newest review text", 3, 1),
	}

	_, _, _, err := DiscoverThemes(context.Background(), ai, "TestApp", reviews, 5, 2, fastRetry())

	require.NoError(t, err)
	require.Equal(t, 1, ai.callCount())
	prompt := ai.calls[0].Prompt
	assert.Contains(t, prompt, "newest review text")
	assert.Contains(t, prompt, "middle review text")
	assert.NotContains(t, prompt, "oldest review text")
}
