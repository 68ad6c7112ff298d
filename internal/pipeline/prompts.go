package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/review-pulse/internal/model"
)

const (
	// maxSampleChars caps each review excerpt in the discovery prompt.
	maxSampleChars = 300
	// maxClassifyChars caps each review text in a classification batch.
	maxClassifyChars = 500
)

const discoverPromptTemplate = `Analyze these user reviews for the %s app and identify the TOP %d ACTIONABLE problem areas.

## Sample Reviews:
%s

## Task:
1. Identify the %d most common PROBLEMS, ISSUES, or PAIN POINTS users mention
2. Focus on SPECIFIC, ACTIONABLE issues - NOT generic praise like "great app" or "love it"
3. Give each theme a short, clear name (2-4 words)
4. Write a brief description of what the problem is (5-15 words)

## Output Format:
Return ONLY a JSON array ordered from most to least impactful:
[
  {"name": "Withdrawal Delays", "description": "Money withdrawal taking too long, funds stuck, delayed payments"},
  {"name": "App Crashes", "description": "Application crashing, freezing, not loading properly"}
]

IMPORTANT:
- Focus ONLY on problems, complaints, and issues
- At most %d themes
- Skip themes like "General Satisfaction" or "Positive Experience"
- Return ONLY valid JSON, no other text`

const discoverStrictSuffix = `

Your previous answer was not parseable. Return ONLY the raw JSON array. No prose, no markdown fences, no trailing commas.`

const classifyPromptTemplate = `You are analyzing user reviews for the %s app to identify issues and problems.

## Problem Themes to classify into:
%s
- **No Issue**: Positive reviews without specific complaints or problems

## Task:
Classify each review into EXACTLY ONE of the themes above:
- If the review mentions a PROBLEM or COMPLAINT, assign the matching problem theme
- If the review is POSITIVE with NO specific issue, assign "No Issue"

## Reviews to classify:
%s

## Output Format:
Return a JSON array with one element per review, in order:
- "index": review number (1-based, as listed above)
- "theme": exact theme name from the list (or "No Issue")
- "sentiment": "positive", "neutral", or "negative"
- "confidence": number between 0 and 1

Example:
[
  {"index": 1, "theme": "App Crashes", "sentiment": "negative", "confidence": 0.9},
  {"index": 2, "theme": "No Issue", "sentiment": "positive", "confidence": 0.8}
]

Return ONLY the JSON array, no other text.`

const actionsPromptTemplate = `You are a product manager analyzing user feedback for the %s app.

## Top User Complaints This Week:
%s

## Task:
Generate exactly %d specific, actionable recommendations to address these issues.

## Requirements:
- Each action should be SPECIFIC and IMPLEMENTABLE
- Prioritize by impact (address issues affecting most users first)
- Include both quick wins and longer-term fixes
- Be practical for a mobile app development team

## Output Format:
Return a JSON array with exactly %d objects:
[
  {
    "title": "Short action title (5-10 words)",
    "description": "Detailed description of what to do (2-3 sentences)",
    "priority": "high" | "medium" | "low",
    "effort": "quick-win" | "medium" | "large",
    "addresses_theme": "Theme name this action addresses"
  }
]

Return ONLY the JSON array.`

// buildDiscoverPrompt renders the theme discovery prompt over a review
// sample. Each excerpt is capped so a handful of rants cannot crowd out the
// rest of the sample.
func buildDiscoverPrompt(product string, sample []model.Review, maxThemes int) string {
	var b strings.Builder
	for _, r := range sample {
		b.WriteString("- ")
		b.WriteString(truncate(r.Content, maxSampleChars))
		b.WriteString("\n")
	}
	return fmt.Sprintf(discoverPromptTemplate, product, maxThemes, strings.TrimRight(b.String(), "\n"), maxThemes, maxThemes)
}

// buildClassifyPrompt renders the classification prompt for one batch.
func buildClassifyPrompt(product string, batch []model.Review, themes []model.Theme) string {
	var themeList strings.Builder
	for _, t := range themes {
		if t.Name == model.ThemeNoIssue {
			continue
		}
		fmt.Fprintf(&themeList, "- **%s**: %s\n", t.Name, t.Description)
	}

	var reviewList strings.Builder
	for i, r := range batch {
		fmt.Fprintf(&reviewList, "%d. %s\n", i+1, truncate(r.Content, maxClassifyChars))
	}

	return fmt.Sprintf(classifyPromptTemplate, product,
		strings.TrimRight(themeList.String(), "\n"),
		strings.TrimRight(reviewList.String(), "\n"))
}

// buildActionsPrompt renders the action generation prompt from the ranked
// themes and their quotes.
func buildActionsPrompt(product string, themes []model.ThemeSummary) string {
	var b strings.Builder
	for _, t := range themes {
		fmt.Fprintf(&b, "\n**%s** (%d mentions, %.1f%% of reviews)\n", t.Name, t.Count, t.Percentage)
		if len(t.Quotes) > 0 {
			b.WriteString("Sample complaints:\n")
			for _, q := range t.Quotes {
				fmt.Fprintf(&b, "  - %q\n", q.Text)
			}
		}
	}
	n := len(themes)
	return fmt.Sprintf(actionsPromptTemplate, product, strings.TrimRight(b.String(), "\n"), n, n)
}

// truncate clips s to at most max runes. Review text is user input in any
// script, so clipping happens on rune boundaries.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
