package pipeline

import (
	"sort"
	"strings"

	"github.com/sells-group/review-pulse/internal/model"
)

const (
	// quoteMinLen and quoteMaxLen bound the preferred quote length band.
	quoteMinLen = 20
	quoteMaxLen = 500
	// quoteUsableLen drops excerpts too short to mean anything once
	// redaction has eaten the specifics.
	quoteUsableLen = 15
	// quoteTruncateAt caps rendered quotes; longer text is clipped with an
	// ellipsis at 197 runes.
	quoteTruncateAt = 200
)

// Assemble builds the pulse summary from a classified window: rank themes
// by mention count, pick representative quotes, and compute the headline
// stats. The reserved "No Issue" label never ranks; the discovery fallback
// theme does, otherwise a fallback run would always produce an empty pulse.
func Assemble(classified []model.ClassifiedReview, window model.Window, topN, quotesPerTheme int) model.PulseSummary {
	if topN <= 0 {
		topN = 3
	}
	if quotesPerTheme <= 0 {
		quotesPerTheme = 3
	}

	summary := model.PulseSummary{
		Period:       window,
		TotalReviews: len(classified),
	}

	byTheme := make(map[string][]model.ClassifiedReview)
	for _, cr := range classified {
		if cr.Theme == "" || cr.Theme == model.ThemeNoIssue {
			continue
		}
		byTheme[cr.Theme] = append(byTheme[cr.Theme], cr)
		summary.ReviewsWithIssues++
	}
	if len(byTheme) == 0 {
		return summary
	}

	themes := make([]model.ThemeSummary, 0, len(byTheme))
	for name, reviews := range byTheme {
		ratingSum, negatives := 0, 0
		for _, r := range reviews {
			ratingSum += r.Rating
			if r.Sentiment == model.SentimentNegative {
				negatives++
			}
		}
		themes = append(themes, model.ThemeSummary{
			Name:          name,
			Count:         len(reviews),
			NegativeCount: negatives,
			Percentage:    float64(len(reviews)) * 100 / float64(len(classified)),
			AvgRating:     float64(ratingSum) / float64(len(reviews)),
			Quotes:        selectQuotes(reviews, quotesPerTheme),
		})
	}

	// Most mentioned first; on equal counts the worse-rated theme is the
	// more urgent one. Name breaks exact ties so output order is stable.
	sort.Slice(themes, func(i, j int) bool {
		if themes[i].Count != themes[j].Count {
			return themes[i].Count > themes[j].Count
		}
		if themes[i].AvgRating != themes[j].AvgRating {
			return themes[i].AvgRating < themes[j].AvgRating
		}
		return themes[i].Name < themes[j].Name
	})
	if len(themes) > topN {
		themes = themes[:topN]
	}
	summary.Themes = themes

	return summary
}

// selectQuotes picks up to n representative quotes for a theme. Negative
// reviews come first, then within each sentiment the candidates inside the
// preferred length band sorted by distance from the band's median length.
// Near-duplicate openings are skipped so three variants of the same
// complaint do not fill the report.
func selectQuotes(reviews []model.ClassifiedReview, n int) []model.Quote {
	quotes := make([]model.Quote, 0, n)
	seenPrefix := make(map[string]bool)

	for _, sentiment := range []model.Sentiment{model.SentimentNegative, model.SentimentNeutral, model.SentimentPositive} {
		if len(quotes) >= n {
			break
		}

		var candidates []model.ClassifiedReview
		for _, r := range reviews {
			if r.Sentiment == sentiment {
				candidates = append(candidates, r)
			}
		}
		if len(candidates) == 0 {
			continue
		}

		var banded []model.ClassifiedReview
		for _, r := range candidates {
			l := len([]rune(r.Content))
			if l >= quoteMinLen && l <= quoteMaxLen {
				banded = append(banded, r)
			}
		}
		if len(banded) == 0 {
			banded = candidates
		}

		median := medianLength(banded)
		sort.SliceStable(banded, func(i, j int) bool {
			di := absF(float64(len([]rune(banded[i].Content))) - median)
			dj := absF(float64(len([]rune(banded[j].Content))) - median)
			if di != dj {
				return di < dj
			}
			return banded[i].Fingerprint < banded[j].Fingerprint
		})

		for _, r := range banded {
			if len(quotes) >= n {
				break
			}
			text := truncateQuote(r.Content)
			if len([]rune(text)) < quoteUsableLen {
				continue
			}
			prefix := quotePrefix(text)
			if seenPrefix[prefix] {
				continue
			}
			seenPrefix[prefix] = true
			quotes = append(quotes, model.Quote{Text: text, Sentiment: sentiment, Rating: r.Rating})
		}
	}

	return quotes
}

func truncateQuote(s string) string {
	runes := []rune(s)
	if len(runes) <= quoteTruncateAt {
		return s
	}
	return string(runes[:197]) + "…"
}

// quotePrefix normalizes the opening of a quote for near-duplicate checks.
func quotePrefix(s string) string {
	s = strings.ToLower(s)
	runes := []rune(s)
	if len(runes) > 40 {
		runes = runes[:40]
	}
	return strings.Join(strings.Fields(string(runes)), " ")
}

func medianLength(reviews []model.ClassifiedReview) float64 {
	lengths := make([]int, len(reviews))
	for i, r := range reviews {
		lengths[i] = len([]rune(r.Content))
	}
	sort.Ints(lengths)
	mid := len(lengths) / 2
	if len(lengths)%2 == 0 {
		return float64(lengths[mid-1]+lengths[mid]) / 2
	}
	return float64(lengths[mid])
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
