package model

import "time"

// Window is the rolling time range a run covers. Start is inclusive, End
// exclusive.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WindowEndingAt returns a window of the given number of weeks ending at t.
func WindowEndingAt(t time.Time, weeks int) Window {
	end := t.UTC()
	return Window{Start: end.AddDate(0, 0, -7*weeks), End: end}
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts time.Time) bool {
	u := ts.UTC()
	return !u.Before(w.Start) && u.Before(w.End)
}

// Quote is one representative review excerpt attached to a ranked theme.
// Text is always taken from redacted content.
type Quote struct {
	Text      string    `json:"text"`
	Sentiment Sentiment `json:"sentiment"`
	Rating    int       `json:"rating"`
}

// ThemeSummary is one ranked theme in the pulse: how often it was mentioned
// and which redacted quotes best represent it.
type ThemeSummary struct {
	Name          string  `json:"name"`
	Count         int     `json:"count"`
	NegativeCount int     `json:"negative_count"`
	Percentage    float64 `json:"percentage"`
	AvgRating     float64 `json:"avg_rating"`
	Quotes        []Quote `json:"quotes"`
}

// ActionItem is a recommended follow-up tied to a theme.
type ActionItem struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Priority       string `json:"priority"`
	Effort         string `json:"effort"`
	AddressesTheme string `json:"addresses_theme"`
}

// PulseSummary is the derived weekly report. It is rebuilt from the
// classified set on every run and never mutated in place.
// ReviewsWithIssues counts every review assigned a non-reserved theme,
// including themes that did not make the ranked cut.
type PulseSummary struct {
	Period            Window         `json:"period"`
	TotalReviews      int            `json:"total_reviews"`
	ReviewsWithIssues int            `json:"reviews_with_issues"`
	Themes            []ThemeSummary `json:"themes"`
	Actions           []ActionItem   `json:"actions"`
	Stats             RunStats       `json:"stats"`
}

// Pulse is the persisted form of one generated report: the summary it was
// built from plus the rendered markdown.
type Pulse struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Summary   PulseSummary `json:"summary"`
	Markdown  string       `json:"markdown"`
	CreatedAt time.Time    `json:"created_at"`
}

// TopTheme returns the highest-ranked theme name, or "" when the pulse has
// no actionable themes.
func (p PulseSummary) TopTheme() string {
	if len(p.Themes) == 0 {
		return ""
	}
	return p.Themes[0].Name
}

