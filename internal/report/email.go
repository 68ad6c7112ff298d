package report

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sells-group/review-pulse/internal/model"
)

var priorityColor = map[string]string{"high": "#dc3545", "medium": "#ffc107", "low": "#28a745"}

// TextBody renders the plain-text email fallback.
func TextBody(product string, s model.PulseSummary) string {
	var b strings.Builder
	rule := strings.Repeat("-", 40)

	fmt.Fprintf(&b, "%s WEEKLY PULSE\n", strings.ToUpper(product))
	b.WriteString(strings.Repeat("=", 40) + "\n\n")
	fmt.Fprintf(&b, "Period: %s - %s\n", s.Period.Start.Format("January 02"), s.Period.End.Format("January 02, 2006"))
	fmt.Fprintf(&b, "Total Reviews: %d\n", s.TotalReviews)
	fmt.Fprintf(&b, "Reviews with Issues: %d (%.1f%%)\n\n", s.ReviewsWithIssues, issuePercent(s))

	b.WriteString(rule + "\nTOP ISSUES\n" + rule + "\n\n")
	for i, theme := range s.Themes {
		fmt.Fprintf(&b, "%d. %s\n", i+1, theme.Name)
		fmt.Fprintf(&b, "   %d mentions (%.1f%%) | Avg Rating: %.1f/5\n\n", theme.Count, theme.Percentage, theme.AvgRating)
	}

	if len(s.Actions) > 0 {
		b.WriteString(rule + "\nRECOMMENDED ACTIONS\n" + rule + "\n\n")
		for i, action := range s.Actions {
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, strings.ToUpper(action.Priority), action.Title)
			fmt.Fprintf(&b, "   %s\n", action.Description)
			fmt.Fprintf(&b, "   Addresses: %s\n\n", action.AddressesTheme)
		}
	}

	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Generated on %s\n", time.Now().UTC().Format("2006-01-02 15:04 UTC"))
	b.WriteString("Review Pulse\n")

	return b.String()
}

// HTMLBody renders the styled email. Styles are inline for email client
// compatibility, and every user- or model-derived string is escaped.
func HTMLBody(product string, s model.PulseSummary) string {
	var themesHTML strings.Builder
	for i, theme := range s.Themes {
		border := "#ffc107"
		if theme.NegativeCount > 10 {
			border = "#dc3545"
		}
		fmt.Fprintf(&themesHTML, `
        <div style="background: #f8f9fa; border-radius: 8px; padding: 16px; margin-bottom: 16px; border-left: 4px solid %s;">
            <h3 style="margin: 0 0 8px 0; color: #212529; font-size: 16px;">%d. %s</h3>
            <p style="margin: 0; color: #6c757d; font-size: 14px;">
                <strong>%d mentions</strong> (%.1f%% of reviews) | Avg Rating: %s (%.1f)
            </p>
        </div>`,
			border, i+1, html.EscapeString(theme.Name),
			theme.Count, theme.Percentage, stars(int(theme.AvgRating)), theme.AvgRating)
	}
	if themesHTML.Len() == 0 {
		themesHTML.WriteString(`<p style="color: #6c757d;">No significant issues found.</p>`)
	}

	var actionsHTML strings.Builder
	for i, action := range s.Actions {
		color, ok := priorityColor[action.Priority]
		if !ok {
			color = "#6c757d"
		}
		fmt.Fprintf(&actionsHTML, `
        <div style="background: #fff; border: 1px solid #dee2e6; border-radius: 8px; padding: 16px; margin-bottom: 16px;">
            <h4 style="margin: 0 0 8px 0; color: #212529; font-size: 15px;">%d. %s</h4>
            <p style="margin: 0 0 8px 0; font-size: 12px;">
                <span style="background: %s; color: white; padding: 2px 8px; border-radius: 4px; font-weight: bold;">%s %s</span>
                <span style="margin-left: 8px; color: #6c757d;">%s</span>
            </p>
            <p style="margin: 0 0 8px 0; color: #495057; font-size: 14px;">%s</p>
            <p style="margin: 0; color: #6c757d; font-size: 12px; font-style: italic;">Addresses: %s</p>
        </div>`,
			i+1, html.EscapeString(action.Title),
			color, emoji(action.Priority), strings.ToUpper(action.Priority), badge(action.Effort),
			html.EscapeString(action.Description), html.EscapeString(action.AddressesTheme))
	}
	if actionsHTML.Len() == 0 {
		actionsHTML.WriteString(`<p style="color: #6c757d;">No actions generated.</p>`)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; background-color: #f4f4f4;">
    <div style="max-width: 600px; margin: 0 auto; background: #ffffff;">
        <div style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); padding: 32px 24px; text-align: center;">
            <h1 style="margin: 0; color: white; font-size: 24px; font-weight: 600;">📊 %s Weekly Pulse</h1>
            <p style="margin: 8px 0 0 0; color: rgba(255,255,255,0.9); font-size: 14px;">%s - %s</p>
        </div>
        <div style="display: flex; background: #f8f9fa; padding: 16px 24px; border-bottom: 1px solid #dee2e6;">
            <div style="flex: 1; text-align: center;">
                <div style="font-size: 24px; font-weight: bold; color: #212529;">%d</div>
                <div style="font-size: 12px; color: #6c757d;">Total Reviews</div>
            </div>
            <div style="flex: 1; text-align: center; border-left: 1px solid #dee2e6;">
                <div style="font-size: 24px; font-weight: bold; color: #dc3545;">%d</div>
                <div style="font-size: 12px; color: #6c757d;">With Issues (%.1f%%)</div>
            </div>
            <div style="flex: 1; text-align: center; border-left: 1px solid #dee2e6;">
                <div style="font-size: 24px; font-weight: bold; color: #28a745;">%d</div>
                <div style="font-size: 12px; color: #6c757d;">Actions</div>
            </div>
        </div>
        <div style="padding: 24px;">
            <h2 style="margin: 0 0 16px 0; color: #212529; font-size: 18px; border-bottom: 2px solid #667eea; padding-bottom: 8px;">🔍 Top Issues This Week</h2>
            %s
            <h2 style="margin: 24px 0 16px 0; color: #212529; font-size: 18px; border-bottom: 2px solid #667eea; padding-bottom: 8px;">💡 Recommended Actions</h2>
            %s
        </div>
        <div style="background: #f8f9fa; padding: 16px 24px; text-align: center; border-top: 1px solid #dee2e6;">
            <p style="margin: 0; color: #6c757d; font-size: 12px;">Generated on %s by Review Pulse</p>
            <p style="margin: 8px 0 0 0; color: #adb5bd; font-size: 11px;">This is an automated report. Do not reply to this email.</p>
        </div>
    </div>
</body>
</html>`,
		html.EscapeString(product),
		s.Period.Start.Format("January 02"), s.Period.End.Format("January 02, 2006"),
		s.TotalReviews,
		s.ReviewsWithIssues, issuePercent(s),
		len(s.Actions),
		themesHTML.String(),
		actionsHTML.String(),
		time.Now().UTC().Format("2006-01-02 15:04 UTC"))
}
