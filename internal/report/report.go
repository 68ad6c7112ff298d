// Package report renders a pulse summary into the delivery formats: the
// markdown document, the email subject and bodies, and the Notion page.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/review-pulse/internal/model"
)

var (
	priorityEmoji = map[string]string{"high": "🔴", "medium": "🟡", "low": "🟢"}
	effortBadge   = map[string]string{"quick-win": "⚡ Quick Win", "medium": "📅 Medium", "large": "🏗️ Large"}
)

// Subject builds the pulse email subject line. The top theme is promoted
// into the subject so a crowded inbox still shows the week's headline.
func Subject(product string, s model.PulseSummary) string {
	week := s.Period.End.Format("Jan 02")
	if top := s.TopTheme(); top != "" {
		return fmt.Sprintf("📊 %s Weekly Pulse (%s) - %d Issues Found: %s", product, week, s.ReviewsWithIssues, top)
	}
	return fmt.Sprintf("📊 %s Weekly Pulse (%s) - No Critical Issues", product, week)
}

// Markdown renders the full pulse document.
func Markdown(product string, s model.PulseSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s Weekly Pulse\n\n", product)
	fmt.Fprintf(&b, "**Period:** %s - %s  \n", s.Period.Start.Format("January 02"), s.Period.End.Format("January 02, 2006"))
	fmt.Fprintf(&b, "**Total Reviews:** %d  \n", s.TotalReviews)
	fmt.Fprintf(&b, "**Reviews with Issues:** %d (%.1f%%)\n\n", s.ReviewsWithIssues, issuePercent(s))
	b.WriteString("---\n\n")

	b.WriteString("## 🔍 Top Issues This Week\n\n")
	if len(s.Themes) == 0 {
		b.WriteString("No significant issues found this week.\n\n")
	}
	for i, theme := range s.Themes {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, theme.Name)
		fmt.Fprintf(&b, "**%d mentions** (%.1f%% of reviews) | Avg Rating: %s (%.1f)\n\n",
			theme.Count, theme.Percentage, stars(int(theme.AvgRating)), theme.AvgRating)

		if len(theme.Quotes) > 0 {
			b.WriteString("**What users are saying:**\n\n")
			for _, q := range theme.Quotes {
				fmt.Fprintf(&b, "> \"%s\" %s\n>\n", q.Text, stars(q.Rating))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("---\n\n")
	b.WriteString("## 💡 Recommended Actions\n\n")
	if len(s.Actions) == 0 {
		b.WriteString("No actions generated.\n\n")
	}
	for i, action := range s.Actions {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, action.Title)
		fmt.Fprintf(&b, "%s **%s** | %s\n\n", emoji(action.Priority), strings.ToUpper(action.Priority), badge(action.Effort))
		fmt.Fprintf(&b, "%s\n\n", action.Description)
		fmt.Fprintf(&b, "*Addresses: %s*\n\n", action.AddressesTheme)
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "*Generated on %s by Review Pulse*\n", time.Now().UTC().Format("2006-01-02 15:04 UTC"))

	return b.String()
}

func issuePercent(s model.PulseSummary) float64 {
	if s.TotalReviews == 0 {
		return 0
	}
	return float64(s.ReviewsWithIssues) * 100 / float64(s.TotalReviews)
}

// stars renders an n-star rating, clamped to the 1-5 scale. Zero means the
// rating is unknown and renders as empty.
func stars(n int) string {
	if n <= 0 {
		return ""
	}
	if n > 5 {
		n = 5
	}
	return strings.Repeat("⭐", n)
}

func emoji(priority string) string {
	if e, ok := priorityEmoji[priority]; ok {
		return e
	}
	return "⚪"
}

func badge(effort string) string {
	if b, ok := effortBadge[effort]; ok {
		return b
	}
	return effort
}
