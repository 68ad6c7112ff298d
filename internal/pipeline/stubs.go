package pipeline

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/sells-group/review-pulse/internal/model"
	"github.com/sells-group/review-pulse/pkg/appstore"
	"github.com/sells-group/review-pulse/pkg/llm"
	"github.com/sells-group/review-pulse/pkg/notion"
	"github.com/sells-group/review-pulse/pkg/playstore"
	"github.com/sells-group/review-pulse/pkg/resend"
)

// Compile-time interface checks.
var (
	_ llm.Client       = (*StubLLMClient)(nil)
	_ playstore.Client = (*StubPlayStoreClient)(nil)
	_ appstore.Client  = (*StubAppStoreClient)(nil)
	_ resend.Client    = (*StubResendClient)(nil)
	_ notion.Client    = (*StubNotionClient)(nil)
)

// --- LLM Stub ---

// StubLLMClient implements llm.Client with canned responses keyed off the
// prompt shape, so an offline run exercises every phase without API keys.
type StubLLMClient struct{}

var (
	stubReviewLine = regexp.MustCompile(`(?m)^(\d+)\. (.*)$`)
	stubThemeLine  = regexp.MustCompile(`(?m)^\*\*(.+?)\*\* \(`)
)

// Complete implements llm.Client.
func (s *StubLLMClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	var text string
	switch {
	case strings.Contains(req.Prompt, "Reviews to classify"):
		text = stubClassifications(req.Prompt)
	case strings.Contains(req.Prompt, "product manager"):
		text = stubActions(req.Prompt)
	default:
		text = stubThemesJSON
	}

	return &llm.Response{
		ID:    "stub-msg-001",
		Model: "stub",
		Text:  text,
		Usage: llm.Usage{InputTokens: 150, OutputTokens: 50},
	}, nil
}

const stubThemesJSON = `[
  {"name": "App Crashes", "description": "Application crashing, freezing, not loading properly"},
  {"name": "Withdrawal Delays", "description": "Money withdrawal taking too long, funds stuck"},
  {"name": "Login Problems", "description": "Cannot sign in, OTP not arriving, login loops"}
]`

// stubClassifications reads the numbered reviews back out of the prompt and
// assigns each one a theme by keyword, mirroring what a real model would do
// with the canned store reviews.
func stubClassifications(prompt string) string {
	section := prompt
	if i := strings.Index(prompt, "Reviews to classify"); i >= 0 {
		section = prompt[i:]
	}
	if i := strings.Index(section, "## Output Format"); i >= 0 {
		section = section[:i]
	}

	var entries []rawClassification
	for i, m := range stubReviewLine.FindAllStringSubmatch(section, -1) {
		text := strings.ToLower(m[2])
		entry := rawClassification{Index: i + 1, Theme: model.ThemeNoIssue, Sentiment: "positive", Confidence: 0.7}
		switch {
		case strings.Contains(text, "crash") || strings.Contains(text, "freez"):
			entry.Theme, entry.Sentiment, entry.Confidence = "App Crashes", "negative", 0.9
		case strings.Contains(text, "withdraw") || strings.Contains(text, "stuck") || strings.Contains(text, "refund"):
			entry.Theme, entry.Sentiment, entry.Confidence = "Withdrawal Delays", "negative", 0.85
		case strings.Contains(text, "login") || strings.Contains(text, "otp"):
			entry.Theme, entry.Sentiment, entry.Confidence = "Login Problems", "negative", 0.8
		}
		entries = append(entries, entry)
	}

	out, _ := json.Marshal(entries)
	return string(out)
}

// stubActions emits one canned recommendation per theme named in the prompt.
func stubActions(prompt string) string {
	var actions []model.ActionItem
	for _, m := range stubThemeLine.FindAllStringSubmatch(prompt, -1) {
		actions = append(actions, model.ActionItem{
			Title:          "Investigate " + m[1],
			Description:    "Review the reported cases, reproduce the top complaint and ship a fix in the next release.",
			Priority:       "high",
			Effort:         "medium",
			AddressesTheme: m[1],
		})
	}
	out, _ := json.Marshal(actions)
	return string(out)
}

// --- Play Store Stub ---

// StubPlayStoreClient implements playstore.Client with canned reviews. The
// set deliberately includes crashes, stuck withdrawals, a login complaint,
// praise, and raw PII so the redactor has something to do.
type StubPlayStoreClient struct{}

// RecentReviews implements playstore.Client.
func (s *StubPlayStoreClient) RecentReviews(_ context.Context, _, _ string, _ int) ([]playstore.Review, error) {
	now := time.Now().UTC()
	return []playstore.Review{
		{ID: "gp-001", UserName: "Rahul Sharma", Text: "App crashes every time I open the portfolio tab. Very frustrating.", Score: 1, ThumbsUp: 42, Version: "5.2.1", At: now.AddDate(0, 0, -1)},
		{ID: "gp-002", UserName: "Priya M", Text: "My withdrawal has been stuck for 5 days and support is not responding.", Score: 1, ThumbsUp: 31, Version: "5.2.1", At: now.AddDate(0, 0, -2)},
		{ID: "gp-003", UserName: "Amit", Text: "Cannot login since the last update, the OTP never arrives.", Score: 2, ThumbsUp: 12, Version: "5.2.0", At: now.AddDate(0, 0, -3)},
		{ID: "gp-004", UserName: "Sneha Patel", Text: "Great app for tracking investments, love the clean design!", Score: 5, ThumbsUp: 8, Version: "5.2.1", At: now.AddDate(0, 0, -4)},
		{ID: "gp-005", UserName: "Vikram", Text: "The app freezes on the payments screen after the update.", Score: 2, ThumbsUp: 19, Version: "5.2.1", At: now.AddDate(0, 0, -5)},
		{ID: "gp-006", UserName: "Deepak K", Text: "Withdrawal taking too long, money deducted but not credited. Call me at 9876543210.", Score: 1, ThumbsUp: 27, Version: "5.1.9", At: now.AddDate(0, 0, -6)},
		{ID: "gp-007", UserName: "Ananya", Text: "Best investment app I have used so far.", Score: 5, ThumbsUp: 5, Version: "5.2.1", At: now.AddDate(0, 0, -8)},
		{ID: "gp-008", UserName: "Rohan Gupta", Text: "Crashed thrice today while checking my mutual funds.", Score: 1, ThumbsUp: 15, Version: "5.2.1", At: now.AddDate(0, 0, -9)},
	}, nil
}

// --- App Store Stub ---

// StubAppStoreClient implements appstore.Client with canned reviews.
type StubAppStoreClient struct{}

// RecentReviews implements appstore.Client.
func (s *StubAppStoreClient) RecentReviews(_ context.Context, _, _ string, _ int) ([]appstore.Review, error) {
	now := time.Now().UTC()
	return []appstore.Review{
		{ID: "as-001", Title: "Unusable", Content: "Every update makes the crashes worse. Unusable on my phone now.", Rating: 1, Version: "5.2.1", VoteSum: 23, Updated: now.AddDate(0, 0, -1)},
		{ID: "as-002", Title: "No refund", Content: "Refund still not processed after two weeks, horrible experience. Email me at john.doe@example.com.", Rating: 1, Version: "5.2.0", VoteSum: 17, Updated: now.AddDate(0, 0, -3)},
		{ID: "as-003", Title: "Smooth", Content: "Smooth experience, quick KYC and easy to navigate.", Rating: 5, Version: "5.2.1", VoteSum: 4, Updated: now.AddDate(0, 0, -5)},
		{ID: "as-004", Title: "Login loop", Content: "Login loop after the latest version, had to reinstall twice.", Rating: 2, Version: "5.2.1", VoteSum: 9, Updated: now.AddDate(0, 0, -7)},
		{ID: "as-005", Title: "Money stuck", Content: "Money stuck in the wallet with no way to withdraw it.", Rating: 1, Version: "5.1.9", VoteSum: 21, Updated: now.AddDate(0, 0, -10)},
	}, nil
}

// --- Resend Stub ---

// StubResendClient implements resend.Client as a no-op.
type StubResendClient struct{}

// Send implements resend.Client.
func (s *StubResendClient) Send(_ context.Context, _ resend.Email) (*resend.SendResponse, error) {
	return &resend.SendResponse{ID: "stub-email-001"}, nil
}

// --- Notion Stub ---

// StubNotionClient implements notion.Client as a no-op.
type StubNotionClient struct{}

// CreatePage implements notion.Client.
func (s *StubNotionClient) CreatePage(_ context.Context, _ *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return &notionapi.Page{ID: "stub-page-001"}, nil
}
