package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/review-pulse/internal/config"
	"github.com/sells-group/review-pulse/internal/model"
	"github.com/sells-group/review-pulse/internal/resilience"
	"github.com/sells-group/review-pulse/internal/store"
	"github.com/sells-group/review-pulse/pkg/appstore"
	"github.com/sells-group/review-pulse/pkg/llm"
	"github.com/sells-group/review-pulse/pkg/notion"
	"github.com/sells-group/review-pulse/pkg/playstore"
	"github.com/sells-group/review-pulse/pkg/resend"
)

// Compile-time interface checks.
var (
	_ store.Store      = (*mockStore)(nil)
	_ llm.Client       = (*mockLLM)(nil)
	_ playstore.Client = (*mockPlayStore)(nil)
	_ appstore.Client  = (*mockAppStore)(nil)
	_ resend.Client    = (*mockMailer)(nil)
	_ notion.Client    = (*mockNotionClient)(nil)
)

// mockStore implements store.Store in memory, keyed the same way the real
// stores are: (source, fingerprint) for reviews, run id for everything else.
type mockStore struct {
	mu            sync.Mutex
	rows          map[string]model.ClassifiedReview
	themes        map[string][]model.Theme
	lastThemesRun string
	runs          map[string]*model.RunRecord
	runOrder      []string
	pulses        []model.Pulse

	classifyCalls int
	classifyErr   error
	upsertErr     error
	windowErr     error
	savePulseErr  error
	saveThemesErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		rows:   make(map[string]model.ClassifiedReview),
		themes: make(map[string][]model.Theme),
		runs:   make(map[string]*model.RunRecord),
	}
}

func (m *mockStore) UpsertReviews(_ context.Context, reviews []model.Review) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	inserted := 0
	for _, r := range reviews {
		key := string(r.Source) + "|" + r.Fingerprint
		if _, ok := m.rows[key]; ok {
			continue
		}
		m.rows[key] = model.ClassifiedReview{Review: r}
		inserted++
	}
	return inserted, nil
}

func (m *mockStore) ReviewsInWindow(_ context.Context, w model.Window) ([]model.ClassifiedReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.windowErr != nil {
		return nil, m.windowErr
	}
	var out []model.ClassifiedReview
	for _, cr := range m.rows {
		if w.Contains(cr.Date) {
			out = append(out, cr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out, nil
}

func (m *mockStore) UpdateClassifications(_ context.Context, _ string, reviews []model.ClassifiedReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifyCalls++
	if m.classifyErr != nil {
		return m.classifyErr
	}
	for _, cr := range reviews {
		key := string(cr.Source) + "|" + cr.Fingerprint
		if row, ok := m.rows[key]; ok {
			row.Theme = cr.Theme
			row.Sentiment = cr.Sentiment
			row.SentimentScore = cr.SentimentScore
			row.Confidence = cr.Confidence
			m.rows[key] = row
		}
	}
	return nil
}

func (m *mockStore) SaveThemes(_ context.Context, runID string, themes []model.Theme) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveThemesErr != nil {
		return m.saveThemesErr
	}
	m.themes[runID] = themes
	m.lastThemesRun = runID
	return nil
}

func (m *mockStore) LatestThemes(_ context.Context) ([]model.Theme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.themes[m.lastThemesRun], nil
}

func (m *mockStore) SaveRun(_ context.Context, run *model.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		m.runOrder = append(m.runOrder, run.ID)
	}
	cp := *run
	cp.Phases = append([]model.PhaseResult(nil), run.Phases...)
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockStore) GetRun(_ context.Context, runID string) (*model.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, eris.New("run not found")
	}
	cp := *run
	return &cp, nil
}

func (m *mockStore) RecentRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RunRecord
	for i := len(m.runOrder) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.runs[m.runOrder[i]])
	}
	return out, nil
}

func (m *mockStore) SavePulse(_ context.Context, runID string, summary *model.PulseSummary, markdown string) (*model.Pulse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.savePulseErr != nil {
		return nil, m.savePulseErr
	}
	p := model.Pulse{
		ID:        "pulse-test",
		RunID:     runID,
		Summary:   *summary,
		Markdown:  markdown,
		CreatedAt: time.Now().UTC(),
	}
	m.pulses = append(m.pulses, p)
	return &p, nil
}

func (m *mockStore) LatestPulse(_ context.Context) (*model.Pulse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pulses) == 0 {
		return nil, nil
	}
	p := m.pulses[len(m.pulses)-1]
	return &p, nil
}

func (m *mockStore) Migrate(context.Context) error { return nil }
func (m *mockStore) Close() error                  { return nil }

// row returns the stored row for a review, for assertions.
func (m *mockStore) row(r model.Review) (model.ClassifiedReview, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cr, ok := m.rows[string(r.Source)+"|"+r.Fingerprint]
	return cr, ok
}

// mockLLM implements llm.Client via a per-call hook; calls are recorded for
// prompt assertions.
type mockLLM struct {
	mu      sync.Mutex
	calls   []llm.Request
	respond func(req llm.Request, call int) (*llm.Response, error)
}

func (m *mockLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	call := len(m.calls)
	m.calls = append(m.calls, req)
	respond := m.respond
	m.mu.Unlock()

	if respond == nil {
		return textResponse("[]"), nil
	}
	return respond(req, call)
}

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		ID:    "msg-test",
		Model: "test-model",
		Text:  text,
		Usage: llm.Usage{InputTokens: 100, OutputTokens: 25},
	}
}

// mockPlayStore implements playstore.Client with scripted results.
type mockPlayStore struct {
	reviews []playstore.Review
	err     error
	calls   int
}

func (m *mockPlayStore) RecentReviews(_ context.Context, _, _ string, _ int) ([]playstore.Review, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.reviews, nil
}

// mockAppStore implements appstore.Client with scripted results.
type mockAppStore struct {
	reviews []appstore.Review
	err     error
	calls   int
}

func (m *mockAppStore) RecentReviews(_ context.Context, _, _ string, _ int) ([]appstore.Review, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.reviews, nil
}

// mockMailer implements resend.Client for testing.
type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, email resend.Email) (*resend.SendResponse, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.SendResponse), args.Error(1)
}

// mockNotionClient implements notion.Client for testing.
type mockNotionClient struct {
	mock.Mock
}

func (m *mockNotionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

// --- shared helpers ---

// fastRetry keeps test retries in the microsecond range.
func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     1,
		JitterFraction: 0,
	}
}

// testReview builds a canonical review dated daysAgo days before now.
func testReview(content string, rating, daysAgo int) model.Review {
	date := time.Now().UTC().AddDate(0, 0, -daysAgo)
	return model.Review{
		Source:      model.SourceGooglePlay,
		Content:     content,
		Rating:      rating,
		Date:        date,
		Fingerprint: model.Fingerprint(content, date, model.SourceGooglePlay),
	}
}

// testConfig returns a config tuned for tests: tiny backoffs, small batches.
func testConfig() *config.Config {
	return &config.Config{
		Product: "TestApp",
		Apps: config.AppsConfig{
			PlayStoreID: "com.test.app",
			AppStoreID:  "123456789",
			Country:     "us",
			PlayCount:   50,
			AppPages:    1,
		},
		LLM: config.LLMConfig{Provider: "anthropic", AnthropicModel: "claude-haiku-4-5-20251001"},
		Pulse: config.PulseConfig{
			WindowWeeks:    12,
			MaxThemes:      5,
			BatchSize:      20,
			Concurrency:    2,
			TopThemes:      3,
			QuotesPerTheme: 3,
			SampleCap:      100,
		},
		Retry: config.RetryConfig{
			MaxAttempts:      2,
			InitialBackoffMs: 1,
			MaxBackoffMs:     2,
			Multiplier:       1,
			JitterFraction:   0,
		},
	}
}
