// Package playstore fetches app reviews through the undocumented
// batchexecute RPC that backs the Play Store web UI.
//
// The endpoint takes a form-encoded "f.req" envelope naming the UsvDTd
// method and returns frames guarded by a ")]}'" prefix. Reviews ride as
// positional JSON arrays inside the first wrb.fr frame; the continuation
// token for the next page sits in the second-to-last element's last slot.
package playstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Play Store review operations.
type Client interface {
	// RecentReviews fetches up to count of the newest reviews for the app,
	// following continuation tokens across pages as needed.
	RecentReviews(ctx context.Context, appID, country string, count int) ([]Review, error)
}

// Review is a single review as served by the RPC.
type Review struct {
	ID       string
	UserName string
	Text     string
	Score    int
	ThumbsUp int
	Version  string
	At       time.Time
}

// sortNewest is the RPC enum for newest-first ordering.
const sortNewest = 2

// pageSize is the largest batch the endpoint serves per request.
const pageSize = 199

// Option configures the Play Store client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithLanguage sets the review language (default "en").
func WithLanguage(lang string) Option {
	return func(c *httpClient) {
		c.lang = lang
	}
}

// WithRateLimit overrides the default page-request pacing (2 req/s).
// A zero or negative rps disables pacing entirely.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	baseURL string
	lang    string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Play Store review client. Page requests are paced
// at 2 req/s so multi-page fetches stay gentle on the unofficial endpoint.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://play.google.com",
		lang:    "en",
		limiter: rate.NewLimiter(2, 2),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) RecentReviews(ctx context.Context, appID, country string, count int) ([]Review, error) {
	if count < 1 {
		count = pageSize
	}

	var (
		all   []Review
		token string
	)
	for len(all) < count {
		want := count - len(all)
		if want > pageSize {
			want = pageSize
		}

		reviews, next, err := c.fetchPage(ctx, appID, country, want, token)
		if err != nil {
			if len(all) > 0 {
				break
			}
			return nil, err
		}
		all = append(all, reviews...)

		if next == "" || len(reviews) == 0 {
			break
		}
		token = next
	}

	if len(all) > count {
		all = all[:count]
	}
	return all, nil
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *httpClient) fetchPage(ctx context.Context, appID, country string, count int, token string) ([]Review, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", eris.Wrap(err, "playstore: rate limit")
	}

	reqURL := fmt.Sprintf("%s/_/PlayStoreUi/data/batchexecute?hl=%s&gl=%s",
		c.baseURL, url.QueryEscape(c.lang), url.QueryEscape(country))

	form := url.Values{"f.req": {buildEnvelope(appID, count, token)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, "", eris.Wrap(err, "playstore: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", eris.Wrap(err, "playstore: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", eris.Wrap(err, "playstore: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", eris.Errorf("playstore: unexpected status %d", resp.StatusCode)
	}

	return parseEnvelope(body)
}

// buildEnvelope constructs the f.req form value. The review request itself
// is a JSON string nested inside the outer frame array.
func buildEnvelope(appID string, count int, token string) string {
	tok := "null"
	if token != "" {
		tok = strconv.Quote(token)
	}
	inner := fmt.Sprintf(`[null,null,[2,%d,[%d,null,%s],null,[]],[%q,7]]`,
		sortNewest, count, tok, appID)

	frame, _ := json.Marshal([]any{[]any{[]any{"UsvDTd", inner, nil, "generic"}}})
	return string(frame)
}

// parseEnvelope unwraps the response frames and decodes the review payload.
func parseEnvelope(body []byte) ([]Review, string, error) {
	// Strip the anti-XSSI guard line before the JSON starts.
	idx := bytes.IndexByte(body, '[')
	if idx < 0 {
		return nil, "", eris.New("playstore: malformed response envelope")
	}

	var frames []json.RawMessage
	if err := json.Unmarshal(body[idx:], &frames); err != nil {
		return nil, "", eris.Wrap(err, "playstore: decode response frames")
	}

	payload, ok := findPayload(frames)
	if !ok {
		return nil, "", eris.New("playstore: no review frame in response")
	}

	// A null payload means the app has no reviews at all.
	if payload == "" || payload == "null" {
		return nil, "", nil
	}

	var inner []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &inner); err != nil {
		return nil, "", eris.Wrap(err, "playstore: decode review payload")
	}
	if len(inner) == 0 {
		return nil, "", nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(inner[0], &entries); err != nil {
		// An explicit null here also means no reviews.
		return nil, "", nil
	}

	reviews := make([]Review, 0, len(entries))
	for _, e := range entries {
		if r, ok := parseReview(e); ok {
			reviews = append(reviews, r)
		}
	}

	return reviews, continuationToken(inner), nil
}

// findPayload locates the wrb.fr frame carrying the UsvDTd result and
// returns its embedded JSON string.
func findPayload(frames []json.RawMessage) (string, bool) {
	for _, f := range frames {
		var frame []json.RawMessage
		if err := json.Unmarshal(f, &frame); err != nil || len(frame) < 3 {
			continue
		}
		var kind string
		if err := json.Unmarshal(frame[0], &kind); err != nil || kind != "wrb.fr" {
			continue
		}
		var payload string
		if err := json.Unmarshal(frame[2], &payload); err != nil {
			// Null payload for an otherwise valid frame.
			if bytes.Equal(bytes.TrimSpace(frame[2]), []byte("null")) {
				return "null", true
			}
			continue
		}
		return payload, true
	}
	return "", false
}

// continuationToken pulls the next-page token out of the decoded payload,
// returning "" when there are no further pages.
func continuationToken(inner []json.RawMessage) string {
	if len(inner) < 2 {
		return ""
	}
	var holder []any
	if err := json.Unmarshal(inner[len(inner)-2], &holder); err != nil || len(holder) == 0 {
		return ""
	}
	token, _ := holder[len(holder)-1].(string)
	return token
}

// parseReview decodes one positional review array. Fields the endpoint is
// known to serve: [0] id, [1][0] author, [2] score, [4] text,
// [5][0] epoch seconds, [6] thumbs up, [10] app version.
func parseReview(raw json.RawMessage) (Review, bool) {
	var entry []any
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Review{}, false
	}

	var r Review
	r.ID, _ = at(entry, 0).(string)
	if author, ok := at(entry, 1).([]any); ok && len(author) > 0 {
		r.UserName, _ = author[0].(string)
	}
	if score, ok := at(entry, 2).(float64); ok {
		r.Score = int(score)
	}
	r.Text, _ = at(entry, 4).(string)
	if ts, ok := at(entry, 5).([]any); ok && len(ts) > 0 {
		if sec, ok := ts[0].(float64); ok {
			r.At = time.Unix(int64(sec), 0).UTC()
		}
	}
	if thumbs, ok := at(entry, 6).(float64); ok {
		r.ThumbsUp = int(thumbs)
	}
	if v, ok := at(entry, 10).(string); ok {
		r.Version = v
	}

	if r.ID == "" && r.Text == "" {
		return Review{}, false
	}
	return r, true
}

// at indexes into a decoded JSON array, returning nil when out of range.
func at(arr []any, i int) any {
	if i < 0 || i >= len(arr) {
		return nil
	}
	return arr[i]
}
