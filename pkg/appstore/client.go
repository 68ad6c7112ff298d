// Package appstore fetches customer reviews from the public iTunes RSS feed.
//
// The feed serves roughly 50 reviews per page and caps out at ten pages,
// so only the most recent few hundred reviews are reachable per country.
package appstore

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the App Store review feed operations.
type Client interface {
	// RecentReviews fetches up to pages feed pages of the newest reviews
	// for the app in the given storefront country.
	RecentReviews(ctx context.Context, appID, country string, pages int) ([]Review, error)
}

// Review is a single customer review as served by the feed.
type Review struct {
	ID      string
	Title   string
	Content string
	Rating  int
	Version string
	VoteSum int
	Updated time.Time
}

// Option configures the App Store client.
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
	http    *http.Client
	parser  *gofeed.Parser
	policy  *bluemonday.Policy
	limiter *rate.Limiter
}

// NewClient creates a new App Store review feed client. Page requests are
// paced at 2 req/s; the feed never serves more than ten pages anyway.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://itunes.apple.com",
		limiter: rate.NewLimiter(2, 2),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		parser: gofeed.NewParser(),
		policy: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503).
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "appstore: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("appstore: status %d", resp.StatusCode)
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) RecentReviews(ctx context.Context, appID, country string, pages int) ([]Review, error) {
	if pages < 1 {
		pages = 1
	}

	var all []Review
	for page := 1; page <= pages; page++ {
		reviews, err := c.fetchPage(ctx, appID, country, page)
		if err != nil {
			// Pages past the last populated one come back as errors or
			// empty feeds; partial results are still useful.
			if page > 1 {
				break
			}
			return nil, err
		}
		if len(reviews) == 0 {
			break
		}
		all = append(all, reviews...)
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

func (c *httpClient) fetchPage(ctx context.Context, appID, country string, page int) ([]Review, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "appstore: rate limit")
	}

	reqURL := fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/xml",
		c.baseURL, country, page, appID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "appstore: create request")
	}
	req.Header.Set("Accept", "application/atom+xml")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "appstore: request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("appstore: unexpected status %d", statusCode)
	}

	feed, err := c.parser.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, eris.Wrap(err, "appstore: parse feed")
	}

	reviews := make([]Review, 0, len(feed.Items))
	for _, it := range feed.Items {
		rating, ok := extValue(it, "rating")
		if !ok {
			// The first entry of each feed is app metadata, not a review.
			continue
		}

		r := Review{
			ID:      it.GUID,
			Title:   strings.TrimSpace(it.Title),
			Content: c.plainText(it.Content),
			Rating:  atoi(rating),
		}
		if r.Content == "" {
			r.Content = c.plainText(it.Description)
		}
		if v, ok := extValue(it, "version"); ok {
			r.Version = v
		}
		if v, ok := extValue(it, "voteSum"); ok {
			r.VoteSum = atoi(v)
		}
		if it.UpdatedParsed != nil {
			r.Updated = *it.UpdatedParsed
		} else if it.PublishedParsed != nil {
			r.Updated = *it.PublishedParsed
		}

		reviews = append(reviews, r)
	}

	return reviews, nil
}

// extValue reads an im-namespaced extension element from a feed entry.
func extValue(it *gofeed.Item, name string) (string, bool) {
	im, ok := it.Extensions["im"]
	if !ok {
		return "", false
	}
	exts, ok := im[name]
	if !ok || len(exts) == 0 {
		return "", false
	}
	return exts[0].Value, true
}

var spaceCollapseRe = regexp.MustCompile(`\s+`)

// plainText strips HTML tags, decodes entities, and collapses whitespace.
func (c *httpClient) plainText(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	text := c.policy.Sanitize(rawHTML)
	text = html.UnescapeString(text)
	text = strings.TrimSpace(text)
	return spaceCollapseRe.ReplaceAllString(text, " ")
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
