// Package model defines the domain types shared across the pulse pipeline.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Source identifies the app store a review came from.
type Source string

const (
	SourceGooglePlay Source = "google_play"
	SourceAppStore   Source = "app_store"
)

// Valid reports whether s is a known store.
func (s Source) Valid() bool {
	return s == SourceGooglePlay || s == SourceAppStore
}

// RawReview is a store-native review record as returned by a fetch client.
// It is ephemeral: records are normalized into Review and discarded.
type RawReview struct {
	Source     Source    `json:"source"`
	ExternalID string    `json:"external_id"`
	Text       string    `json:"text"`
	Rating     int       `json:"rating"`
	Date       time.Time `json:"date"`
	Author     string    `json:"author,omitempty"`
	AppVersion string    `json:"app_version,omitempty"`
	ThumbsUp   int       `json:"thumbs_up,omitempty"`
}

// Review is the canonical, redacted form of a review. Content has always
// passed PII redaction before a Review is constructed.
type Review struct {
	Source      Source    `json:"source"`
	ExternalID  string    `json:"external_id"`
	Content     string    `json:"content"`
	Rating      int       `json:"rating"`
	Date        time.Time `json:"date"`
	ThumbsUp    int       `json:"thumbs_up"`
	AppVersion  string    `json:"app_version,omitempty"`
	Fingerprint string    `json:"fingerprint"`
}

// Sentiment is the polarity label assigned during classification.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Valid reports whether s is one of the three known labels.
func (s Sentiment) Valid() bool {
	return s == SentimentPositive || s == SentimentNeutral || s == SentimentNegative
}

// Sign returns the base score contribution of the label: +1, 0 or -1.
func (s Sentiment) Sign() float64 {
	switch s {
	case SentimentPositive:
		return 1
	case SentimentNegative:
		return -1
	default:
		return 0
	}
}

// ClassifiedReview is a Review plus the theme and sentiment assigned to it.
// Every review that enters classification produces exactly one of these.
type ClassifiedReview struct {
	Review
	Theme          string    `json:"theme"`
	Sentiment      Sentiment `json:"sentiment"`
	SentimentScore float64   `json:"sentiment_score"`
	Confidence     float64   `json:"confidence"`
}

// Fingerprint computes the stable dedup key for a review: the first 16 hex
// characters of SHA-256 over the NFC-normalized content, the UTC date and
// the source. Two fetches of the same review always collide here, which is
// what makes re-ingestion a no-op.
func Fingerprint(content string, date time.Time, source Source) string {
	canonical := norm.NFC.String(strings.TrimSpace(content))
	payload := fmt.Sprintf("%s|%s|%s", canonical, date.UTC().Format(time.RFC3339), source)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}
