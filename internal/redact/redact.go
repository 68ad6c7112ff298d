// Package redact strips personally identifiable information from review
// text before it reaches a prompt, a quote or any other process boundary.
package redact

import (
	"regexp"
	"strings"
)

// pattern pairs a compiled expression with its replacement token. The slice
// order is load-bearing: more specific shapes run first so a broad digit
// pattern never swallows part of a URL or an IP octet.
type pattern struct {
	re    *regexp.Regexp
	token string
}

var patterns = []pattern{
	// Email addresses.
	{regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL]"},

	// URLs before any digit pattern: an address embedded in a URL or an IP
	// inside a link must not be mis-tagged as a phone or account number.
	{regexp.MustCompile(`(?i)https?://[^\s]+`), "[URL]"},
	{regexp.MustCompile(`(?i)www\.[^\s]+`), "[URL]"},

	// Bare IPv4 addresses.
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[IP]"},

	// Indian mobile numbers, with or without a +91 prefix.
	{regexp.MustCompile(`(?i)\b(?:\+91[-.\s]?)?[6-9]\d{9}\b`), "[PHONE]"},

	// Generic phone shapes (international prefix, NANP, separators).
	{regexp.MustCompile(`(?i)\b(?:\+\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), "[PHONE]"},

	// Indian PAN numbers.
	{regexp.MustCompile(`(?i)\b[A-Z]{5}[0-9]{4}[A-Z]\b`), "[PAN]"},

	// Aadhaar numbers, often written in groups of four.
	{regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`), "[AADHAAR]"},

	// Bank account numbers.
	{regexp.MustCompile(`\b\d{8,18}\b`), "[ACCOUNT]"},

	// UPI handles. Runs after email, so only name@bank forms without a TLD
	// are left to match.
	{regexp.MustCompile(`(?i)\b[a-zA-Z0-9._-]+@[a-zA-Z]{3,}\b`), "[UPI]"},
}

var whitespace = regexp.MustCompile(`\s+`)

// Redact replaces PII in text with bracketed tokens. It is total (malformed
// input yields a best-effort result, never an error) and idempotent: no
// replacement token matches any pattern, so a second pass is a no-op.
func Redact(text string) string {
	if text == "" {
		return ""
	}

	cleaned := text
	for _, p := range patterns {
		cleaned = p.re.ReplaceAllString(cleaned, p.token)
	}

	return strings.TrimSpace(whitespace.ReplaceAllString(cleaned, " "))
}
