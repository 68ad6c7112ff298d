package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Kind classifies an error by which recovery policy applies to it.
type Kind int

const (
	// KindUnknown is an unclassified error.
	KindUnknown Kind = iota
	// KindFetch is a per-source fetch failure. The run degrades to the
	// sources that did answer instead of failing outright.
	KindFetch
	// KindValidation is a malformed external response. Retried once with a
	// stricter instruction, then routed to the deterministic fallback.
	KindValidation
	// KindRateLimit is a throttled call, retried within the fixed budget.
	KindRateLimit
	// KindConfig is a missing required capability. Fatal for the phases
	// that need it; ingestion still runs without an LLM key.
	KindConfig
	// KindDelivery is a report delivery failure. Never rolls back
	// persisted results.
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "fetch"
	case KindValidation:
		return "validation"
	case KindRateLimit:
		return "rate_limit"
	case KindConfig:
		return "config"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// classifiedError tags an error with its recovery kind.
type classifiedError struct {
	kind Kind
	err  error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Classify tags err with a recovery kind. Returns nil when err is nil.
func Classify(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{kind: kind, err: err}
}

// KindOf reports the recovery kind of err, or KindUnknown when the chain
// carries no classification.
func KindOf(err error) Kind {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind
	}
	return KindUnknown
}

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx,
// network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError or a rate-limit classification, or if it matches common
// transient network patterns (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if KindOf(err) == KindRateLimit {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
