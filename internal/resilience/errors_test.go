package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestClassifyAndKindOf(t *testing.T) {
	cases := []struct {
		kind Kind
		name string
	}{
		{KindFetch, "fetch"},
		{KindValidation, "validation"},
		{KindRateLimit, "rate_limit"},
		{KindConfig, "config"},
		{KindDelivery, "delivery"},
	}
	for _, c := range cases {
		err := Classify(c.kind, errors.New("boom"))
		if got := KindOf(err); got != c.kind {
			t.Errorf("KindOf(Classify(%v)) = %v", c.kind, got)
		}
		if c.kind.String() != c.name {
			t.Errorf("Kind(%d).String() = %q, want %q", c.kind, c.kind.String(), c.name)
		}
	}
}

func TestClassifyNilIsNil(t *testing.T) {
	if Classify(KindFetch, nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestKindOfSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("discover themes: %w", Classify(KindValidation, errors.New("not json")))
	if KindOf(err) != KindValidation {
		t.Errorf("KindOf(wrapped) = %v, want KindValidation", KindOf(err))
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("plain error should be KindUnknown")
	}
	if KindOf(nil) != KindUnknown {
		t.Error("nil should be KindUnknown")
	}
}

func TestRateLimitKindIsTransient(t *testing.T) {
	err := Classify(KindRateLimit, errors.New("429 from provider"))
	if !IsTransient(err) {
		t.Error("rate-limit classified error should be transient")
	}

	if IsTransient(Classify(KindConfig, errors.New("missing key"))) {
		t.Error("config error should not be transient")
	}
}

func TestIsTransientExplicitAndWrapped(t *testing.T) {
	if !IsTransient(NewTransientError(errors.New("server overloaded"), 503)) {
		t.Error("expected TransientError to be transient")
	}

	wrapped := fmt.Errorf("api call failed: %w", NewTransientError(errors.New("rate limited"), 429))
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransientNilAndRegular(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
	if IsTransient(errors.New("invalid input: missing field")) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransientNetworkErrors(t *testing.T) {
	if !IsTransient(fmt.Errorf("write tcp: %w", syscall.ECONNRESET)) {
		t.Error("ECONNRESET should be transient")
	}
	if !IsTransient(fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)) {
		t.Error("ECONNREFUSED should be transient")
	}
	if !IsTransient(&net.DNSError{IsTimeout: true, Err: "timeout"}) {
		t.Error("network timeout should be transient")
	}

	patterns := []string{
		"connection reset by peer",
		"broken pipe",
		"TLS handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range patterns {
		if !IsTransient(errors.New(p)) {
			t.Errorf("expected %q to be transient", p)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	transient := []int{408, 429, 500, 502, 503, 504}
	for _, code := range transient {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}

	permanent := []int{200, 201, 400, 401, 403, 404, 405, 409, 422}
	for _, code := range permanent {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to NOT be transient", code)
		}
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	if !errors.Is(te, inner) {
		t.Error("TransientError.Unwrap should return the inner error")
	}
	if te.StatusCode != 500 {
		t.Errorf("expected StatusCode 500, got %d", te.StatusCode)
	}
	if te.Error() != "root cause" {
		t.Errorf("unexpected message %q", te.Error())
	}
}
