package resend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test_key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var email Email
		require.NoError(t, json.NewDecoder(r.Body).Decode(&email))
		assert.Equal(t, "pulse@example.com", email.From)
		assert.Equal(t, []string{"pm@example.com"}, email.To)
		assert.Contains(t, email.Subject, "Weekly Pulse")
		assert.NotEmpty(t, email.HTML)
		assert.NotEmpty(t, email.Text)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "email_abc123"})
	}))
	defer ts.Close()

	client := NewClient("re_test_key", WithBaseURL(ts.URL))
	resp, err := client.Send(context.Background(), Email{
		From:    "pulse@example.com",
		To:      []string{"pm@example.com"},
		Subject: "Weekly Pulse (Aug 25) - 12 Issues Found: Login Failures",
		HTML:    "<h1>Pulse</h1>",
		Text:    "Pulse",
	})
	require.NoError(t, err)
	assert.Equal(t, "email_abc123", resp.ID)
}

func TestSendNoRecipients(t *testing.T) {
	t.Parallel()

	client := NewClient("re_test_key")
	_, err := client.Send(context.Background(), Email{
		From:    "pulse@example.com",
		Subject: "empty",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipients")
}

func TestSendRetriesTransientStatus(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "email_retry"})
	}))
	defer ts.Close()

	client := NewClient("re_test_key", WithBaseURL(ts.URL))
	resp, err := client.Send(context.Background(), Email{
		From:    "pulse@example.com",
		To:      []string{"pm@example.com"},
		Subject: "retry",
		Text:    "body",
	})
	require.NoError(t, err)
	assert.Equal(t, "email_retry", resp.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSendClientError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from address"}`))
	}))
	defer ts.Close()

	client := NewClient("re_test_key", WithBaseURL(ts.URL))
	_, err := client.Send(context.Background(), Email{
		From:    "bad",
		To:      []string{"pm@example.com"},
		Subject: "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 422")
}
