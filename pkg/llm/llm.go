// Package llm provides a provider-agnostic completion client for the
// model calls the pulse pipeline makes. Two providers are supported:
// the Anthropic Messages API and the Gemini API.
package llm

import (
	"context"

	"github.com/rotisserie/eris"
)

// Client executes a single prompt completion against a model provider.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is a provider-neutral completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature *float64
	// JSONOnly asks the provider for a JSON-typed response where the API
	// supports it. Providers without the knob rely on the prompt alone.
	JSONOnly bool
}

// Response is a provider-neutral completion response.
type Response struct {
	ID    string
	Model string
	Text  string
	Usage Usage
}

// Usage tracks token consumption for a single call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// New returns a Client for the named provider ("anthropic" or "gemini").
// An empty provider defaults to Anthropic.
func New(ctx context.Context, provider, apiKey, model string) (Client, error) {
	switch provider {
	case "gemini":
		return NewGemini(ctx, apiKey, model)
	case "anthropic", "":
		return NewAnthropic(apiKey, model), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", provider)
	}
}
