package llm

import (
	"context"

	"github.com/rotisserie/eris"
	genai "google.golang.org/genai"
)

// geminiClient implements Client using the official genai SDK.
type geminiClient struct {
	cli   *genai.Client
	model string
}

// NewGemini creates a Client backed by the Gemini API. An empty key lets
// the SDK fall back to GEMINI_API_KEY from the environment.
func NewGemini(ctx context.Context, apiKey, model string) (Client, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: gemini client")
	}
	return &geminiClient{cli: cli, model: model}, nil
}

func (c *geminiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	full := req.Prompt
	if req.System != "" {
		full = req.System + "\n\n" + req.Prompt
	}

	cfg := &genai.GenerateContentConfig{}
	if req.JSONOnly {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}

	resp, err := c.cli.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		cfg,
	)
	if err != nil {
		return nil, eris.Wrap(err, "llm: gemini complete")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, eris.New("llm: gemini returned no candidates")
	}

	out := &Response{
		Model: c.model,
		Text:  resp.Candidates[0].Content.Parts[0].Text,
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}
