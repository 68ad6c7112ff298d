package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku":  {Input: 0.80, Output: 4.00},
			"sonnet": {Input: 3.00, Output: 15.00},
		},
		Gemini: map[string]ModelRate{
			"flash": {Input: 0.30, Output: 2.50},
		},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int64
		output int64
		want   float64
	}{
		{
			name:  "haiku simple",
			model: "haiku",
			input: 1000000, output: 100000,
			want: 0.80 + 0.40, // 0.80 input + 0.40 output
		},
		{
			name:  "sonnet",
			model: "sonnet",
			input: 1000000, output: 100000,
			want: 3.00 + 1.50,
		},
		{
			name:  "unknown model returns 0",
			model: "unknown",
			input: 1000000, output: 1000000,
			want: 0,
		},
		{
			name:  "zero tokens returns 0",
			model: "haiku",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.Claude(tt.model, tt.input, tt.output)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestGemini(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	got := calc.Gemini("flash", 1000000, 200000)
	assert.InDelta(t, 0.30+0.50, got, 0.001)

	assert.Zero(t, calc.Gemini("unknown", 1000000, 1000000))
}

func TestProviderDispatch(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, calc.Claude("haiku", 1e6, 1e5), calc.Provider("anthropic", "haiku", 1e6, 1e5), 0.0001)
	assert.InDelta(t, calc.Gemini("flash", 1e6, 1e5), calc.Provider("gemini", "flash", 1e6, 1e5), 0.0001)
	// Unnamed providers fall back to the Anthropic table.
	assert.InDelta(t, calc.Claude("haiku", 1e6, 1e5), calc.Provider("", "haiku", 1e6, 1e5), 0.0001)
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()

	assert.Contains(t, rates.Anthropic, "claude-haiku-4-5-20251001")
	assert.Contains(t, rates.Anthropic, "claude-sonnet-4-5-20250929")
	assert.Contains(t, rates.Gemini, "gemini-2.5-flash")
	assert.InDelta(t, 0.80, rates.Anthropic["claude-haiku-4-5-20251001"].Input, 0.001)
}
