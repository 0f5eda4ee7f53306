// Package cost computes USD estimates for provider token usage from a
// data-driven rate table.
package cost

import (
	"sync"

	"go.uber.org/zap"
)

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ProviderRates holds a provider's model pricing and the model whose rates
// apply when an unknown model name comes back from the wire.
type ProviderRates struct {
	DefaultModel string               `yaml:"default_model" mapstructure:"default_model"`
	Models       map[string]ModelRate `yaml:"models" mapstructure:"models"`
}

// Rates maps provider name to its pricing table.
type Rates map[string]ProviderRates

// Calculator computes call costs. It is safe for concurrent use and does no
// I/O; unknown model names are flagged once via the logger, never an error.
type Calculator struct {
	rates Rates

	mu     sync.Mutex
	warned map[string]struct{}
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates, warned: make(map[string]struct{})}
}

// Tokens returns the USD cost of a call. An unknown model falls back to the
// provider's default model's rates; an unknown provider costs zero.
func (c *Calculator) Tokens(provider, model string, inputTokens, outputTokens int) float64 {
	pr, ok := c.rates[provider]
	if !ok {
		c.warnOnce(provider, model, "unknown provider in rate table")
		return 0
	}

	rate, ok := pr.Models[model]
	if !ok {
		c.warnOnce(provider, model, "unknown model, using default model rates")
		rate, ok = pr.Models[pr.DefaultModel]
		if !ok {
			return 0
		}
	}

	return (float64(inputTokens)/1e6)*rate.Input + (float64(outputTokens)/1e6)*rate.Output
}

// Known reports whether the provider/model pair has explicit rates.
func (c *Calculator) Known(provider, model string) bool {
	pr, ok := c.rates[provider]
	if !ok {
		return false
	}
	_, ok = pr.Models[model]
	return ok
}

func (c *Calculator) warnOnce(provider, model, msg string) {
	key := provider + "/" + model
	c.mu.Lock()
	_, seen := c.warned[key]
	if !seen {
		c.warned[key] = struct{}{}
	}
	c.mu.Unlock()
	if !seen {
		zap.L().Warn("cost: "+msg,
			zap.String("provider", provider),
			zap.String("model", model),
		)
	}
}

// EstimateTokens approximates the token count of a prompt for pre-call cost
// estimates. Four characters per token is close enough for budgeting.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// DefaultRates returns the built-in pricing table.
func DefaultRates() Rates {
	return Rates{
		"openai": {
			DefaultModel: "gpt-4o-mini",
			Models: map[string]ModelRate{
				"gpt-4o":      {Input: 2.50, Output: 10.00},
				"gpt-4o-mini": {Input: 0.15, Output: 0.60},
			},
		},
		"anthropic": {
			DefaultModel: "claude-haiku-4-5-20251001",
			Models: map[string]ModelRate{
				"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
				"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			},
		},
		"gemini": {
			DefaultModel: "gemini-2.0-flash",
			Models: map[string]ModelRate{
				"gemini-2.0-flash": {Input: 0.10, Output: 0.40},
				"gemini-1.5-pro":   {Input: 1.25, Output: 5.00},
			},
		},
	}
}
