package provider

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/scentdesk/fragrance-cli/internal/cost"
	"github.com/scentdesk/fragrance-cli/internal/resilience"
	"github.com/scentdesk/fragrance-cli/pkg/gemini"
)

// GeminiConfig holds what the Gemini adapter needs at construction time.
type GeminiConfig struct {
	Key     string
	BaseURL string
	Model   string
}

// NewGemini constructs the Gemini adapter, failing fast without credentials.
func NewGemini(cfg GeminiConfig, calc *cost.Calculator, backoff resilience.BackoffConfig) (Adapter, error) {
	if cfg.Key == "" {
		return nil, eris.Wrap(ErrProviderUnavailable, "gemini: api key not configured")
	}
	var opts []gemini.Option
	if cfg.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, gemini.WithModel(cfg.Model))
	}
	return newGeminiAdapter(gemini.NewClient(cfg.Key, opts...), cfg.Model, calc, backoff), nil
}

func newGeminiAdapter(client gemini.Client, modelName string, calc *cost.Calculator, backoff resilience.BackoffConfig) Adapter {
	temp := 0.2
	chat := func(ctx context.Context, system, user string, maxTokens int) (string, Usage, error) {
		resp, err := client.GenerateContent(ctx, gemini.GenerateContentRequest{
			SystemInstruction: &gemini.Content{Parts: []gemini.Part{{Text: system}}},
			Contents: []gemini.Content{
				{Role: "user", Parts: []gemini.Part{{Text: user}}},
			},
			GenerationConfig: &gemini.GenerationConfig{
				Temperature:      &temp,
				MaxOutputTokens:  &maxTokens,
				ResponseMIMEType: "application/json",
			},
		})
		if err != nil {
			var apiErr *gemini.APIError
			if errors.As(err, &apiErr) {
				return "", Usage{}, mapUpstreamError(Gemini, apiErr.StatusCode, apiErr.Body)
			}
			return "", Usage{}, err
		}

		usedModel := resp.ModelVersion
		if usedModel == "" {
			usedModel = modelName
		}
		return resp.Text(), Usage{
			Model:        usedModel,
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		}, nil
	}
	return newCore(Gemini, calc, backoff, chat)
}
