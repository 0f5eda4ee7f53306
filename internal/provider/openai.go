package provider

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/scentdesk/fragrance-cli/internal/cost"
	"github.com/scentdesk/fragrance-cli/internal/resilience"
	"github.com/scentdesk/fragrance-cli/pkg/openai"
)

// OpenAIConfig holds what the OpenAI adapter needs at construction time.
type OpenAIConfig struct {
	Key     string
	BaseURL string
	Model   string
}

// NewOpenAI constructs the OpenAI adapter. Missing credentials fail here,
// not per-call.
func NewOpenAI(cfg OpenAIConfig, calc *cost.Calculator, backoff resilience.BackoffConfig) (Adapter, error) {
	if cfg.Key == "" {
		return nil, eris.Wrap(ErrProviderUnavailable, "openai: api key not configured")
	}
	var opts []openai.Option
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	return newOpenAIAdapter(openai.NewClient(cfg.Key, opts...), calc, backoff), nil
}

func newOpenAIAdapter(client openai.Client, calc *cost.Calculator, backoff resilience.BackoffConfig) Adapter {
	temp := 0.2
	chat := func(ctx context.Context, system, user string, maxTokens int) (string, Usage, error) {
		resp, err := client.ChatCompletion(ctx, openai.ChatCompletionRequest{
			Messages: []openai.Message{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			Temperature:    &temp,
			MaxTokens:      &maxTokens,
			ResponseFormat: &openai.ResponseFormat{Type: "json_object"},
		})
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				return "", Usage{}, mapUpstreamError(OpenAI, apiErr.StatusCode, apiErr.Body)
			}
			return "", Usage{}, err
		}

		var text string
		if len(resp.Choices) > 0 {
			text = resp.Choices[0].Message.Content
		}
		return text, Usage{
			Model:        resp.Model,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}, nil
	}
	return newCore(OpenAI, calc, backoff, chat)
}
