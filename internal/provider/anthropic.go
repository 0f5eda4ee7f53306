package provider

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"

	"github.com/scentdesk/fragrance-cli/internal/cost"
	"github.com/scentdesk/fragrance-cli/internal/resilience"
	"github.com/scentdesk/fragrance-cli/pkg/anthropic"
)

// AnthropicConfig holds what the Anthropic adapter needs at construction time.
type AnthropicConfig struct {
	Key   string
	Model string
}

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// NewAnthropic constructs the Anthropic adapter, failing fast without
// credentials.
func NewAnthropic(cfg AnthropicConfig, calc *cost.Calculator, backoff resilience.BackoffConfig) (Adapter, error) {
	if cfg.Key == "" {
		return nil, eris.Wrap(ErrProviderUnavailable, "anthropic: api key not configured")
	}
	return newAnthropicAdapter(anthropic.NewClient(cfg.Key), cfg.Model, calc, backoff), nil
}

func newAnthropicAdapter(client anthropic.Client, modelName string, calc *cost.Calculator, backoff resilience.BackoffConfig) Adapter {
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	temp := 0.2
	chat := func(ctx context.Context, system, user string, maxTokens int) (string, Usage, error) {
		resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       modelName,
			MaxTokens:   int64(maxTokens),
			System:      system,
			Messages:    []anthropic.Message{{Role: "user", Content: user}},
			Temperature: &temp,
		})
		if err != nil {
			var apiErr *sdk.Error
			if errors.As(err, &apiErr) {
				return "", Usage{}, mapUpstreamError(Anthropic, apiErr.StatusCode, apiErr.Error())
			}
			return "", Usage{}, err
		}

		return resp.Text, Usage{
			Model:        resp.Model,
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		}, nil
	}
	return newCore(Anthropic, calc, backoff, chat)
}
