package provider

import (
	"context"
	"time"

	"github.com/scentdesk/fragrance-cli/internal/cost"
	"github.com/scentdesk/fragrance-cli/internal/model"
	"github.com/scentdesk/fragrance-cli/internal/resilience"
)

// chatFunc is the single wire operation a backend must supply: send a
// system+user prompt, get text and token usage back. Wire-level errors must
// already be mapped through mapUpstreamError.
type chatFunc func(ctx context.Context, system, user string, maxTokens int) (string, Usage, error)

// core implements the Adapter contract on top of a chatFunc. All prompt
// building, retry, parsing, and costing is identical across backends.
type core struct {
	id      ID
	calc    *cost.Calculator
	backoff resilience.BackoffConfig
	chat    chatFunc
}

func newCore(id ID, calc *cost.Calculator, backoff resilience.BackoffConfig, chat chatFunc) *core {
	return &core{id: id, calc: calc, backoff: backoff, chat: chat}
}

func (c *core) Name() ID { return c.id }

func (c *core) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	return c.calc.Tokens(string(c.id), model, inputTokens, outputTokens)
}

type chatResult struct {
	text  string
	usage Usage
}

// call invokes the backend with the standard retry policy. HTTP 429 and
// other transient failures are retried with capped exponential backoff;
// sleeps are abandoned when ctx is cancelled.
func (c *core) call(ctx context.Context, operation, system, user string, maxTokens int) (chatResult, error) {
	cfg := c.backoff
	cfg.OnRetry = resilience.RetryLogger(string(c.id), operation)
	return resilience.RetryVal(ctx, cfg, func(ctx context.Context) (chatResult, error) {
		text, usage, err := c.chat(ctx, system, user, maxTokens)
		return chatResult{text: text, usage: usage}, err
	})
}

func (c *core) Complete(ctx context.Context, query string, opts CompleteOptions) (*CompleteResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.Limit > 20 {
		opts.Limit = 20
	}

	start := time.Now()
	res, err := c.call(ctx, model.OpComplete, completionSystem(opts.Language), completionUser(query, opts), 1024)
	if err != nil {
		return nil, err
	}

	data, ok := ExtractJSON(res.text)
	if !ok {
		return nil, &MalformedResponseError{Provider: c.id, Raw: res.text}
	}
	suggestions, err := decodeSuggestions(data, c.id, opts.Type)
	if err != nil {
		return nil, &MalformedResponseError{Provider: c.id, Raw: res.text}
	}
	if len(suggestions) > opts.Limit {
		suggestions = suggestions[:opts.Limit]
	}

	return &CompleteResult{
		Suggestions: suggestions,
		Usage:       res.usage,
		CostUSD:     c.EstimateCost(res.usage.Model, res.usage.InputTokens, res.usage.OutputTokens),
		ElapsedMs:   time.Since(start).Milliseconds(),
	}, nil
}

func (c *core) Normalize(ctx context.Context, brand, name string, opts NormalizeOptions) (*NormalizeResult, error) {
	start := time.Now()
	res, err := c.call(ctx, model.OpNormalize, normalizationSystem(opts.Language), normalizationUser(brand, name, opts), 1024)
	if err != nil {
		return nil, err
	}

	data, ok := ExtractJSON(res.text)
	if !ok {
		return nil, &MalformedResponseError{Provider: c.id, Raw: res.text}
	}
	result, err := decodeNormalization(data)
	if err != nil {
		return nil, &MalformedResponseError{Provider: c.id, Raw: res.text}
	}

	return &NormalizeResult{
		Result:    result,
		Usage:     res.usage,
		CostUSD:   c.EstimateCost(res.usage.Model, res.usage.InputTokens, res.usage.OutputTokens),
		ElapsedMs: time.Since(start).Milliseconds(),
	}, nil
}

func (c *core) SuggestNotes(ctx context.Context, brand, name string, opts NotesOptions) (*NotesResult, error) {
	if opts.NoteLimit <= 0 || opts.NoteLimit > 10 {
		opts.NoteLimit = 10
	}

	start := time.Now()
	res, err := c.call(ctx, model.OpSuggestNotes, notesSystem(opts.NoteLimit), notesUser(brand, name), 512)
	if err != nil {
		return nil, err
	}

	data, ok := ExtractJSON(res.text)
	if !ok {
		return nil, &MalformedResponseError{Provider: c.id, Raw: res.text}
	}
	notes, err := decodeNotes(data, opts.NoteLimit)
	if err != nil {
		return nil, &MalformedResponseError{Provider: c.id, Raw: res.text}
	}

	return &NotesResult{
		Notes:     notes,
		Usage:     res.usage,
		CostUSD:   c.EstimateCost(res.usage.Model, res.usage.InputTokens, res.usage.OutputTokens),
		ElapsedMs: time.Since(start).Milliseconds(),
	}, nil
}

func (c *core) SuggestAttributes(ctx context.Context, name string, opts AttributeOptions) (*AttributesResult, error) {
	start := time.Now()
	res, err := c.call(ctx, model.OpSuggestAttributes, attributesSystem(), attributesUser(name), 512)
	if err != nil {
		return nil, err
	}

	data, ok := ExtractJSON(res.text)
	if !ok {
		return nil, &MalformedResponseError{Provider: c.id, Raw: res.text}
	}
	attrs, err := decodeAttributes(data)
	if err != nil {
		return nil, &MalformedResponseError{Provider: c.id, Raw: res.text}
	}

	return &AttributesResult{
		Attributes: attrs,
		Usage:      res.usage,
		CostUSD:    c.EstimateCost(res.usage.Model, res.usage.InputTokens, res.usage.OutputTokens),
		ElapsedMs:  time.Since(start).Milliseconds(),
	}, nil
}

func (c *core) Ping(ctx context.Context) error {
	// One trivial round trip, no retries: health checks want the truth now.
	_, _, err := c.chat(ctx, "Reply with the single word: ok", "ping", 8)
	return err
}

// mapUpstreamError converts a backend status code into the domain error,
// marking retryable statuses as transient so the backoff policy engages.
func mapUpstreamError(id ID, statusCode int, body string) error {
	ue := &UpstreamError{Provider: id, StatusCode: statusCode, Body: body}
	if resilience.IsTransientHTTPStatus(statusCode) {
		return resilience.NewTransientError(ue, statusCode)
	}
	return ue
}
