// Package provider defines the uniform adapter contract implemented once per
// LLM backend, plus the registry that holds configured adapters.
package provider

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/scentdesk/fragrance-cli/internal/model"
)

// ID identifies a configured provider backend.
type ID string

const (
	OpenAI    ID = "openai"
	Anthropic ID = "anthropic"
	Gemini    ID = "gemini"
)

// All lists every provider identity the registry knows how to construct.
func All() []ID {
	return []ID{OpenAI, Anthropic, Gemini}
}

// ParseID validates a provider name from user input.
func ParseID(s string) (ID, error) {
	switch ID(s) {
	case OpenAI, Anthropic, Gemini:
		return ID(s), nil
	}
	return "", eris.Wrapf(ErrUnknownProvider, "%q", s)
}

// Usage reports the token consumption of one provider call together with
// the model that actually served it.
type Usage struct {
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// CompleteOptions tunes a completion call. Exemplars and Patterns come from
// the feedback store and are injected into the prompt.
type CompleteOptions struct {
	Type      model.SuggestionKind
	Limit     int
	Language  string
	Exemplars []model.FewShotExample
	Patterns  []model.Pattern
}

// CompleteResult is the parsed outcome of a completion call.
type CompleteResult struct {
	Suggestions []model.CompletionSuggestion `json:"suggestions"`
	Usage       Usage                        `json:"usage"`
	CostUSD     float64                      `json:"cost_usd"`
	ElapsedMs   int64                        `json:"elapsed_ms"`
}

// NormalizeOptions tunes a normalization call.
type NormalizeOptions struct {
	Language  string
	Exemplars []model.FewShotExample
}

// NormalizeResult is the parsed outcome of a normalization call.
type NormalizeResult struct {
	Result    model.NormalizationResult `json:"result"`
	Usage     Usage                     `json:"usage"`
	CostUSD   float64                   `json:"cost_usd"`
	ElapsedMs int64                     `json:"elapsed_ms"`
}

// NotesOptions tunes a scent-note suggestion call.
type NotesOptions struct {
	Language  string
	NoteLimit int
}

// NotesResult is the parsed outcome of a note suggestion call.
type NotesResult struct {
	Notes     model.NotesSuggestion `json:"notes"`
	Usage     Usage                 `json:"usage"`
	CostUSD   float64               `json:"cost_usd"`
	ElapsedMs int64                 `json:"elapsed_ms"`
}

// AttributeOptions tunes an attribute suggestion call.
type AttributeOptions struct {
	Language string
}

// AttributesResult is the parsed outcome of an attribute suggestion call.
type AttributesResult struct {
	Attributes model.AttributeSuggestion `json:"attributes"`
	Usage      Usage                     `json:"usage"`
	CostUSD    float64                   `json:"cost_usd"`
	ElapsedMs  int64                     `json:"elapsed_ms"`
}

// Adapter is the uniform contract every provider backend implements. Each
// backend differs in wire protocol only; the semantic contract is identical,
// which keeps the orchestrator protocol-agnostic.
type Adapter interface {
	// Name returns the provider identity.
	Name() ID
	// Complete suggests brand/fragrance completions for a free-text query.
	Complete(ctx context.Context, query string, opts CompleteOptions) (*CompleteResult, error)
	// Normalize turns a messy brand/fragrance pair into a canonical record.
	Normalize(ctx context.Context, brand, name string, opts NormalizeOptions) (*NormalizeResult, error)
	// SuggestNotes proposes scent notes for a fragrance.
	SuggestNotes(ctx context.Context, brand, name string, opts NotesOptions) (*NotesResult, error)
	// SuggestAttributes proposes wearing attributes for a fragrance.
	SuggestAttributes(ctx context.Context, name string, opts AttributeOptions) (*AttributesResult, error)
	// EstimateCost prices a hypothetical call; pure, driven by the rate table.
	EstimateCost(model string, inputTokens, outputTokens int) float64
	// Ping performs a minimal round trip to the backend.
	Ping(ctx context.Context) error
}

// Sentinel configuration errors.
var (
	// ErrUnknownProvider means the identity is not recognized at all.
	ErrUnknownProvider = eris.New("unknown provider")
	// ErrProviderUnavailable means the provider is known but its credentials
	// are absent, detected at construction time.
	ErrProviderUnavailable = eris.New("provider unavailable")
)

// UpstreamError is a non-2xx or transport-level failure from a backend. The
// raw body is retained for logging and must never reach end users.
type UpstreamError struct {
	Provider   ID
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream error (status %d)", e.Provider, e.StatusCode)
}

// MalformedResponseError means the backend answered 2xx but the payload
// could not be decoded even after stripping code fences.
type MalformedResponseError struct {
	Provider ID
	Raw      string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response", e.Provider)
}
