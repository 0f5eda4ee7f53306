package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scentdesk/fragrance-cli/internal/cost"
	"github.com/scentdesk/fragrance-cli/internal/model"
	"github.com/scentdesk/fragrance-cli/internal/resilience"
	"github.com/scentdesk/fragrance-cli/pkg/openai"
)

func fastBackoff() resilience.BackoffConfig {
	return resilience.BackoffConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func testCalc() *cost.Calculator {
	return cost.NewCalculator(cost.Rates{
		"openai": {DefaultModel: "gpt-4o-mini", Models: map[string]cost.ModelRate{
			"gpt-4o-mini": {Input: 1.0, Output: 2.0},
		}},
	})
}

func openaiBody(content string) string {
	return fmt.Sprintf(`{
		"id": "chatcmpl-1", "model": "gpt-4o-mini",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 100, "completion_tokens": 50, "total_tokens": 150}
	}`, content)
}

func TestOpenAIAdapter_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"suggestions": [{"display_text": "Sauvage", "brand_name": "Dior", "confidence": 0.9, "kind": "fragrance"}]}`
		w.Write([]byte(openaiBody(content)))
	}))
	defer srv.Close()

	a := newOpenAIAdapter(openai.NewClient("k", openai.WithBaseURL(srv.URL)), testCalc(), fastBackoff())

	res, err := a.Complete(context.Background(), "sauvage", CompleteOptions{Type: model.KindFragrance, Limit: 5})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(res.Suggestions) != 1 || res.Suggestions[0].BrandName != "Dior" {
		t.Errorf("suggestions: %+v", res.Suggestions)
	}
	wantCost := (100.0/1e6)*1.0 + (50.0/1e6)*2.0
	if res.CostUSD != wantCost {
		t.Errorf("cost = %v, want %v", res.CostUSD, wantCost)
	}
	if res.Usage.InputTokens != 100 || res.Usage.OutputTokens != 50 {
		t.Errorf("usage: %+v", res.Usage)
	}
}

func TestOpenAIAdapter_FencedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := "Here you go:\n```json\n{\"suggestions\": [{\"display_text\": \"Bleu\", \"brand_name\": \"Chanel\", \"confidence\": 0.8}]}\n```"
		w.Write([]byte(openaiBody(content)))
	}))
	defer srv.Close()

	a := newOpenAIAdapter(openai.NewClient("k", openai.WithBaseURL(srv.URL)), testCalc(), fastBackoff())

	res, err := a.Complete(context.Background(), "bleu", CompleteOptions{Type: model.KindFragrance, Limit: 5})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(res.Suggestions) != 1 {
		t.Errorf("fenced payload not parsed: %+v", res)
	}
}

func TestOpenAIAdapter_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(openaiBody("I cannot answer that in JSON, sorry.")))
	}))
	defer srv.Close()

	a := newOpenAIAdapter(openai.NewClient("k", openai.WithBaseURL(srv.URL)), testCalc(), fastBackoff())

	_, err := a.Complete(context.Background(), "x", CompleteOptions{Limit: 5})
	var malformed *MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
	if malformed.Provider != OpenAI {
		t.Errorf("provider: %v", malformed.Provider)
	}
}

func TestOpenAIAdapter_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": {"message": "slow down"}}`))
			return
		}
		content := `{"suggestions": [{"display_text": "Terre", "brand_name": "Hermes", "confidence": 0.7}]}`
		w.Write([]byte(openaiBody(content)))
	}))
	defer srv.Close()

	a := newOpenAIAdapter(openai.NewClient("k", openai.WithBaseURL(srv.URL)), testCalc(), fastBackoff())

	res, err := a.Complete(context.Background(), "terre", CompleteOptions{Type: model.KindFragrance, Limit: 5})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
	if len(res.Suggestions) != 1 {
		t.Errorf("suggestions: %+v", res.Suggestions)
	}
}

func TestOpenAIAdapter_PermanentUpstreamNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad request"}}`))
	}))
	defer srv.Close()

	a := newOpenAIAdapter(openai.NewClient("k", openai.WithBaseURL(srv.URL)), testCalc(), fastBackoff())

	_, err := a.Complete(context.Background(), "x", CompleteOptions{Limit: 5})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.StatusCode != http.StatusBadRequest {
		t.Errorf("status: %d", upstream.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("permanent error retried: %d calls", calls.Load())
	}
}

func TestOpenAIAdapter_Normalize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"brand_local": "ディオール", "brand_roman": "Dior", "name_local": "ソヴァージュ", "name_roman": "Sauvage", "concentration_type": "EDT", "launch_year": 2015, "family": "fougere", "confidence_score": 0.93, "descriptions": {"en": "Fresh."}}`
		w.Write([]byte(openaiBody(content)))
	}))
	defer srv.Close()

	a := newOpenAIAdapter(openai.NewClient("k", openai.WithBaseURL(srv.URL)), testCalc(), fastBackoff())

	res, err := a.Normalize(context.Background(), "dior", "sauvage", NormalizeOptions{Language: "ja"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if res.Result.BrandRoman != "Dior" || res.Result.NameLocal != "ソヴァージュ" {
		t.Errorf("result: %+v", res.Result)
	}
}

func TestNewOpenAI_MissingKeyFailsFast(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{}, testCalc(), fastBackoff())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestNewAnthropic_MissingKeyFailsFast(t *testing.T) {
	_, err := NewAnthropic(AnthropicConfig{}, testCalc(), fastBackoff())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestNewGemini_MissingKeyFailsFast(t *testing.T) {
	_, err := NewGemini(GeminiConfig{}, testCalc(), fastBackoff())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}
