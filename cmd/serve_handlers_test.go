package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentdesk/fragrance-cli/internal/feedback"
	"github.com/scentdesk/fragrance-cli/internal/ledger"
	"github.com/scentdesk/fragrance-cli/internal/model"
	"github.com/scentdesk/fragrance-cli/internal/provider"
	"github.com/scentdesk/fragrance-cli/internal/resolver"
	"github.com/scentdesk/fragrance-cli/internal/store"
)

// fakeAdapter serves canned responses for handler tests.
type fakeAdapter struct {
	id      provider.ID
	pingErr error
}

func (f *fakeAdapter) Name() provider.ID { return f.id }

func (f *fakeAdapter) Complete(_ context.Context, _ string, _ provider.CompleteOptions) (*provider.CompleteResult, error) {
	return &provider.CompleteResult{
		Suggestions: []model.CompletionSuggestion{
			{DisplayText: "Sauvage", BrandName: "Dior", Confidence: 0.9, Kind: model.KindFragrance},
		},
		Usage:   provider.Usage{Model: "fake-model", InputTokens: 50, OutputTokens: 10},
		CostUSD: 0.0005,
	}, nil
}

func (f *fakeAdapter) Normalize(_ context.Context, _, _ string, _ provider.NormalizeOptions) (*provider.NormalizeResult, error) {
	return &provider.NormalizeResult{
		Result: model.NormalizationResult{
			BrandRoman: "Dior", NameRoman: "Sauvage", ConfidenceScore: 0.95,
		},
		Usage: provider.Usage{Model: "fake-model"},
	}, nil
}

func (f *fakeAdapter) SuggestNotes(_ context.Context, _, _ string, _ provider.NotesOptions) (*provider.NotesResult, error) {
	return &provider.NotesResult{
		Notes: model.NotesSuggestion{Top: []string{"bergamot"}, ConfidenceScore: 0.8},
		Usage: provider.Usage{Model: "fake-model"},
	}, nil
}

func (f *fakeAdapter) SuggestAttributes(_ context.Context, _ string, _ provider.AttributeOptions) (*provider.AttributesResult, error) {
	return &provider.AttributesResult{
		Attributes: model.AttributeSuggestion{Seasons: []string{"summer"}, ConfidenceScore: 0.7},
		Usage:      provider.Usage{Model: "fake-model"},
	}, nil
}

func (f *fakeAdapter) EstimateCost(_ string, _, _ int) float64 { return 0.0005 }
func (f *fakeAdapter) Ping(_ context.Context) error            { return f.pingErr }

func newTestEnv(t *testing.T) *resolverEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	reg := provider.NewRegistry(provider.OpenAI)
	reg.Register(&fakeAdapter{id: provider.OpenAI})

	led := ledger.New(st, ledger.Limits{})
	fb := feedback.New(st)
	res := resolver.New(reg, led, fb, st, nil, resolver.Options{})

	return &resolverEnv{Store: st, Ledger: led, Feedback: fb, Resolver: res}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Complete(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, router, http.MethodPost, "/v1/complete", map[string]any{"query": "sauvage"}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp resolver.CompleteResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "Sauvage", resp.Suggestions[0].DisplayText)
	assert.Equal(t, "openai", resp.Meta.Provider)
}

func TestRouter_Complete_EmptyQuery(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, router, http.MethodPost, "/v1/complete", map[string]any{"query": "  "}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "invalid_argument", body["code"])
	assert.NotEmpty(t, body["message"])
}

func TestRouter_Complete_MalformedBody(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	req := httptest.NewRequest(http.MethodPost, "/v1/complete", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid_argument")
}

func TestRouter_ErrorLocalization(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, router, http.MethodPost, "/v1/complete", map[string]any{"query": ""},
		map[string]string{"Accept-Language": "ja"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body["message"], "入力")
}

func TestRouter_Normalize(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, router, http.MethodPost, "/v1/normalize",
		map[string]any{"brand": "dior", "name": "sauvage"}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp resolver.NormalizeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Dior", resp.Result.BrandRoman)
}

func TestRouter_BatchComplete_PartialResults(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, router, http.MethodPost, "/v1/complete/batch", map[string]any{
		"items": []map[string]any{
			{"query": "sauvage"},
			{"query": "   "},
		},
	}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var body resolver.BatchCompleteResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)
	assert.NotNil(t, body.Results[0].Response)
	assert.Equal(t, resolver.CodeInvalidArgument, body.Results[1].Code)
	assert.InDelta(t, 0.0005, body.TotalCostEstimate, 1e-9)
}

func TestRouter_BatchNormalize_SuccessRate(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, router, http.MethodPost, "/v1/normalize/batch", map[string]any{
		"items": []map[string]any{
			{"brand": "dior", "name": "sauvage"},
			{"brand": "", "name": "sauvage"},
		},
	}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var body resolver.BatchNormalizeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)
	assert.InDelta(t, 0.5, body.SuccessRate, 1e-9)
}

func TestRouter_NotesAndAttributes(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, router, http.MethodPost, "/v1/notes",
		map[string]any{"brand": "Dior", "name": "Sauvage"}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "bergamot")

	rr = doJSON(t, router, http.MethodPost, "/v1/attributes",
		map[string]any{"name": "Sauvage"}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "summer")
}

func TestRouter_Feedback(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, router, http.MethodPost, "/v1/feedback", map[string]any{
		"session_id":     "s1",
		"operation_type": "complete",
		"query":          "sauvage",
		"user_action":    "selected",
	}, map[string]string{"X-User-ID": "u1"})
	assert.Equal(t, http.StatusCreated, rr.Code)

	var ev model.FeedbackEvent
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ev))
	assert.Equal(t, "u1", ev.UserID)
	assert.NotEmpty(t, ev.ID)
}

func TestRouter_Providers(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, router, http.MethodGet, "/v1/providers", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "openai")
}

func TestRouter_Health(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, router, http.MethodGet, "/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"healthy"`)
}

func TestRouter_Health_ProviderFilter(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, router, http.MethodGet, "/v1/health?provider=openai", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var report resolver.HealthReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.Len(t, report.Providers, 1)
	assert.Equal(t, "openai", report.Providers[0].Provider)

	// Filtering to a provider with no registered adapter leaves nothing to probe.
	rr = doJSON(t, router, http.MethodGet, "/v1/health?provider=anthropic", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_UsageAfterCalls(t *testing.T) {
	env := newTestEnv(t)
	router := newRouter(env, []string{"*"})

	rr := doJSON(t, router, http.MethodPost, "/v1/complete", map[string]any{"query": "sauvage"},
		map[string]string{"X-User-ID": "u-usage"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/v1/usage/u-usage", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var summary model.UsageSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, "u-usage", summary.UserID)
	assert.Equal(t, 1, summary.Requests)
}

func TestRouter_UsageInvalidDays(t *testing.T) {
	router := newRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, router, http.MethodGet, "/v1/usage/u1?days=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid_argument")
}
