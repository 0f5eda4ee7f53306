package resolver

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentdesk/fragrance-cli/internal/ledger"
	"github.com/scentdesk/fragrance-cli/internal/provider"
)

func TestHealthCheck_AllHealthy(t *testing.T) {
	r := newTestResolver(&memStore{}, ledger.Limits{},
		&stubAdapter{id: provider.OpenAI},
		&stubAdapter{id: provider.Gemini},
	)

	report := r.HealthCheck(context.Background(), "")
	assert.Equal(t, "healthy", report.Status)
	require.Len(t, report.Providers, 2)
	for _, p := range report.Providers {
		assert.True(t, p.Healthy, "provider %s", p.Provider)
		assert.Empty(t, p.Error)
	}
}

func TestHealthCheck_Degraded(t *testing.T) {
	r := newTestResolver(&memStore{}, ledger.Limits{},
		&stubAdapter{id: provider.OpenAI},
		&stubAdapter{id: provider.Gemini, pingErr: eris.New("connection refused")},
	)

	report := r.HealthCheck(context.Background(), "")
	assert.Equal(t, "degraded", report.Status)

	byName := map[string]ProviderHealth{}
	for _, p := range report.Providers {
		byName[p.Provider] = p
	}
	assert.True(t, byName[string(provider.OpenAI)].Healthy)
	assert.False(t, byName[string(provider.Gemini)].Healthy)
	assert.NotEmpty(t, byName[string(provider.Gemini)].Error)
}

func TestHealthCheck_Critical(t *testing.T) {
	r := newTestResolver(&memStore{}, ledger.Limits{},
		&stubAdapter{id: provider.OpenAI, pingErr: eris.New("down")},
	)

	report := r.HealthCheck(context.Background(), "")
	assert.Equal(t, "critical", report.Status)
}

func TestHealthCheck_ProviderFilter(t *testing.T) {
	openai := &stubAdapter{id: provider.OpenAI}
	gemini := &stubAdapter{id: provider.Gemini}
	r := newTestResolver(&memStore{}, ledger.Limits{}, openai, gemini)

	report := r.HealthCheck(context.Background(), provider.Gemini)
	assert.Equal(t, "healthy", report.Status)
	require.Len(t, report.Providers, 1)
	assert.Equal(t, string(provider.Gemini), report.Providers[0].Provider)
}

func TestHealthCheck_FilterUnavailableProvider(t *testing.T) {
	r := newTestResolver(&memStore{}, ledger.Limits{}, &stubAdapter{id: provider.OpenAI})

	report := r.HealthCheck(context.Background(), provider.Anthropic)
	assert.Equal(t, "critical", report.Status)
	assert.Empty(t, report.Providers)
}

func TestListProviders(t *testing.T) {
	r := newTestResolver(&memStore{}, ledger.Limits{},
		&stubAdapter{id: provider.OpenAI},
	)

	infos := r.ListProviders()
	require.Len(t, infos, len(provider.All()))

	byName := map[string]ProviderInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.True(t, byName[string(provider.OpenAI)].Available)
	assert.True(t, byName[string(provider.OpenAI)].Default)
	assert.False(t, byName[string(provider.Anthropic)].Available)
	assert.False(t, byName[string(provider.Anthropic)].Default)
}
