package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/scentdesk/fragrance-cli/internal/provider"
)

// ProviderHealth is one provider's live status.
type ProviderHealth struct {
	Provider  string `json:"provider"`
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latency_ms"`
	Breaker   string `json:"breaker"`
	Error     string `json:"error,omitempty"`
}

// HealthReport summarizes the whole provider fleet.
type HealthReport struct {
	Status    string           `json:"status"` // healthy, degraded, critical
	Providers []ProviderHealth `json:"providers"`
	CheckedAt time.Time        `json:"checked_at"`
}

// pingTimeout bounds each provider probe.
const pingTimeout = 10 * time.Second

// HealthCheck pings available providers concurrently and folds the results
// with breaker state: all up is healthy, some up is degraded, none up is
// critical. A non-empty only restricts the probe to that provider; naming
// one that is not available yields a critical report.
func (r *Resolver) HealthCheck(ctx context.Context, only provider.ID) *HealthReport {
	available := r.registry.Available()
	if only != "" {
		filtered := make([]provider.ID, 0, 1)
		for _, id := range available {
			if id == only {
				filtered = append(filtered, id)
			}
		}
		available = filtered
	}
	report := &HealthReport{
		Providers: make([]ProviderHealth, len(available)),
		CheckedAt: time.Now().UTC(),
	}

	breakerStates := r.breakers.States()

	var wg sync.WaitGroup
	for i, id := range available {
		a, err := r.registry.Get(id)
		if err != nil {
			report.Providers[i] = ProviderHealth{Provider: string(id), Error: err.Error()}
			continue
		}
		wg.Add(1)
		go func(i int, id provider.ID, a provider.Adapter) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()

			start := time.Now()
			err := a.Ping(pctx)
			h := ProviderHealth{
				Provider:  string(id),
				Healthy:   err == nil,
				LatencyMs: time.Since(start).Milliseconds(),
				Breaker:   breakerStates[string(id)].String(),
			}
			if err != nil {
				h.Error = err.Error()
			}
			report.Providers[i] = h
		}(i, id, a)
	}
	wg.Wait()

	var up int
	for _, h := range report.Providers {
		if h.Healthy {
			up++
		}
	}
	switch {
	case len(report.Providers) == 0 || up == 0:
		report.Status = "critical"
	case up < len(report.Providers):
		report.Status = "degraded"
	default:
		report.Status = "healthy"
	}
	return report
}

// ProviderInfo describes one provider identity for listing.
type ProviderInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Default   bool   `json:"default"`
}

// ListProviders returns every known provider identity with its current
// availability, in canonical order.
func (r *Resolver) ListProviders() []ProviderInfo {
	available := map[provider.ID]bool{}
	for _, id := range r.registry.Available() {
		available[id] = true
	}
	defaultID, defaultOK := r.registry.Default()

	out := make([]ProviderInfo, 0, len(provider.All()))
	for _, id := range provider.All() {
		out = append(out, ProviderInfo{
			Name:      string(id),
			Available: available[id],
			Default:   defaultOK && id == defaultID,
		})
	}
	return out
}
