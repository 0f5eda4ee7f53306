package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scentdesk/fragrance-cli/internal/cache"
	"github.com/scentdesk/fragrance-cli/internal/cost"
	"github.com/scentdesk/fragrance-cli/internal/feedback"
	"github.com/scentdesk/fragrance-cli/internal/ledger"
	"github.com/scentdesk/fragrance-cli/internal/provider"
	"github.com/scentdesk/fragrance-cli/internal/resolver"
	"github.com/scentdesk/fragrance-cli/internal/store"
)

// resolverEnv holds the initialized store, ledger, feedback service, and
// resolver needed by the operation commands.
type resolverEnv struct {
	Store    store.Store
	Ledger   *ledger.Ledger
	Feedback *feedback.Service
	Resolver *resolver.Resolver
}

// Close releases resources held by the environment.
func (e *resolverEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initResolver sets up the store, provider registry, ledger, and feedback
// service, and wires them into a Resolver. Callers should defer env.Close().
func initResolver(ctx context.Context, mode string) (*resolverEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	rates := cost.DefaultRates()
	if cfg.Pricing.RatesFile != "" {
		rates, err = cost.LoadRates(cfg.Pricing.RatesFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	calc := cost.NewCalculator(rates)
	backoff := cfg.Provider.Backoff()

	reg := provider.NewRegistry(provider.ID(cfg.Provider.Default))
	provider.Build(reg, map[provider.ID]func() (provider.Adapter, error){
		provider.OpenAI: func() (provider.Adapter, error) {
			return provider.NewOpenAI(provider.OpenAIConfig{
				Key:     cfg.OpenAI.Key,
				BaseURL: cfg.OpenAI.BaseURL,
				Model:   cfg.OpenAI.Model,
			}, calc, backoff)
		},
		provider.Anthropic: func() (provider.Adapter, error) {
			return provider.NewAnthropic(provider.AnthropicConfig{
				Key:   cfg.Anthropic.Key,
				Model: cfg.Anthropic.Model,
			}, calc, backoff)
		},
		provider.Gemini: func() (provider.Adapter, error) {
			return provider.NewGemini(provider.GeminiConfig{
				Key:     cfg.Gemini.Key,
				BaseURL: cfg.Gemini.BaseURL,
				Model:   cfg.Gemini.Model,
			}, calc, backoff)
		},
	})

	led := ledger.New(st, cfg.Limits)
	led.StartFlusher(ctx, time.Minute)
	fb := feedback.New(st)

	resultCache := cache.New(time.Duration(cfg.Cache.TTLMinutes)*time.Minute, cfg.Cache.MaxEntries)
	resultCache.StartSweeper(ctx, time.Minute)

	res := resolver.New(reg, led, fb, st, resultCache, resolver.Options{
		BatchLimit:   cfg.Batch.MaxItems,
		BatchWorkers: cfg.Batch.Workers,
		BatchRate:    cfg.Batch.RatePerSecond,
		FewShotCount: cfg.Feedback.FewShotCount,
		PatternCount: cfg.Feedback.PatternCount,
	})

	zap.L().Debug("resolver initialized",
		zap.String("driver", cfg.Store.Driver),
		zap.String("default_provider", cfg.Provider.Default),
	)

	return &resolverEnv{
		Store:    st,
		Ledger:   led,
		Feedback: fb,
		Resolver: res,
	}, nil
}
