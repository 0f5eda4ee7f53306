// Package resolver orchestrates the fragrance resolution pipeline: input
// sanitation, spend limits, caching, provider selection with fallback, and
// post-processing of suggestions.
package resolver

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scentdesk/fragrance-cli/internal/cache"
	"github.com/scentdesk/fragrance-cli/internal/feedback"
	"github.com/scentdesk/fragrance-cli/internal/ledger"
	"github.com/scentdesk/fragrance-cli/internal/model"
	"github.com/scentdesk/fragrance-cli/internal/provider"
	"github.com/scentdesk/fragrance-cli/internal/resilience"
	"github.com/scentdesk/fragrance-cli/internal/store"
)

// Options tunes the orchestration layer.
type Options struct {
	BatchLimit   int     // max items per batch request
	BatchWorkers int     // concurrent provider calls per batch
	BatchRate    float64 // provider calls per second during batches; 0 = unpaced
	FewShotCount int     // exemplars injected per completion prompt
	PatternCount int     // mined patterns injected per completion prompt
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		BatchLimit:   10,
		BatchWorkers: 4,
		BatchRate:    0,
		FewShotCount: 3,
		PatternCount: 3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchLimit <= 0 {
		o.BatchLimit = d.BatchLimit
	}
	if o.BatchWorkers <= 0 {
		o.BatchWorkers = d.BatchWorkers
	}
	if o.FewShotCount < 0 {
		o.FewShotCount = 0
	}
	if o.PatternCount < 0 {
		o.PatternCount = 0
	}
	return o
}

// Resolver is the pipeline hub. All public operations flow through it.
type Resolver struct {
	registry *provider.Registry
	ledger   *ledger.Ledger
	feedback *feedback.Service
	store    store.Store
	cache    *cache.Cache
	breakers *resilience.BreakerSet
	opts     Options
}

// New wires a Resolver. Any of ledger, feedback, store may be nil in
// reduced deployments; the corresponding stages become no-ops.
func New(reg *provider.Registry, led *ledger.Ledger, fb *feedback.Service, st store.Store, c *cache.Cache, opts Options) *Resolver {
	if c == nil {
		c = cache.New(0, 0)
	}
	return &Resolver{
		registry: reg,
		ledger:   led,
		feedback: fb,
		store:    st,
		cache:    c,
		breakers: resilience.NewBreakerSet(resilience.BreakerConfig{}),
		opts:     opts.withDefaults(),
	}
}

// CompleteRequest asks for live suggestions against a partial query.
type CompleteRequest struct {
	Query    string               `json:"query"`
	Type     model.SuggestionKind `json:"type,omitempty"`
	Limit    int                  `json:"limit,omitempty"`
	Language string               `json:"language,omitempty"`
	Provider string               `json:"provider,omitempty"`
	UserID   string               `json:"-"`
}

// CompleteResponse carries the post-processed suggestions.
type CompleteResponse struct {
	Suggestions []model.CompletionSuggestion `json:"suggestions"`
	Meta        model.OperationMeta          `json:"meta"`
	Cached      bool                         `json:"cached"`
	CostUSD     float64                      `json:"cost_usd"`
}

// NormalizeRequest asks for the canonical multilingual form of a pair.
type NormalizeRequest struct {
	Brand    string `json:"brand"`
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
	Provider string `json:"provider,omitempty"`
	UserID   string `json:"-"`
}

// NormalizeResponse carries the canonical form.
type NormalizeResponse struct {
	Result  model.NormalizationResult `json:"result"`
	Meta    model.OperationMeta       `json:"meta"`
	Cached  bool                      `json:"cached"`
	CostUSD float64                   `json:"cost_usd"`
}

// NotesRequest asks for a scent note pyramid.
type NotesRequest struct {
	Brand     string `json:"brand"`
	Name      string `json:"name"`
	NoteLimit int    `json:"note_limit,omitempty"`
	Provider  string `json:"provider,omitempty"`
	UserID    string `json:"-"`
}

// NotesResponse carries the suggested notes.
type NotesResponse struct {
	Notes   model.NotesSuggestion `json:"notes"`
	Meta    model.OperationMeta   `json:"meta"`
	Cached  bool                  `json:"cached"`
	CostUSD float64               `json:"cost_usd"`
}

// AttributesRequest asks for wearing attributes.
type AttributesRequest struct {
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
	UserID   string `json:"-"`
}

// AttributesResponse carries the suggested attributes.
type AttributesResponse struct {
	Attributes model.AttributeSuggestion `json:"attributes"`
	Meta       model.OperationMeta       `json:"meta"`
	Cached     bool                      `json:"cached"`
	CostUSD    float64                   `json:"cost_usd"`
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// sanitize trims, strips markup tags, and collapses runs of whitespace.
// An input that is empty after cleaning is an InvalidArgument.
func sanitize(s string) (string, error) {
	s = tagPattern.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", eris.Wrap(ErrInvalidArgument, "resolver: empty query")
	}
	return s, nil
}

// checkLimits enforces spend ceilings for identified users. Anonymous calls
// skip the check but are still cost-recorded.
func (r *Resolver) checkLimits(ctx context.Context, userID string) error {
	if userID == "" || r.ledger == nil {
		return nil
	}
	return r.ledger.CheckLimits(ctx, userID)
}

// pick chooses the adapter for a request: explicit choice wins, then the
// configured default, then the first available provider.
func (r *Resolver) pick(explicit string) (provider.Adapter, bool, error) {
	if explicit != "" {
		id, err := provider.ParseID(explicit)
		if err != nil {
			return nil, true, err
		}
		a, err := r.registry.Get(id)
		return a, true, err
	}
	if id, ok := r.registry.Default(); ok {
		a, err := r.registry.Get(id)
		return a, false, err
	}
	avail := r.registry.Available()
	if len(avail) == 0 {
		return nil, false, ErrNoProviderAvailable
	}
	a, err := r.registry.Get(avail[0])
	return a, false, err
}

// fallbackFor returns the next available adapter after failed, or nil.
// Fallback only applies to auto-selected providers; an explicit choice is a
// contract with the caller.
func (r *Resolver) fallbackFor(failed provider.ID) provider.Adapter {
	for _, id := range r.registry.Available() {
		if id == failed {
			continue
		}
		a, err := r.registry.Get(id)
		if err != nil {
			continue
		}
		return a
	}
	return nil
}

// invoke runs one provider call through the per-provider circuit breaker,
// retrying once on the next available provider when selection was automatic.
func invoke[T any](ctx context.Context, r *Resolver, req providerRequest, call func(ctx context.Context, a provider.Adapter) (T, error)) (T, provider.Adapter, error) {
	var zero T
	a, explicit, err := r.pick(req.provider)
	if err != nil {
		return zero, nil, err
	}

	res, err := resilience.Call(ctx, r.breakers.Get(string(a.Name())), func(ctx context.Context) (T, error) {
		return call(ctx, a)
	})
	if err == nil {
		return res, a, nil
	}

	if !explicit {
		if alt := r.fallbackFor(a.Name()); alt != nil {
			zap.L().Warn("provider failed, falling back",
				zap.String("failed", string(a.Name())),
				zap.String("fallback", string(alt.Name())),
				zap.Error(err))
			res, altErr := resilience.Call(ctx, r.breakers.Get(string(alt.Name())), func(ctx context.Context) (T, error) {
				return call(ctx, alt)
			})
			if altErr == nil {
				return res, alt, nil
			}
		}
	}
	return zero, a, err
}

type providerRequest struct {
	provider string
}

// exemplars fetches prompt-steering material for a user. Failures degrade
// to an unsteered prompt; they never fail the request.
func (r *Resolver) exemplars(ctx context.Context, userID, opType, query string) ([]model.FewShotExample, []model.Pattern) {
	if r.feedback == nil {
		return nil, nil
	}
	var examples []model.FewShotExample
	var patterns []model.Pattern
	if r.opts.FewShotCount > 0 {
		ex, err := r.feedback.FewShotExamples(ctx, userID, opType, r.opts.FewShotCount)
		if err != nil {
			zap.L().Warn("few-shot fetch failed", zap.Error(err))
		} else {
			examples = ex
		}
	}
	if r.opts.PatternCount > 0 && query != "" {
		p, err := r.feedback.SuccessfulPatterns(ctx, userID, opType, query, r.opts.PatternCount)
		if err != nil {
			zap.L().Warn("pattern fetch failed", zap.Error(err))
		} else {
			patterns = p
		}
	}
	return examples, patterns
}

// record writes one ledger entry; the ledger itself guarantees this cannot
// fail the request.
func (r *Resolver) record(ctx context.Context, rec model.UsageRecord) {
	if r.ledger == nil {
		return
	}
	r.ledger.Record(ctx, rec)
}

// Complete resolves live suggestions for a partial query.
func (r *Resolver) Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error) {
	query, err := sanitize(req.Query)
	if err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = model.KindFragrance
	}
	if err := r.checkLimits(ctx, req.UserID); err != nil {
		return nil, err
	}

	key := cache.Fingerprint(model.OpComplete, query, string(req.Type), req.Language, req.Provider, req.Limit)
	if v, ok := r.cache.Get(key); ok {
		cached := v.(*CompleteResponse)
		out := *cached
		out.Cached = true
		return &out, nil
	}

	examples, patterns := r.exemplars(ctx, req.UserID, model.OpComplete, query)
	start := time.Now()
	res, a, err := invoke(ctx, r, providerRequest{provider: req.Provider},
		func(ctx context.Context, a provider.Adapter) (*provider.CompleteResult, error) {
			return a.Complete(ctx, query, provider.CompleteOptions{
				Type:      req.Type,
				Limit:     req.Limit,
				Language:  req.Language,
				Exemplars: examples,
				Patterns:  patterns,
			})
		})
	if err != nil {
		r.recordFailure(ctx, req.UserID, a, model.OpComplete, start)
		return nil, err
	}

	suggestions := postProcess(res.Suggestions)
	resp := &CompleteResponse{
		Suggestions: suggestions,
		Meta: model.OperationMeta{
			Operation: model.OpComplete,
			Query:     query,
			Type:      string(req.Type),
			Language:  req.Language,
			Provider:  string(a.Name()),
			Timestamp: time.Now().UTC(),
		},
		CostUSD: res.CostUSD,
	}

	r.record(ctx, model.UsageRecord{
		UserID:       req.UserID,
		Provider:     string(a.Name()),
		Model:        res.Usage.Model,
		Operation:    model.OpComplete,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		CostUSD:      res.CostUSD,
		LatencyMs:    res.ElapsedMs,
		Confidence:   topConfidence(suggestions),
		DataMatched:  len(suggestions) > 0,
		Succeeded:    true,
	})

	r.cache.Set(key, resp)
	return resp, nil
}

// Normalize resolves the canonical multilingual form of a brand/name pair.
func (r *Resolver) Normalize(ctx context.Context, req NormalizeRequest) (*NormalizeResponse, error) {
	brand, err := sanitize(req.Brand)
	if err != nil {
		return nil, eris.Wrap(ErrInvalidArgument, "resolver: brand is required")
	}
	name, err := sanitize(req.Name)
	if err != nil {
		return nil, eris.Wrap(ErrInvalidArgument, "resolver: name is required")
	}
	if err := r.checkLimits(ctx, req.UserID); err != nil {
		return nil, err
	}

	key := cache.Fingerprint(model.OpNormalize, brand+"\x1f"+name, "", req.Language, req.Provider, 0)
	if v, ok := r.cache.Get(key); ok {
		cached := v.(*NormalizeResponse)
		out := *cached
		out.Cached = true
		return &out, nil
	}

	// Pairs confirmed by user feedback live in the canonical catalog and
	// never need a provider round trip.
	if resp := r.canonicalLookup(ctx, brand, name, req.Language); resp != nil {
		r.cache.Set(key, resp)
		return resp, nil
	}

	examples, _ := r.exemplars(ctx, req.UserID, model.OpNormalize, "")
	start := time.Now()
	res, a, err := invoke(ctx, r, providerRequest{provider: req.Provider},
		func(ctx context.Context, a provider.Adapter) (*provider.NormalizeResult, error) {
			return a.Normalize(ctx, brand, name, provider.NormalizeOptions{
				Language:  req.Language,
				Exemplars: examples,
			})
		})
	if err != nil {
		r.recordFailure(ctx, req.UserID, a, model.OpNormalize, start)
		return nil, err
	}

	resp := &NormalizeResponse{
		Result: res.Result,
		Meta: model.OperationMeta{
			Operation: model.OpNormalize,
			Query:     brand + " / " + name,
			Language:  req.Language,
			Provider:  string(a.Name()),
			Timestamp: time.Now().UTC(),
		},
		CostUSD: res.CostUSD,
	}

	r.record(ctx, model.UsageRecord{
		UserID:       req.UserID,
		Provider:     string(a.Name()),
		Model:        res.Usage.Model,
		Operation:    model.OpNormalize,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		CostUSD:      res.CostUSD,
		LatencyMs:    res.ElapsedMs,
		Confidence:   res.Result.ConfidenceScore,
		DataMatched:  res.Result.BrandRoman != "" && res.Result.NameRoman != "",
		Succeeded:    true,
	})

	r.cache.Set(key, resp)
	return resp, nil
}

// canonicalLookup resolves a pair from the canonical catalog, or nil on a
// miss. Lookup failures degrade to a provider call.
func (r *Resolver) canonicalLookup(ctx context.Context, brand, name, lang string) *NormalizeResponse {
	if r.store == nil {
		return nil
	}
	cf, err := r.store.GetCanonical(ctx, brand, name)
	if err != nil {
		zap.L().Warn("canonical lookup failed", zap.Error(err))
		return nil
	}
	if cf == nil {
		return nil
	}
	return &NormalizeResponse{
		Result: cf.ToNormalization(),
		Meta: model.OperationMeta{
			Operation: model.OpNormalize,
			Query:     brand + " / " + name,
			Language:  lang,
			Provider:  "catalog",
			Timestamp: time.Now().UTC(),
		},
		Cached: true,
	}
}

// SuggestNotes resolves a scent note pyramid for a known fragrance.
func (r *Resolver) SuggestNotes(ctx context.Context, req NotesRequest) (*NotesResponse, error) {
	brand, err := sanitize(req.Brand)
	if err != nil {
		return nil, eris.Wrap(ErrInvalidArgument, "resolver: brand is required")
	}
	name, err := sanitize(req.Name)
	if err != nil {
		return nil, eris.Wrap(ErrInvalidArgument, "resolver: name is required")
	}
	if err := r.checkLimits(ctx, req.UserID); err != nil {
		return nil, err
	}

	key := cache.Fingerprint(model.OpSuggestNotes, brand+"\x1f"+name, "", "", req.Provider, req.NoteLimit)
	if v, ok := r.cache.Get(key); ok {
		cached := v.(*NotesResponse)
		out := *cached
		out.Cached = true
		return &out, nil
	}

	start := time.Now()
	res, a, err := invoke(ctx, r, providerRequest{provider: req.Provider},
		func(ctx context.Context, a provider.Adapter) (*provider.NotesResult, error) {
			return a.SuggestNotes(ctx, brand, name, provider.NotesOptions{NoteLimit: req.NoteLimit})
		})
	if err != nil {
		r.recordFailure(ctx, req.UserID, a, model.OpSuggestNotes, start)
		return nil, err
	}

	resp := &NotesResponse{
		Notes: res.Notes,
		Meta: model.OperationMeta{
			Operation: model.OpSuggestNotes,
			Query:     brand + " / " + name,
			Provider:  string(a.Name()),
			Timestamp: time.Now().UTC(),
		},
		CostUSD: res.CostUSD,
	}

	r.record(ctx, model.UsageRecord{
		UserID:       req.UserID,
		Provider:     string(a.Name()),
		Model:        res.Usage.Model,
		Operation:    model.OpSuggestNotes,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		CostUSD:      res.CostUSD,
		LatencyMs:    res.ElapsedMs,
		Confidence:   res.Notes.ConfidenceScore,
		DataMatched:  len(res.Notes.Top)+len(res.Notes.Middle)+len(res.Notes.Base) > 0,
		Succeeded:    true,
	})

	r.cache.Set(key, resp)
	return resp, nil
}

// SuggestAttributes resolves wearing attributes for a known fragrance.
func (r *Resolver) SuggestAttributes(ctx context.Context, req AttributesRequest) (*AttributesResponse, error) {
	name, err := sanitize(req.Name)
	if err != nil {
		return nil, eris.Wrap(ErrInvalidArgument, "resolver: name is required")
	}
	if err := r.checkLimits(ctx, req.UserID); err != nil {
		return nil, err
	}

	key := cache.Fingerprint(model.OpSuggestAttributes, name, "", "", req.Provider, 0)
	if v, ok := r.cache.Get(key); ok {
		cached := v.(*AttributesResponse)
		out := *cached
		out.Cached = true
		return &out, nil
	}

	start := time.Now()
	res, a, err := invoke(ctx, r, providerRequest{provider: req.Provider},
		func(ctx context.Context, a provider.Adapter) (*provider.AttributesResult, error) {
			return a.SuggestAttributes(ctx, name, provider.AttributeOptions{})
		})
	if err != nil {
		r.recordFailure(ctx, req.UserID, a, model.OpSuggestAttributes, start)
		return nil, err
	}

	resp := &AttributesResponse{
		Attributes: res.Attributes,
		Meta: model.OperationMeta{
			Operation: model.OpSuggestAttributes,
			Query:     name,
			Provider:  string(a.Name()),
			Timestamp: time.Now().UTC(),
		},
		CostUSD: res.CostUSD,
	}

	r.record(ctx, model.UsageRecord{
		UserID:       req.UserID,
		Provider:     string(a.Name()),
		Model:        res.Usage.Model,
		Operation:    model.OpSuggestAttributes,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		CostUSD:      res.CostUSD,
		LatencyMs:    res.ElapsedMs,
		Confidence:   res.Attributes.ConfidenceScore,
		DataMatched:  len(res.Attributes.Seasons)+len(res.Attributes.Occasions) > 0,
		Succeeded:    true,
	})

	r.cache.Set(key, resp)
	return resp, nil
}

// recordFailure logs a failed provider leg to the ledger with zero cost.
func (r *Resolver) recordFailure(ctx context.Context, userID string, a provider.Adapter, op string, start time.Time) {
	if a == nil {
		return
	}
	r.record(ctx, model.UsageRecord{
		UserID:    userID,
		Provider:  string(a.Name()),
		Model:     "",
		Operation: op,
		LatencyMs: time.Since(start).Milliseconds(),
		Succeeded: false,
	})
}

// RecordFeedback appends a feedback event. A selected normalization also
// lands in the canonical catalog so future lookups skip the provider.
func (r *Resolver) RecordFeedback(ctx context.Context, ev model.FeedbackEvent) (*model.FeedbackEvent, error) {
	if r.feedback == nil {
		return nil, eris.New("resolver: feedback store not configured")
	}
	created, err := r.feedback.Record(ctx, ev)
	if err != nil {
		// Validation failures are the caller's fault; storage failures are not.
		if errors.Is(err, feedback.ErrInvalidEvent) {
			return nil, eris.Wrap(ErrInvalidArgument, err.Error())
		}
		return nil, eris.Wrap(err, "resolver: record feedback")
	}

	if r.store != nil && ev.UserAction == model.ActionSelected && ev.OperationType == model.OpNormalize {
		if norm, ok := normalizationFromContext(ev.ContextData); ok {
			if _, err := r.store.UpsertCanonical(ctx, norm.ToCanonical()); err != nil {
				zap.L().Warn("canonical upsert from feedback failed", zap.Error(err))
			}
		}
	}
	return created, nil
}

// topConfidence returns the confidence of the strongest suggestion.
func topConfidence(suggestions []model.CompletionSuggestion) float64 {
	var top float64
	for _, s := range suggestions {
		if s.Confidence > top {
			top = s.Confidence
		}
	}
	return top
}
