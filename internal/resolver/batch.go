package resolver

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// CompleteBatchItem is one per-item outcome of a batch completion. A failed
// item carries its code and message; the batch as a whole never fails on
// item errors.
type CompleteBatchItem struct {
	Index    int               `json:"index"`
	Response *CompleteResponse `json:"response,omitempty"`
	Code     Code              `json:"code,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// NormalizeBatchItem is one per-item outcome of a batch normalization.
type NormalizeBatchItem struct {
	Index    int                `json:"index"`
	Response *NormalizeResponse `json:"response,omitempty"`
	Code     Code               `json:"code,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// BatchCompleteResponse carries the index-aligned item outcomes plus the
// summed cost of the provider calls the batch made.
type BatchCompleteResponse struct {
	Results           []CompleteBatchItem `json:"results"`
	TotalCostEstimate float64             `json:"total_cost_estimate"`
}

// BatchNormalizeResponse adds the fraction of items that normalized.
type BatchNormalizeResponse struct {
	Results           []NormalizeBatchItem `json:"results"`
	SuccessRate       float64              `json:"success_rate"`
	TotalCostEstimate float64              `json:"total_cost_estimate"`
}

func (r *Resolver) newBatchLimiter() *rate.Limiter {
	if r.opts.BatchRate <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(r.opts.BatchRate), 1)
}

func (r *Resolver) checkBatchSize(n int) error {
	if n == 0 {
		return eris.Wrap(ErrInvalidArgument, "resolver: empty batch")
	}
	if n > r.opts.BatchLimit {
		return eris.Wrapf(ErrInvalidArgument, "resolver: batch size %d exceeds limit %d", n, r.opts.BatchLimit)
	}
	return nil
}

// BatchComplete resolves up to BatchLimit completion requests concurrently.
// Items succeed or fail independently; the returned slice is index-aligned
// with the input.
func (r *Resolver) BatchComplete(ctx context.Context, reqs []CompleteRequest) (*BatchCompleteResponse, error) {
	if err := r.checkBatchSize(len(reqs)); err != nil {
		return nil, err
	}

	items := make([]CompleteBatchItem, len(reqs))
	limiter := r.newBatchLimiter()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.BatchWorkers)
	for i, req := range reqs {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				items[i] = CompleteBatchItem{Index: i, Code: Classify(err), Error: err.Error()}
				return nil
			}
			resp, err := r.Complete(gctx, req)
			if err != nil {
				items[i] = CompleteBatchItem{Index: i, Code: Classify(err), Error: err.Error()}
				return nil
			}
			items[i] = CompleteBatchItem{Index: i, Response: resp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "resolver: batch complete")
	}

	resp := &BatchCompleteResponse{Results: items}
	for _, item := range items {
		if item.Response != nil {
			resp.TotalCostEstimate += item.Response.CostUSD
		}
	}
	return resp, nil
}

// BatchNormalize resolves up to BatchLimit normalization requests
// concurrently with the same per-item failure policy as BatchComplete.
func (r *Resolver) BatchNormalize(ctx context.Context, reqs []NormalizeRequest) (*BatchNormalizeResponse, error) {
	if err := r.checkBatchSize(len(reqs)); err != nil {
		return nil, err
	}

	items := make([]NormalizeBatchItem, len(reqs))
	limiter := r.newBatchLimiter()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.BatchWorkers)
	for i, req := range reqs {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				items[i] = NormalizeBatchItem{Index: i, Code: Classify(err), Error: err.Error()}
				return nil
			}
			resp, err := r.Normalize(gctx, req)
			if err != nil {
				items[i] = NormalizeBatchItem{Index: i, Code: Classify(err), Error: err.Error()}
				return nil
			}
			items[i] = NormalizeBatchItem{Index: i, Response: resp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "resolver: batch normalize")
	}

	resp := &BatchNormalizeResponse{Results: items}
	var ok int
	for _, item := range items {
		if item.Response != nil {
			ok++
			resp.TotalCostEstimate += item.Response.CostUSD
		}
	}
	resp.SuccessRate = float64(ok) / float64(len(items))
	return resp, nil
}
