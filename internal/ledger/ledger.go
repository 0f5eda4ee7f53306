// Package ledger tracks per-user spend against configured limits and
// derives cost analytics from the usage store.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scentdesk/fragrance-cli/internal/model"
	"github.com/scentdesk/fragrance-cli/internal/store"
)

// Limits holds the configured spend and rate ceilings. Zero values disable
// the corresponding check.
type Limits struct {
	DailyLimitUSD   float64                 `yaml:"daily_limit_usd" mapstructure:"daily_limit_usd"`
	MonthlyLimitUSD float64                 `yaml:"monthly_limit_usd" mapstructure:"monthly_limit_usd"`
	RequestsPerHour int                     `yaml:"requests_per_hour" mapstructure:"requests_per_hour"`
	Weights         model.EfficiencyWeights `yaml:"efficiency_weights" mapstructure:"efficiency_weights"`
}

// DailyLimitError is returned when a user's daily spend ceiling is reached.
type DailyLimitError struct {
	SpentUSD float64
	LimitUSD float64
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("daily cost limit exceeded: $%.4f of $%.2f", e.SpentUSD, e.LimitUSD)
}

// MonthlyLimitError is returned when a user's monthly spend ceiling is reached.
type MonthlyLimitError struct {
	SpentUSD float64
	LimitUSD float64
}

func (e *MonthlyLimitError) Error() string {
	return fmt.Sprintf("monthly cost limit exceeded: $%.4f of $%.2f", e.SpentUSD, e.LimitUSD)
}

// RateLimitError is returned when a user's hourly request ceiling is reached.
type RateLimitError struct {
	Count int
	Limit int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("request rate limit exceeded: %d of %d this hour", e.Count, e.Limit)
}

// Ledger records usage and enforces spend limits. Recording never fails the
// caller: a store outage must not break resolution, so failed writes land in
// a bounded retry spool instead.
type Ledger struct {
	store   store.Store
	limits  Limits
	spool   *spool
	counter *hourCounter
	nowFunc func() time.Time
}

// New creates a Ledger over the given store.
func New(st store.Store, limits Limits) *Ledger {
	return &Ledger{
		store:   st,
		limits:  limits,
		spool:   newSpool(defaultSpoolCapacity),
		counter: newHourCounter(time.Now),
		nowFunc: time.Now,
	}
}

// Record appends one usage entry. Failures are logged and spooled for a
// later flush; the caller never sees them.
func (l *Ledger) Record(ctx context.Context, rec model.UsageRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.nowFunc().UTC()
	}
	l.counter.Increment(rec.UserID)

	if err := l.store.InsertUsage(ctx, rec); err != nil {
		dropped := l.spool.Add(rec)
		zap.L().Warn("usage record spooled after insert failure",
			zap.String("provider", rec.Provider),
			zap.String("operation", rec.Operation),
			zap.Int("spooled", l.spool.Len()),
			zap.Int("dropped", dropped),
			zap.Error(err))
	}
}

// RecordBatch appends usage entries from a batch operation in one write.
func (l *Ledger) RecordBatch(ctx context.Context, recs []model.UsageRecord) {
	now := l.nowFunc().UTC()
	for i := range recs {
		if recs[i].CreatedAt.IsZero() {
			recs[i].CreatedAt = now
		}
		l.counter.Increment(recs[i].UserID)
	}

	if _, err := l.store.InsertUsageBatch(ctx, recs); err != nil {
		var dropped int
		for _, rec := range recs {
			dropped += l.spool.Add(rec)
		}
		zap.L().Warn("usage batch spooled after insert failure",
			zap.Int("records", len(recs)),
			zap.Int("dropped", dropped),
			zap.Error(err))
	}
}

// Flush retries spooled records. Safe to call at any time.
func (l *Ledger) Flush(ctx context.Context) {
	l.spool.Flush(ctx, l.store)
}

// StartFlusher retries spooled records on an interval until ctx is done.
func (l *Ledger) StartFlusher(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Flush(ctx)
			}
		}
	}()
}

// CheckLimits rejects the request before any provider spend when a ceiling
// is already reached. Checks run cheapest-consequence first: daily spend,
// then monthly spend, then the hourly request rate.
func (l *Ledger) CheckLimits(ctx context.Context, userID string) error {
	now := l.nowFunc().UTC()

	if l.limits.DailyLimitUSD > 0 {
		spent, err := l.store.DailyCost(ctx, userID, now)
		if err != nil {
			return eris.Wrap(err, "ledger: daily cost")
		}
		if spent >= l.limits.DailyLimitUSD {
			return &DailyLimitError{SpentUSD: spent, LimitUSD: l.limits.DailyLimitUSD}
		}
	}

	if l.limits.MonthlyLimitUSD > 0 {
		spent, err := l.store.MonthlyCost(ctx, userID, now)
		if err != nil {
			return eris.Wrap(err, "ledger: monthly cost")
		}
		if spent >= l.limits.MonthlyLimitUSD {
			return &MonthlyLimitError{SpentUSD: spent, LimitUSD: l.limits.MonthlyLimitUSD}
		}
	}

	if l.limits.RequestsPerHour > 0 {
		count := l.counter.Count(userID)
		if count >= l.limits.RequestsPerHour {
			return &RateLimitError{Count: count, Limit: l.limits.RequestsPerHour}
		}
	}

	return nil
}

// Summary aggregates usage over [from, to).
func (l *Ledger) Summary(ctx context.Context, userID string, from, to time.Time) (*model.UsageSummary, error) {
	recs, err := l.store.ListUsage(ctx, store.UsageFilter{UserID: userID, Since: from, Limit: summaryScanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list usage")
	}

	sum := &model.UsageSummary{
		UserID:      userID,
		From:        from,
		To:          to,
		ByProvider:  map[string]float64{},
		ByOperation: map[string]int{},
	}
	for _, r := range recs {
		if !to.IsZero() && !r.CreatedAt.Before(to) {
			continue
		}
		sum.Requests++
		sum.InputTokens += r.InputTokens
		sum.OutputTokens += r.OutputTokens
		sum.CostUSD += r.CostUSD
		sum.ByProvider[r.Provider] += r.CostUSD
		sum.ByOperation[r.Operation]++
	}
	return sum, nil
}

// PredictMonthlyCost projects month-end spend from the month-to-date daily
// average. Day one projects thirty-ish times the first day's spend; that is
// the documented behavior, not a bug.
func (l *Ledger) PredictMonthlyCost(ctx context.Context, userID string) (*model.CostPrediction, error) {
	now := l.nowFunc().UTC()
	spent, err := l.store.MonthlyCost(ctx, userID, now)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: monthly cost")
	}

	daysElapsed := now.Day()
	daysInMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
	dailyAvg := spent / float64(daysElapsed)
	projected := dailyAvg * float64(daysInMonth)

	p := &model.CostPrediction{
		UserID:       userID,
		Month:        now.Format("2006-01"),
		SpentUSD:     spent,
		DailyAvgUSD:  dailyAvg,
		ProjectedUSD: projected,
		DaysElapsed:  daysElapsed,
		DaysInMonth:  daysInMonth,
	}
	if l.limits.MonthlyLimitUSD > 0 {
		p.LimitUSD = l.limits.MonthlyLimitUSD
		p.OverLimit = projected > l.limits.MonthlyLimitUSD
		p.PercentOfLimit = projected / l.limits.MonthlyLimitUSD * 100
	}
	return p, nil
}

// patternWindow bounds how far back pattern analysis looks.
const patternWindow = 30 * 24 * time.Hour

// summaryScanLimit caps how many ledger rows a single analysis reads.
const summaryScanLimit = 10000

// AnalyzeUsagePatterns summarizes the last thirty days of a user's activity.
func (l *Ledger) AnalyzeUsagePatterns(ctx context.Context, userID string) (*model.UsagePatterns, error) {
	now := l.nowFunc().UTC()
	recs, err := l.store.ListUsage(ctx, store.UsageFilter{
		UserID: userID,
		Since:  now.Add(-patternWindow),
		Limit:  summaryScanLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list usage")
	}

	p := &model.UsagePatterns{
		UserID:      userID,
		ByOperation: map[string]int{},
		ByProvider:  map[string]int{},
	}
	var totalLatency, totalTokens int64
	var failures int
	for _, r := range recs {
		p.Requests++
		p.ByOperation[r.Operation]++
		p.ByProvider[r.Provider]++
		p.ByHourOfDay[r.CreatedAt.UTC().Hour()]++
		totalLatency += r.LatencyMs
		totalTokens += int64(r.InputTokens + r.OutputTokens)
		if !r.Succeeded {
			failures++
		}
	}
	if p.Requests > 0 {
		p.AvgLatencyMs = float64(totalLatency) / float64(p.Requests)
		p.FailureRate = float64(failures) / float64(p.Requests)
		p.AvgTokensPerOp = float64(totalTokens) / float64(p.Requests)
	}
	for hour, n := range p.ByHourOfDay {
		if n > p.ByHourOfDay[p.PeakHour] {
			p.PeakHour = hour
		}
	}
	return p, nil
}

// latencyCeilingMs is where the latency component of the efficiency score
// bottoms out at zero.
const latencyCeilingMs = 5000.0

// AnalyzeCostEfficiency scores the current month's spend as a weighted
// composite of confidence, data-match rate, latency, and reliability.
func (l *Ledger) AnalyzeCostEfficiency(ctx context.Context, userID string) (*model.EfficiencyReport, error) {
	now := l.nowFunc().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	recs, err := l.store.ListUsage(ctx, store.UsageFilter{
		UserID: userID,
		Since:  monthStart,
		Limit:  summaryScanLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list usage")
	}

	weights := l.limits.Weights
	if weights == (model.EfficiencyWeights{}) {
		weights = model.DefaultEfficiencyWeights()
	}

	report := &model.EfficiencyReport{
		UserID:          userID,
		Month:           now.Format("2006-01"),
		Weights:         weights,
		ScoreByProvider: map[string]float64{},
	}

	type bucket struct {
		n          int
		confidence float64
		matched    int
		latency    int64
		succeeded  int
		cost       float64
	}
	total := bucket{}
	byProvider := map[string]*bucket{}

	for _, r := range recs {
		b, ok := byProvider[r.Provider]
		if !ok {
			b = &bucket{}
			byProvider[r.Provider] = b
		}
		for _, dst := range []*bucket{&total, b} {
			dst.n++
			dst.confidence += r.Confidence
			dst.latency += r.LatencyMs
			dst.cost += r.CostUSD
			if r.DataMatched {
				dst.matched++
			}
			if r.Succeeded {
				dst.succeeded++
			}
		}
	}

	score := func(b *bucket) (avgConf, matchRate, avgLatency, reliability, s float64) {
		if b.n == 0 {
			return 0, 0, 0, 0, 0
		}
		avgConf = b.confidence / float64(b.n)
		matchRate = float64(b.matched) / float64(b.n)
		avgLatency = float64(b.latency) / float64(b.n)
		reliability = float64(b.succeeded) / float64(b.n)

		latencyScore := 1 - avgLatency/latencyCeilingMs
		if latencyScore < 0 {
			latencyScore = 0
		}
		s = weights.Confidence*avgConf +
			weights.DataMatch*matchRate +
			weights.Latency*latencyScore +
			weights.Reliability*reliability
		return avgConf, matchRate, avgLatency, reliability, s
	}

	var composite float64
	report.AvgConfidence, report.DataMatchRate, report.AvgLatencyMs, report.ReliabilityRate, composite = score(&total)
	report.Requests = total.n
	report.CostUSD = total.cost
	report.Score = composite
	for provider, b := range byProvider {
		_, _, _, _, s := score(b)
		report.ScoreByProvider[provider] = s
	}
	return report, nil
}
