package model

import "time"

// Operation names for usage attribution. These match the public API surface.
const (
	OpComplete          = "complete"
	OpBatchComplete     = "batch_complete"
	OpNormalize         = "normalize"
	OpBatchNormalize    = "batch_normalize"
	OpSuggestNotes      = "suggest_notes"
	OpSuggestAttributes = "suggest_attributes"
	OpHealthCheck       = "health_check"
)

// UsageRecord is one append-only ledger entry per provider call. Records are
// never mutated after insert; aggregation happens at read time.
type UsageRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	LatencyMs    int64     `json:"latency_ms"`
	Confidence   float64   `json:"confidence,omitempty"`
	DataMatched  bool      `json:"data_matched,omitempty"`
	Succeeded    bool      `json:"succeeded"`
	CreatedAt    time.Time `json:"created_at"`
}

// UsageSummary aggregates usage over a window.
type UsageSummary struct {
	UserID       string             `json:"user_id"`
	From         time.Time          `json:"from"`
	To           time.Time          `json:"to"`
	Requests     int                `json:"requests"`
	InputTokens  int                `json:"input_tokens"`
	OutputTokens int                `json:"output_tokens"`
	CostUSD      float64            `json:"cost_usd"`
	ByProvider   map[string]float64 `json:"by_provider,omitempty"`
	ByOperation  map[string]int     `json:"by_operation,omitempty"`
}

// CostPrediction projects month-end spend from the month-to-date average.
type CostPrediction struct {
	UserID         string  `json:"user_id"`
	Month          string  `json:"month"` // YYYY-MM
	SpentUSD       float64 `json:"spent_usd"`
	DailyAvgUSD    float64 `json:"daily_avg_usd"`
	ProjectedUSD   float64 `json:"projected_usd"`
	DaysElapsed    int     `json:"days_elapsed"`
	DaysInMonth    int     `json:"days_in_month"`
	LimitUSD       float64 `json:"limit_usd,omitempty"`
	OverLimit      bool    `json:"over_limit"`
	PercentOfLimit float64 `json:"percent_of_limit,omitempty"`
}

// UsagePatterns summarizes how a user exercises the pipeline.
type UsagePatterns struct {
	UserID         string         `json:"user_id"`
	Requests       int            `json:"requests"`
	ByOperation    map[string]int `json:"by_operation"`
	ByProvider     map[string]int `json:"by_provider"`
	ByHourOfDay    [24]int        `json:"by_hour_of_day"`
	PeakHour       int            `json:"peak_hour"`
	AvgLatencyMs   float64        `json:"avg_latency_ms"`
	FailureRate    float64        `json:"failure_rate"`
	AvgTokensPerOp float64        `json:"avg_tokens_per_op"`
}

// EfficiencyWeights tunes the composite cost-efficiency score. The defaults
// are product-tuning constants, not correctness constraints.
type EfficiencyWeights struct {
	Confidence  float64 `yaml:"confidence" mapstructure:"confidence"`
	DataMatch   float64 `yaml:"data_match" mapstructure:"data_match"`
	Latency     float64 `yaml:"latency" mapstructure:"latency"`
	Reliability float64 `yaml:"reliability" mapstructure:"reliability"`
}

// DefaultEfficiencyWeights returns the documented default weighting.
func DefaultEfficiencyWeights() EfficiencyWeights {
	return EfficiencyWeights{
		Confidence:  0.4,
		DataMatch:   0.3,
		Latency:     0.1,
		Reliability: 0.2,
	}
}

// EfficiencyReport scores how much value a user gets per dollar spent.
type EfficiencyReport struct {
	UserID          string             `json:"user_id"`
	Month           string             `json:"month"`
	Requests        int                `json:"requests"`
	CostUSD         float64            `json:"cost_usd"`
	AvgConfidence   float64            `json:"avg_confidence"`
	DataMatchRate   float64            `json:"data_match_rate"`
	AvgLatencyMs    float64            `json:"avg_latency_ms"`
	ReliabilityRate float64            `json:"reliability_rate"`
	Score           float64            `json:"score"` // weighted composite in [0,1]
	Weights         EfficiencyWeights  `json:"weights"`
	ScoreByProvider map[string]float64 `json:"score_by_provider,omitempty"`
}
