package store

import (
	"context"
	"time"

	"github.com/scentdesk/fragrance-cli/internal/model"
)

// UsageFilter specifies criteria for listing usage records.
type UsageFilter struct {
	UserID    string    `json:"user_id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Since     time.Time `json:"since,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}

// FeedbackFilter specifies criteria for listing feedback events.
type FeedbackFilter struct {
	UserID      string           `json:"user_id,omitempty"`
	Action      model.UserAction `json:"action,omitempty"`
	HelpfulOnly bool             `json:"helpful_only,omitempty"`
	Limit       int              `json:"limit,omitempty"`
	Offset      int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for the resolution pipeline:
// the append-only usage ledger, the feedback event log, and the canonical
// fragrance catalog.
type Store interface {
	// Usage ledger
	InsertUsage(ctx context.Context, rec model.UsageRecord) error
	InsertUsageBatch(ctx context.Context, recs []model.UsageRecord) (int64, error)
	ListUsage(ctx context.Context, filter UsageFilter) ([]model.UsageRecord, error)
	DailyCost(ctx context.Context, userID string, day time.Time) (float64, error)
	MonthlyCost(ctx context.Context, userID string, month time.Time) (float64, error)
	CountRequestsSince(ctx context.Context, userID string, since time.Time) (int, error)

	// Feedback log
	InsertFeedback(ctx context.Context, ev model.FeedbackEvent) (*model.FeedbackEvent, error)
	ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.FeedbackEvent, error)

	// Canonical catalog
	UpsertCanonical(ctx context.Context, cf model.CanonicalFragrance) (*model.CanonicalFragrance, error)
	UpsertCanonicalBatch(ctx context.Context, cfs []model.CanonicalFragrance) (int64, error)
	GetCanonical(ctx context.Context, brandRoman, nameRoman string) (*model.CanonicalFragrance, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// dayBounds returns the UTC half-open interval [start, end) covering the
// calendar day that contains t.
func dayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// monthBounds returns the UTC half-open interval [start, end) covering the
// calendar month that contains t.
func monthBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
