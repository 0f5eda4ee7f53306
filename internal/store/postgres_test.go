package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentdesk/fragrance-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_InsertUsage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO usage_records`).
		WithArgs(pgxmock.AnyArg(), "u1", "openai", "gpt-4o-mini", model.OpComplete,
			120, 40, 0.01, int64(350), 0.85, true, true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertUsage(context.Background(), model.UsageRecord{
		UserID:       "u1",
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		Operation:    model.OpComplete,
		InputTokens:  120,
		OutputTokens: 40,
		CostUSD:      0.01,
		LatencyMs:    350,
		Confidence:   0.85,
		DataMatched:  true,
		Succeeded:    true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertUsageBatch_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"usage_records"}, usageColumns).WillReturnResult(2)

	n, err := s.InsertUsageBatch(context.Background(), []model.UsageRecord{
		{UserID: "u1", Provider: "openai", Model: "gpt-4o-mini", Operation: model.OpComplete},
		{UserID: "u1", Provider: "gemini", Model: "gemini-2.0-flash", Operation: model.OpComplete},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertUsageBatch_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.InsertUsageBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DailyCost(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	day := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	start := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(cost_usd\), 0\) FROM usage_records`).
		WithArgs("u1", start, end).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(0.42))

	total, err := s.DailyCost(context.Background(), "u1", day)
	require.NoError(t, err)
	assert.InDelta(t, 0.42, total, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MonthlyCost(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	month := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(cost_usd\), 0\) FROM usage_records`).
		WithArgs("u1", start, end).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(12.5))

	total, err := s.MonthlyCost(context.Background(), "u1", month)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, total, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountRequestsSince(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	since := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM usage_records`).
		WithArgs("u1", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountRequestsSince(context.Background(), "u1", since)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertFeedback(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO feedback_events`).
		WithArgs(pgxmock.AnyArg(), "u1", "s1", model.OpComplete, "sauvage",
			pgxmock.AnyArg(), pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg(),
			"selected", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := s.InsertFeedback(context.Background(), model.FeedbackEvent{
		UserID:        "u1",
		SessionID:     "s1",
		OperationType: model.OpComplete,
		Query:         "sauvage",
		UserAction:    model.ActionSelected,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCanonical(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(brand_key, name_key\)`).
		WithArgs(pgxmock.AnyArg(), "dior", "sauvage", "", "Dior", "", "Sauvage",
			"", pgxmock.AnyArg(), "", pgxmock.AnyArg(), 0.9,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := s.UpsertCanonical(context.Background(), model.CanonicalFragrance{
		BrandRoman: "Dior",
		NameRoman:  "Sauvage",
		Confidence: 0.9,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCanonical_RequiresKeys(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.UpsertCanonical(context.Background(), model.CanonicalFragrance{BrandRoman: "Dior"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs brand and name")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCanonical_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM canonical_fragrances`).
		WithArgs("dior", "sauvage").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetCanonical(context.Background(), "Dior", "Sauvage")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListUsage_Scan(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "user_id", "provider", "model", "operation",
		"input_tokens", "output_tokens", "cost_usd", "latency_ms",
		"confidence", "data_matched", "succeeded", "created_at",
	}).AddRow("r1", "u1", "openai", "gpt-4o-mini", model.OpComplete,
		120, 40, 0.01, int64(350), 0.85, true, true, now)

	mock.ExpectQuery(`SELECT .* FROM usage_records`).
		WithArgs("u1", 100).
		WillReturnRows(rows)

	recs, err := s.ListUsage(context.Background(), UsageFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "r1", recs[0].ID)
	assert.Equal(t, "openai", recs[0].Provider)
	assert.NoError(t, mock.ExpectationsWereMet())
}
