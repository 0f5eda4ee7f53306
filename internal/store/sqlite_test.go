package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentdesk/fragrance-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleUsage(userID string, cost float64, at time.Time) model.UsageRecord {
	return model.UsageRecord{
		UserID:       userID,
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		Operation:    model.OpComplete,
		InputTokens:  120,
		OutputTokens: 40,
		CostUSD:      cost,
		LatencyMs:    350,
		Confidence:   0.85,
		DataMatched:  true,
		Succeeded:    true,
		CreatedAt:    at,
	}
}

// --- Usage ledger ---

func TestSQLite_InsertAndListUsage(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.InsertUsage(ctx, sampleUsage("u1", 0.01, now)))
	require.NoError(t, st.InsertUsage(ctx, sampleUsage("u2", 0.02, now)))

	recs, err := st.ListUsage(ctx, UsageFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "u1", recs[0].UserID)
	assert.Equal(t, "openai", recs[0].Provider)
	assert.InDelta(t, 0.01, recs[0].CostUSD, 1e-9)
	assert.True(t, recs[0].DataMatched)
	assert.NotEmpty(t, recs[0].ID)
}

func TestSQLite_InsertUsageBatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	recs := []model.UsageRecord{
		sampleUsage("u1", 0.01, now),
		sampleUsage("u1", 0.02, now),
		sampleUsage("u1", 0.03, now),
	}
	n, err := st.InsertUsageBatch(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := st.ListUsage(ctx, UsageFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSQLite_InsertUsageBatch_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	n, err := st.InsertUsageBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSQLite_ListUsage_FilterByProviderAndOperation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rec := sampleUsage("u1", 0.01, now)
	require.NoError(t, st.InsertUsage(ctx, rec))

	rec2 := sampleUsage("u1", 0.02, now)
	rec2.Provider = "gemini"
	rec2.Operation = model.OpNormalize
	require.NoError(t, st.InsertUsage(ctx, rec2))

	got, err := st.ListUsage(ctx, UsageFilter{UserID: "u1", Provider: "gemini"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.OpNormalize, got[0].Operation)

	got, err = st.ListUsage(ctx, UsageFilter{UserID: "u1", Operation: model.OpComplete})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "openai", got[0].Provider)
}

func TestSQLite_DailyCost(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.InsertUsage(ctx, sampleUsage("u1", 0.05, now)))
	require.NoError(t, st.InsertUsage(ctx, sampleUsage("u1", 0.07, now)))
	// Yesterday must not count toward today.
	require.NoError(t, st.InsertUsage(ctx, sampleUsage("u1", 1.00, now.AddDate(0, 0, -1))))
	// Other users must not count.
	require.NoError(t, st.InsertUsage(ctx, sampleUsage("u2", 5.00, now)))

	total, err := st.DailyCost(ctx, "u1", now)
	require.NoError(t, err)
	assert.InDelta(t, 0.12, total, 1e-9)
}

func TestSQLite_MonthlyCost(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Fixed mid-month date so day offsets stay inside/outside the month.
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertUsage(ctx, sampleUsage("u1", 0.50, now)))
	require.NoError(t, st.InsertUsage(ctx, sampleUsage("u1", 0.25, now.AddDate(0, 0, -10))))
	require.NoError(t, st.InsertUsage(ctx, sampleUsage("u1", 9.99, now.AddDate(0, -1, 0))))

	total, err := st.MonthlyCost(ctx, "u1", now)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, total, 1e-9)
}

func TestSQLite_CountRequestsSince(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.InsertUsage(ctx, sampleUsage("u1", 0.01, now)))
	require.NoError(t, st.InsertUsage(ctx, sampleUsage("u1", 0.01, now.Add(-30*time.Minute))))
	require.NoError(t, st.InsertUsage(ctx, sampleUsage("u1", 0.01, now.Add(-2*time.Hour))))

	n, err := st.CountRequestsSince(ctx, "u1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// --- Feedback log ---

func TestSQLite_InsertAndListFeedback(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	score := 0.9
	helpful := true
	ev := model.FeedbackEvent{
		UserID:        "u1",
		SessionID:     "s1",
		OperationType: model.OpComplete,
		Query:         "sauvage",
		Offered: []model.CompletionSuggestion{
			{DisplayText: "Sauvage", BrandName: "Dior", Confidence: 0.9, Kind: model.KindFragrance},
		},
		Chosen:         &model.CompletionSuggestion{DisplayText: "Sauvage", BrandName: "Dior", Confidence: 0.9, Kind: model.KindFragrance},
		RelevanceScore: &score,
		WasHelpful:     &helpful,
		UserAction:     model.ActionSelected,
		ContextData:    map[string]any{"locale": "ja"},
	}

	created, err := st.InsertFeedback(ctx, ev)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	events, err := st.ListFeedback(ctx, FeedbackFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	got := events[0]
	assert.Equal(t, "sauvage", got.Query)
	assert.Equal(t, model.ActionSelected, got.UserAction)
	require.NotNil(t, got.Chosen)
	assert.Equal(t, "Dior", got.Chosen.BrandName)
	require.NotNil(t, got.RelevanceScore)
	assert.InDelta(t, 0.9, *got.RelevanceScore, 1e-9)
	require.NotNil(t, got.WasHelpful)
	assert.True(t, *got.WasHelpful)
	assert.Equal(t, "ja", got.ContextData["locale"])
}

func TestSQLite_ListFeedback_FilterActionAndHelpful(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	helpful := true
	notHelpful := false

	_, err := st.InsertFeedback(ctx, model.FeedbackEvent{
		UserID: "u1", SessionID: "s1", OperationType: model.OpComplete,
		Query: "a", UserAction: model.ActionSelected, WasHelpful: &helpful,
	})
	require.NoError(t, err)
	_, err = st.InsertFeedback(ctx, model.FeedbackEvent{
		UserID: "u1", SessionID: "s1", OperationType: model.OpComplete,
		Query: "b", UserAction: model.ActionRejected, WasHelpful: &notHelpful,
	})
	require.NoError(t, err)
	_, err = st.InsertFeedback(ctx, model.FeedbackEvent{
		UserID: "u1", SessionID: "s1", OperationType: model.OpComplete,
		Query: "c", UserAction: model.ActionSelected,
	})
	require.NoError(t, err)

	selected, err := st.ListFeedback(ctx, FeedbackFilter{Action: model.ActionSelected})
	require.NoError(t, err)
	assert.Len(t, selected, 2)

	helpfulOnly, err := st.ListFeedback(ctx, FeedbackFilter{Action: model.ActionSelected, HelpfulOnly: true})
	require.NoError(t, err)
	require.Len(t, helpfulOnly, 1)
	assert.Equal(t, "a", helpfulOnly[0].Query)
}

// --- Canonical catalog ---

func TestSQLite_UpsertAndGetCanonical(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	year := 2015
	cf := model.CanonicalFragrance{
		BrandLocal:    "ディオール",
		BrandRoman:    "Dior",
		NameLocal:     "ソヴァージュ",
		NameRoman:     "Sauvage",
		Concentration: "EDT",
		LaunchYear:    &year,
		Family:        "fougere",
		Descriptions:  map[string]string{"en": "Fresh spicy."},
		Confidence:    0.93,
	}

	created, err := st.UpsertCanonical(ctx, cf)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	// Lookup is case-insensitive on the romanized pair.
	got, err := st.GetCanonical(ctx, "dior", "SAUVAGE")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ディオール", got.BrandLocal)
	assert.Equal(t, "EDT", got.Concentration)
	require.NotNil(t, got.LaunchYear)
	assert.Equal(t, 2015, *got.LaunchYear)
	assert.Equal(t, "Fresh spicy.", got.Descriptions["en"])
}

func TestSQLite_UpsertCanonical_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertCanonical(ctx, model.CanonicalFragrance{
		BrandRoman: "Dior", NameRoman: "Sauvage", Family: "fougere", Confidence: 0.8,
	})
	require.NoError(t, err)

	_, err = st.UpsertCanonical(ctx, model.CanonicalFragrance{
		BrandRoman: "Dior", NameRoman: "Sauvage", Family: "aromatic", Confidence: 0.95,
	})
	require.NoError(t, err)

	got, err := st.GetCanonical(ctx, "Dior", "Sauvage")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "aromatic", got.Family)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
}

func TestSQLite_UpsertCanonicalBatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertCanonicalBatch(ctx, []model.CanonicalFragrance{
		{BrandRoman: "Dior", NameRoman: "Sauvage", Family: "fougere", Confidence: 0.9},
		{BrandRoman: "Chanel", NameRoman: "Bleu de Chanel", Concentration: "EDP", Confidence: 0.92},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := st.GetCanonical(ctx, "chanel", "bleu de chanel")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "EDP", got.Concentration)

	// Re-importing the same pair updates in place rather than duplicating.
	n, err = st.UpsertCanonicalBatch(ctx, []model.CanonicalFragrance{
		{BrandRoman: "Dior", NameRoman: "Sauvage", Family: "aromatic", Confidence: 0.97},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = st.GetCanonical(ctx, "Dior", "Sauvage")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "aromatic", got.Family)
	assert.InDelta(t, 0.97, got.Confidence, 1e-9)
}

func TestSQLite_UpsertCanonicalBatch_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	n, err := st.UpsertCanonicalBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSQLite_UpsertCanonicalBatch_RequiresKeys(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.UpsertCanonicalBatch(context.Background(), []model.CanonicalFragrance{
		{BrandRoman: "Dior"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs brand and name")
}

func TestSQLite_GetCanonical_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetCanonical(context.Background(), "Nobody", "Nothing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_UpsertCanonical_RequiresKeys(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.UpsertCanonical(context.Background(), model.CanonicalFragrance{BrandRoman: "Dior"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs brand and name")
}
