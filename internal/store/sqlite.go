package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/scentdesk/fragrance-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the default
// backend for single-user CLI installs; no server required.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS usage_records (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	operation     TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	latency_ms    INTEGER NOT NULL DEFAULT 0,
	confidence    REAL NOT NULL DEFAULT 0,
	data_matched  INTEGER NOT NULL DEFAULT 0,
	succeeded     INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS feedback_events (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL DEFAULT '',
	session_id      TEXT NOT NULL,
	operation_type  TEXT NOT NULL,
	query           TEXT NOT NULL,
	offered         TEXT,
	chosen          TEXT,
	final_input     TEXT NOT NULL DEFAULT '',
	relevance_score REAL,
	was_helpful     INTEGER,
	user_action     TEXT NOT NULL,
	context_data    TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS canonical_fragrances (
	id            TEXT PRIMARY KEY,
	brand_key     TEXT NOT NULL,
	name_key      TEXT NOT NULL,
	brand_local   TEXT NOT NULL DEFAULT '',
	brand_roman   TEXT NOT NULL DEFAULT '',
	name_local    TEXT NOT NULL DEFAULT '',
	name_roman    TEXT NOT NULL DEFAULT '',
	concentration TEXT NOT NULL DEFAULT '',
	launch_year   INTEGER,
	family        TEXT NOT NULL DEFAULT '',
	descriptions  TEXT,
	confidence    REAL NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (brand_key, name_key)
);

CREATE INDEX IF NOT EXISTS idx_usage_user_created ON usage_records(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_provider ON usage_records(provider);
CREATE INDEX IF NOT EXISTS idx_feedback_user ON feedback_events(user_id);
CREATE INDEX IF NOT EXISTS idx_feedback_action ON feedback_events(user_action);
CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback_events(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertUsage(ctx context.Context, rec model.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records
		 (id, user_id, provider, model, operation, input_tokens, output_tokens, cost_usd, latency_ms, confidence, data_matched, succeeded, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Provider, rec.Model, rec.Operation,
		rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.LatencyMs,
		rec.Confidence, rec.DataMatched, rec.Succeeded, rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert usage")
}

func (s *SQLiteStore) InsertUsageBatch(ctx context.Context, recs []model.UsageRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin usage batch")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO usage_records
		 (id, user_id, provider, model, operation, input_tokens, output_tokens, cost_usd, latency_ms, confidence, data_matched, succeeded, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare usage batch")
	}
	defer stmt.Close()

	var n int64
	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.UserID, rec.Provider, rec.Model, rec.Operation,
			rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.LatencyMs,
			rec.Confidence, rec.DataMatched, rec.Succeeded, rec.CreatedAt,
		); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert usage batch row")
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit usage batch")
	}
	return n, nil
}

func (s *SQLiteStore) ListUsage(ctx context.Context, filter UsageFilter) ([]model.UsageRecord, error) {
	query := `SELECT id, user_id, provider, model, operation, input_tokens, output_tokens, cost_usd, latency_ms, confidence, data_matched, succeeded, created_at
	          FROM usage_records WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	if filter.Operation != "" {
		query += ` AND operation = ?`
		args = append(args, filter.Operation)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list usage")
	}
	defer rows.Close()

	var recs []model.UsageRecord
	for rows.Next() {
		var r model.UsageRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Provider, &r.Model, &r.Operation,
			&r.InputTokens, &r.OutputTokens, &r.CostUSD, &r.LatencyMs,
			&r.Confidence, &r.DataMatched, &r.Succeeded, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan usage record")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list usage iterate")
}

func (s *SQLiteStore) DailyCost(ctx context.Context, userID string, day time.Time) (float64, error) {
	start, end := dayBounds(day)
	return s.sumCost(ctx, userID, start, end)
}

func (s *SQLiteStore) MonthlyCost(ctx context.Context, userID string, month time.Time) (float64, error) {
	start, end := monthBounds(month)
	return s.sumCost(ctx, userID, start, end)
}

func (s *SQLiteStore) sumCost(ctx context.Context, userID string, start, end time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM usage_records
		 WHERE user_id = ? AND created_at >= ? AND created_at < ?`,
		userID, start, end,
	).Scan(&total)
	return total, eris.Wrap(err, "sqlite: sum cost")
}

func (s *SQLiteStore) CountRequestsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_records WHERE user_id = ? AND created_at >= ?`,
		userID, since.UTC(),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count requests")
}

func (s *SQLiteStore) InsertFeedback(ctx context.Context, ev model.FeedbackEvent) (*model.FeedbackEvent, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	offeredJSON, chosenJSON, contextJSON, err := marshalFeedback(ev)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feedback_events
		 (id, user_id, session_id, operation_type, query, offered, chosen, final_input, relevance_score, was_helpful, user_action, context_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.SessionID, ev.OperationType, ev.Query,
		nullableString(offeredJSON), nullableString(chosenJSON), ev.FinalInput,
		ev.RelevanceScore, ev.WasHelpful, string(ev.UserAction),
		nullableString(contextJSON), ev.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert feedback")
	}
	return &ev, nil
}

func (s *SQLiteStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.FeedbackEvent, error) {
	query := `SELECT id, user_id, session_id, operation_type, query, offered, chosen, final_input, relevance_score, was_helpful, user_action, context_data, created_at
	          FROM feedback_events WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		query += ` AND user_action = ?`
		args = append(args, string(filter.Action))
	}
	if filter.HelpfulOnly {
		query += ` AND was_helpful = 1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close()

	var events []model.FeedbackEvent
	for rows.Next() {
		var ev model.FeedbackEvent
		var offered, chosen, contextData sql.NullString
		var action string
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.SessionID, &ev.OperationType, &ev.Query,
			&offered, &chosen, &ev.FinalInput, &ev.RelevanceScore, &ev.WasHelpful,
			&action, &contextData, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback event")
		}
		ev.UserAction = model.UserAction(action)
		if err := unmarshalFeedback(&ev, offered.String, chosen.String, contextData.String); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list feedback iterate")
}

func (s *SQLiteStore) UpsertCanonical(ctx context.Context, cf model.CanonicalFragrance) (*model.CanonicalFragrance, error) {
	if cf.ID == "" {
		cf.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if cf.CreatedAt.IsZero() {
		cf.CreatedAt = now
	}
	cf.UpdatedAt = now

	brandKey, nameKey := canonicalKeys(cf.BrandRoman, cf.NameRoman)
	if brandKey == "" || nameKey == "" {
		return nil, eris.New("sqlite: canonical record needs brand and name")
	}

	var descJSON string
	if cf.Descriptions != nil {
		b, err := json.Marshal(cf.Descriptions)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal descriptions")
		}
		descJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO canonical_fragrances
		 (id, brand_key, name_key, brand_local, brand_roman, name_local, name_roman, concentration, launch_year, family, descriptions, confidence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (brand_key, name_key) DO UPDATE SET
		   brand_local = excluded.brand_local, name_local = excluded.name_local,
		   concentration = excluded.concentration, launch_year = excluded.launch_year,
		   family = excluded.family, descriptions = excluded.descriptions,
		   confidence = excluded.confidence, updated_at = excluded.updated_at`,
		cf.ID, brandKey, nameKey, cf.BrandLocal, cf.BrandRoman, cf.NameLocal, cf.NameRoman,
		cf.Concentration, cf.LaunchYear, cf.Family, nullableString(descJSON),
		cf.Confidence, cf.CreatedAt, cf.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert canonical")
	}
	return &cf, nil
}

// UpsertCanonicalBatch upserts catalog records in one transaction.
func (s *SQLiteStore) UpsertCanonicalBatch(ctx context.Context, cfs []model.CanonicalFragrance) (int64, error) {
	if len(cfs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin canonical batch")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO canonical_fragrances
		 (id, brand_key, name_key, brand_local, brand_roman, name_local, name_roman, concentration, launch_year, family, descriptions, confidence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (brand_key, name_key) DO UPDATE SET
		   brand_local = excluded.brand_local, name_local = excluded.name_local,
		   concentration = excluded.concentration, launch_year = excluded.launch_year,
		   family = excluded.family, descriptions = excluded.descriptions,
		   confidence = excluded.confidence, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare canonical batch")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var count int64
	for _, cf := range cfs {
		brandKey, nameKey := canonicalKeys(cf.BrandRoman, cf.NameRoman)
		if brandKey == "" || nameKey == "" {
			return 0, eris.Errorf("sqlite: canonical record %q/%q needs brand and name", cf.BrandRoman, cf.NameRoman)
		}
		if cf.ID == "" {
			cf.ID = uuid.New().String()
		}
		if cf.CreatedAt.IsZero() {
			cf.CreatedAt = now
		}

		var descJSON string
		if cf.Descriptions != nil {
			b, err := json.Marshal(cf.Descriptions)
			if err != nil {
				return 0, eris.Wrap(err, "sqlite: marshal descriptions")
			}
			descJSON = string(b)
		}

		if _, err := stmt.ExecContext(ctx,
			cf.ID, brandKey, nameKey, cf.BrandLocal, cf.BrandRoman, cf.NameLocal, cf.NameRoman,
			cf.Concentration, cf.LaunchYear, cf.Family, nullableString(descJSON),
			cf.Confidence, cf.CreatedAt, now,
		); err != nil {
			return 0, eris.Wrap(err, "sqlite: upsert canonical batch")
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit canonical batch")
	}
	return count, nil
}

func (s *SQLiteStore) GetCanonical(ctx context.Context, brandRoman, nameRoman string) (*model.CanonicalFragrance, error) {
	brandKey, nameKey := canonicalKeys(brandRoman, nameRoman)

	var cf model.CanonicalFragrance
	var descJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, brand_local, brand_roman, name_local, name_roman, concentration, launch_year, family, descriptions, confidence, created_at, updated_at
		 FROM canonical_fragrances WHERE brand_key = ? AND name_key = ?`,
		brandKey, nameKey,
	).Scan(&cf.ID, &cf.BrandLocal, &cf.BrandRoman, &cf.NameLocal, &cf.NameRoman,
		&cf.Concentration, &cf.LaunchYear, &cf.Family, &descJSON, &cf.Confidence,
		&cf.CreatedAt, &cf.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get canonical")
	}
	if descJSON.Valid {
		if err := json.Unmarshal([]byte(descJSON.String), &cf.Descriptions); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal descriptions")
		}
	}
	return &cf, nil
}

// helpers

// canonicalKeys derives the case-insensitive lookup key pair for the catalog.
func canonicalKeys(brand, name string) (string, string) {
	return strings.ToLower(strings.TrimSpace(brand)), strings.ToLower(strings.TrimSpace(name))
}

func marshalFeedback(ev model.FeedbackEvent) (offered, chosen, contextData string, err error) {
	if ev.Offered != nil {
		b, mErr := json.Marshal(ev.Offered)
		if mErr != nil {
			return "", "", "", eris.Wrap(mErr, "store: marshal offered suggestions")
		}
		offered = string(b)
	}
	if ev.Chosen != nil {
		b, mErr := json.Marshal(ev.Chosen)
		if mErr != nil {
			return "", "", "", eris.Wrap(mErr, "store: marshal chosen suggestion")
		}
		chosen = string(b)
	}
	if ev.ContextData != nil {
		b, mErr := json.Marshal(ev.ContextData)
		if mErr != nil {
			return "", "", "", eris.Wrap(mErr, "store: marshal context data")
		}
		contextData = string(b)
	}
	return offered, chosen, contextData, nil
}

func unmarshalFeedback(ev *model.FeedbackEvent, offered, chosen, contextData string) error {
	if offered != "" {
		if err := json.Unmarshal([]byte(offered), &ev.Offered); err != nil {
			return eris.Wrap(err, "store: unmarshal offered suggestions")
		}
	}
	if chosen != "" {
		ev.Chosen = &model.CompletionSuggestion{}
		if err := json.Unmarshal([]byte(chosen), ev.Chosen); err != nil {
			return eris.Wrap(err, "store: unmarshal chosen suggestion")
		}
	}
	if contextData != "" {
		if err := json.Unmarshal([]byte(contextData), &ev.ContextData); err != nil {
			return eris.Wrap(err, "store: unmarshal context data")
		}
	}
	return nil
}

// nullableString maps "" to NULL so empty JSON blobs do not round-trip as
// empty strings.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
