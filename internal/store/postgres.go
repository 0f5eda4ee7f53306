package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/scentdesk/fragrance-cli/internal/db"
	"github.com/scentdesk/fragrance-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. It is the backend for
// multi-user server deployments where the ledger is shared.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot ledger paths.
var preparedStatements = map[string]string{
	"insert_usage": `INSERT INTO usage_records
		(id, user_id, provider, model, operation, input_tokens, output_tokens, cost_usd, latency_ms, confidence, data_matched, succeeded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
	"sum_cost": `SELECT COALESCE(SUM(cost_usd), 0) FROM usage_records
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`,
	"count_requests": `SELECT COUNT(*) FROM usage_records
		WHERE user_id = $1 AND created_at >= $2`,
	"get_canonical": `SELECT id, brand_local, brand_roman, name_local, name_roman, concentration, launch_year, family, descriptions, confidence, created_at, updated_at
		FROM canonical_fragrances WHERE brand_key = $1 AND name_key = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS usage_records (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id       TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	operation     TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
	latency_ms    BIGINT NOT NULL DEFAULT 0,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	data_matched  BOOLEAN NOT NULL DEFAULT false,
	succeeded     BOOLEAN NOT NULL DEFAULT true,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feedback_events (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id         TEXT NOT NULL DEFAULT '',
	session_id      TEXT NOT NULL,
	operation_type  TEXT NOT NULL,
	query           TEXT NOT NULL,
	offered         JSONB,
	chosen          JSONB,
	final_input     TEXT NOT NULL DEFAULT '',
	relevance_score DOUBLE PRECISION,
	was_helpful     BOOLEAN,
	user_action     TEXT NOT NULL,
	context_data    JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS canonical_fragrances (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	brand_key     TEXT NOT NULL,
	name_key      TEXT NOT NULL,
	brand_local   TEXT NOT NULL DEFAULT '',
	brand_roman   TEXT NOT NULL DEFAULT '',
	name_local    TEXT NOT NULL DEFAULT '',
	name_roman    TEXT NOT NULL DEFAULT '',
	concentration TEXT NOT NULL DEFAULT '',
	launch_year   INTEGER,
	family        TEXT NOT NULL DEFAULT '',
	descriptions  JSONB,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (brand_key, name_key)
);

CREATE INDEX IF NOT EXISTS idx_usage_user_created ON usage_records(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_provider ON usage_records(provider);
CREATE INDEX IF NOT EXISTS idx_feedback_user ON feedback_events(user_id);
CREATE INDEX IF NOT EXISTS idx_feedback_action ON feedback_events(user_action);
CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback_events(created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertUsage(ctx context.Context, rec model.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_records
		 (id, user_id, provider, model, operation, input_tokens, output_tokens, cost_usd, latency_ms, confidence, data_matched, succeeded, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.UserID, rec.Provider, rec.Model, rec.Operation,
		rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.LatencyMs,
		rec.Confidence, rec.DataMatched, rec.Succeeded, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert usage")
}

var usageColumns = []string{
	"id", "user_id", "provider", "model", "operation",
	"input_tokens", "output_tokens", "cost_usd", "latency_ms",
	"confidence", "data_matched", "succeeded", "created_at",
}

func (s *PostgresStore) InsertUsageBatch(ctx context.Context, recs []model.UsageRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		rows = append(rows, []any{
			rec.ID, rec.UserID, rec.Provider, rec.Model, rec.Operation,
			rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.LatencyMs,
			rec.Confidence, rec.DataMatched, rec.Succeeded, rec.CreatedAt,
		})
	}
	return db.CopyFrom(ctx, s.pool, "usage_records", usageColumns, rows)
}

func (s *PostgresStore) ListUsage(ctx context.Context, filter UsageFilter) ([]model.UsageRecord, error) {
	query := `SELECT id, user_id, provider, model, operation, input_tokens, output_tokens, cost_usd, latency_ms, confidence, data_matched, succeeded, created_at
	          FROM usage_records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.Provider != "" {
		query += fmt.Sprintf(` AND provider = $%d`, argIdx)
		args = append(args, filter.Provider)
		argIdx++
	}
	if filter.Operation != "" {
		query += fmt.Sprintf(` AND operation = $%d`, argIdx)
		args = append(args, filter.Operation)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list usage")
	}
	defer rows.Close()

	var recs []model.UsageRecord
	for rows.Next() {
		var r model.UsageRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Provider, &r.Model, &r.Operation,
			&r.InputTokens, &r.OutputTokens, &r.CostUSD, &r.LatencyMs,
			&r.Confidence, &r.DataMatched, &r.Succeeded, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan usage record")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list usage iterate")
}

func (s *PostgresStore) DailyCost(ctx context.Context, userID string, day time.Time) (float64, error) {
	start, end := dayBounds(day)
	return s.sumCost(ctx, userID, start, end)
}

func (s *PostgresStore) MonthlyCost(ctx context.Context, userID string, month time.Time) (float64, error) {
	start, end := monthBounds(month)
	return s.sumCost(ctx, userID, start, end)
}

func (s *PostgresStore) sumCost(ctx context.Context, userID string, start, end time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM usage_records
		 WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`,
		userID, start, end,
	).Scan(&total)
	return total, eris.Wrap(err, "postgres: sum cost")
}

func (s *PostgresStore) CountRequestsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM usage_records WHERE user_id = $1 AND created_at >= $2`,
		userID, since.UTC(),
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count requests")
}

func (s *PostgresStore) InsertFeedback(ctx context.Context, ev model.FeedbackEvent) (*model.FeedbackEvent, error) {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO feedback_events
		 (id, user_id, session_id, operation_type, query, offered, chosen, final_input, relevance_score, was_helpful, user_action, context_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ev.ID, ev.UserID, ev.SessionID, ev.OperationType, ev.Query,
		nullableBytes(offeredJSON), nullableBytes(chosenJSON), ev.FinalInput,
		ev.RelevanceScore, ev.WasHelpful, string(ev.UserAction),
		nullableBytes(contextJSON), ev.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert feedback")
	}
	return &ev, nil
}

func (s *PostgresStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.FeedbackEvent, error) {
	query := `SELECT id, user_id, session_id, operation_type, query, offered, chosen, final_input, relevance_score, was_helpful, user_action, context_data, created_at
	          FROM feedback_events WHERE true`
	args := []any{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(` AND user_action = $%d`, argIdx)
		args = append(args, string(filter.Action))
		argIdx++
	}
	if filter.HelpfulOnly {
		query += ` AND was_helpful = true`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	var events []model.FeedbackEvent
	for rows.Next() {
		var ev model.FeedbackEvent
		var offered, chosen, contextData []byte
		var action string
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.SessionID, &ev.OperationType, &ev.Query,
			&offered, &chosen, &ev.FinalInput, &ev.RelevanceScore, &ev.WasHelpful,
			&action, &contextData, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback event")
		}
		ev.UserAction = model.UserAction(action)
		if err := unmarshalFeedback(&ev, string(offered), string(chosen), string(contextData)); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list feedback iterate")
}

func (s *PostgresStore) UpsertCanonical(ctx context.Context, cf model.CanonicalFragrance) (*model.CanonicalFragrance, error) {
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
		return nil, eris.New("postgres: canonical record needs brand and name")
	}

	var descJSON []byte
	if cf.Descriptions != nil {
		b, err := json.Marshal(cf.Descriptions)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal descriptions")
		}
		descJSON = b
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO canonical_fragrances
		 (id, brand_key, name_key, brand_local, brand_roman, name_local, name_roman, concentration, launch_year, family, descriptions, confidence, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (brand_key, name_key) DO UPDATE SET
		   brand_local = $4, name_local = $6, concentration = $8, launch_year = $9,
		   family = $10, descriptions = $11, confidence = $12, updated_at = $14`,
		cf.ID, brandKey, nameKey, cf.BrandLocal, cf.BrandRoman, cf.NameLocal, cf.NameRoman,
		cf.Concentration, cf.LaunchYear, cf.Family, descJSON, cf.Confidence,
		cf.CreatedAt, cf.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert canonical")
	}
	return &cf, nil
}

// canonicalColumns is the insert column list for canonical_fragrances,
// shared by the single and bulk upsert paths.
var canonicalColumns = []string{
	"id", "brand_key", "name_key", "brand_local", "brand_roman",
	"name_local", "name_roman", "concentration", "launch_year", "family",
	"descriptions", "confidence", "created_at", "updated_at",
}

// UpsertCanonicalBatch bulk-upserts catalog records via a temp table and
// COPY. Records without a roman brand/name pair are rejected up front.
func (s *PostgresStore) UpsertCanonicalBatch(ctx context.Context, cfs []model.CanonicalFragrance) (int64, error) {
	if len(cfs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(cfs))
	for _, cf := range cfs {
		brandKey, nameKey := canonicalKeys(cf.BrandRoman, cf.NameRoman)
		if brandKey == "" || nameKey == "" {
			return 0, eris.Errorf("postgres: canonical record %q/%q needs brand and name", cf.BrandRoman, cf.NameRoman)
		}
		if cf.ID == "" {
			cf.ID = uuid.New().String()
		}
		if cf.CreatedAt.IsZero() {
			cf.CreatedAt = now
		}

		var descJSON []byte
		if cf.Descriptions != nil {
			b, err := json.Marshal(cf.Descriptions)
			if err != nil {
				return 0, eris.Wrap(err, "postgres: marshal descriptions")
			}
			descJSON = b
		}

		rows = append(rows, []any{
			cf.ID, brandKey, nameKey, cf.BrandLocal, cf.BrandRoman,
			cf.NameLocal, cf.NameRoman, cf.Concentration, cf.LaunchYear, cf.Family,
			descJSON, cf.Confidence, cf.CreatedAt, now,
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "canonical_fragrances",
		Columns:      canonicalColumns,
		ConflictKeys: []string{"brand_key", "name_key"},
		UpdateCols: []string{
			"brand_local", "name_local", "concentration", "launch_year",
			"family", "descriptions", "confidence", "updated_at",
		},
	}, rows)
}

func (s *PostgresStore) GetCanonical(ctx context.Context, brandRoman, nameRoman string) (*model.CanonicalFragrance, error) {
	brandKey, nameKey := canonicalKeys(brandRoman, nameRoman)

	var cf model.CanonicalFragrance
	var descJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, brand_local, brand_roman, name_local, name_roman, concentration, launch_year, family, descriptions, confidence, created_at, updated_at
		 FROM canonical_fragrances WHERE brand_key = $1 AND name_key = $2`,
		brandKey, nameKey,
	).Scan(&cf.ID, &cf.BrandLocal, &cf.BrandRoman, &cf.NameLocal, &cf.NameRoman,
		&cf.Concentration, &cf.LaunchYear, &cf.Family, &descJSON, &cf.Confidence,
		&cf.CreatedAt, &cf.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get canonical")
	}
	if descJSON != nil {
		if err := json.Unmarshal(descJSON, &cf.Descriptions); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal descriptions")
		}
	}
	return &cf, nil
}

// nullableBytes maps "" to NULL for JSONB columns.
func nullableBytes(s string) any {
	if s == "" {
		return nil
	}
	return []byte(s)
}
