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

	"github.com/sells-group/vertical-cli/internal/db"
	"github.com/sells-group/vertical-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS resolutions (
	cache_key      TEXT NOT NULL,
	advertiser     TEXT NOT NULL,
	vertical       TEXT NOT NULL,
	matched_alias  TEXT,
	matched_column TEXT NOT NULL DEFAULT '',
	score          INTEGER NOT NULL DEFAULT 0,
	technique      TEXT NOT NULL,
	reason         TEXT NOT NULL DEFAULT '',
	resolved_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (cache_key, advertiser)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lookup_key TEXT NOT NULL,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL,
	stats      JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS metric_rows (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	vertical         TEXT NOT NULL,
	brand            TEXT NOT NULL,
	data_id          TEXT NOT NULL,
	advertiser       TEXT NOT NULL,
	clicks           DOUBLE PRECISION NOT NULL,
	impressions      DOUBLE PRECISION NOT NULL,
	cost             DOUBLE PRECISION NOT NULL,
	conversions      DOUBLE PRECISION NOT NULL,
	ctr              DOUBLE PRECISION NOT NULL,
	cost_ratio       DOUBLE PRECISION NOT NULL,
	ctr_z            DOUBLE PRECISION NOT NULL,
	cost_z           DOUBLE PRECISION NOT NULL,
	composite        DOUBLE PRECISION NOT NULL,
	normalized_score DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_metric_rows_run_id ON metric_rows(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
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

func (s *PostgresStore) GetResolutions(ctx context.Context, key string, names []string) (map[string]model.Resolution, error) {
	out := make(map[string]model.Resolution, len(names))
	if len(names) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT advertiser, vertical, COALESCE(matched_alias, ''), matched_column, score, technique, reason
		 FROM resolutions WHERE cache_key = $1 AND advertiser = ANY($2)`,
		key, names,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get resolutions")
	}
	defer rows.Close()

	for rows.Next() {
		var name, vertical, alias, column, technique, reason string
		var score int
		if err := rows.Scan(&name, &vertical, &alias, &column, &score, &technique, &reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan resolution")
		}
		out[name] = resolutionFromRow(name, vertical, alias, column, score, technique, reason)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get resolutions iterate")
}

// SaveResolutions upserts through a COPY-loaded temp table.
func (s *PostgresStore) SaveResolutions(ctx context.Context, key string, recs []model.Resolution) error {
	now := time.Now().UTC()
	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = []any{
			key, r.Advertiser, r.Vertical, aliasValue(r), r.MatchedColumn,
			r.Score, string(r.Technique), r.Reason, now,
		}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "resolutions",
		Columns:      resolutionColumns,
		ConflictKeys: []string{"cache_key", "advertiser"},
	}, rows)
	return eris.Wrap(err, "postgres: save resolutions")
}

func (s *PostgresStore) CreateRun(ctx context.Context, lookupKey, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, lookup_key, source, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, lookupKey, source, string(model.RunStatusResolving), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		LookupKey: lookupKey,
		Source:    source,
		Status:    model.RunStatusResolving,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET stats = $1, status = $2, updated_at = $3 WHERE id = $4`,
		statsJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, lookup_key, source, status, stats, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: get run %s: run not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, lookup_key, source, status, stats, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
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
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveMetrics bulk-loads rows with COPY.
func (s *PostgresStore) SaveMetrics(ctx context.Context, runID string, rows []model.MetricRow) (int64, error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = metricValues(runID, r)
	}
	n, err := db.CopyFrom(ctx, s.pool, "metric_rows", metricColumns, values)
	return n, eris.Wrapf(err, "postgres: save metrics for run %s", runID)
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var stats []byte
	if err := row.Scan(&r.ID, &r.LookupKey, &r.Source, &status, &stats, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	st, err := decodeStats(stats)
	if err != nil {
		return nil, err
	}
	r.Stats = st
	return &r, nil
}

var _ Store = (*PostgresStore)(nil)
