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

	"github.com/sells-group/vertical-cli/internal/model"
)

// sqliteChunk bounds the number of names bound into one IN clause.
const sqliteChunk = 500

// SQLiteStore implements Store using modernc.org/sqlite.
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS resolutions (
	cache_key      TEXT NOT NULL,
	advertiser     TEXT NOT NULL,
	vertical       TEXT NOT NULL,
	matched_alias  TEXT,
	matched_column TEXT NOT NULL DEFAULT '',
	score          INTEGER NOT NULL DEFAULT 0,
	technique      TEXT NOT NULL,
	reason         TEXT NOT NULL DEFAULT '',
	resolved_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (cache_key, advertiser)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	lookup_key TEXT NOT NULL,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL,
	stats      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS metric_rows (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	vertical         TEXT NOT NULL,
	brand            TEXT NOT NULL,
	data_id          TEXT NOT NULL,
	advertiser       TEXT NOT NULL,
	clicks           REAL NOT NULL,
	impressions      REAL NOT NULL,
	cost             REAL NOT NULL,
	conversions      REAL NOT NULL,
	ctr              REAL NOT NULL,
	cost_ratio       REAL NOT NULL,
	ctr_z            REAL NOT NULL,
	cost_z           REAL NOT NULL,
	composite        REAL NOT NULL,
	normalized_score REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_metric_rows_run_id ON metric_rows(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetResolutions(ctx context.Context, key string, names []string) (map[string]model.Resolution, error) {
	out := make(map[string]model.Resolution, len(names))
	for start := 0; start < len(names); start += sqliteChunk {
		end := min(start+sqliteChunk, len(names))
		chunk := names[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, key)
		for _, n := range chunk {
			args = append(args, n)
		}
		query := `SELECT advertiser, vertical, COALESCE(matched_alias, ''), matched_column, score, technique, reason
			FROM resolutions WHERE cache_key = ? AND advertiser IN (?` + strings.Repeat(", ?", len(chunk)-1) + `)`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: get resolutions")
		}
		for rows.Next() {
			var name, vertical, alias, column, technique, reason string
			var score int
			if err := rows.Scan(&name, &vertical, &alias, &column, &score, &technique, &reason); err != nil {
				rows.Close() //nolint:errcheck
				return nil, eris.Wrap(err, "sqlite: scan resolution")
			}
			out[name] = resolutionFromRow(name, vertical, alias, column, score, technique, reason)
		}
		err = rows.Err()
		rows.Close() //nolint:errcheck
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: get resolutions iterate")
		}
	}
	return out, nil
}

func (s *SQLiteStore) SaveResolutions(ctx context.Context, key string, recs []model.Resolution) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save resolutions")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO resolutions
		(`+strings.Join(resolutionColumns, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_key, advertiser) DO UPDATE SET
			vertical = excluded.vertical,
			matched_alias = excluded.matched_alias,
			matched_column = excluded.matched_column,
			score = excluded.score,
			technique = excluded.technique,
			reason = excluded.reason,
			resolved_at = excluded.resolved_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save resolutions")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			key, r.Advertiser, r.Vertical, aliasValue(r), r.MatchedColumn,
			r.Score, string(r.Technique), r.Reason, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: save resolution %q", r.Advertiser)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit resolutions")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, lookupKey, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, lookup_key, source, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, lookupKey, source, string(model.RunStatusResolving), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET stats = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(statsJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, lookup_key, source, status, stats, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, lookup_key, source, status, stats, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
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
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveMetrics(ctx context.Context, runID string, rows []model.MetricRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save metrics")
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(metricColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metric_rows (`+strings.Join(metricColumns, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare save metrics")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, metricValues(runID, r)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: save metric row for run %s", runID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit metrics")
	}
	return int64(len(rows)), nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var stats sql.NullString

	err := row.Scan(&r.ID, &r.LookupKey, &r.Source, &r.Status, &stats, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if stats.Valid {
		if r.Stats, err = decodeStats([]byte(stats.String)); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

var _ Store = (*SQLiteStore)(nil)
