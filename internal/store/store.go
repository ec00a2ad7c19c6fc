// Package store persists resolutions, runs and metric tables. The
// resolution methods make a Store usable as the resolve pipeline's cache.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vertical-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the vertical pipeline.
type Store interface {
	// Resolutions, keyed by the pipeline's cache key
	GetResolutions(ctx context.Context, key string, names []string) (map[string]model.Resolution, error)
	SaveResolutions(ctx context.Context, key string, recs []model.Resolution) error

	// Runs
	CreateRun(ctx context.Context, lookupKey, source string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, stats model.RunStats) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Metrics
	SaveMetrics(ctx context.Context, runID string, rows []model.MetricRow) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a Store.
type Config struct {
	Driver      string `mapstructure:"driver"`
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
}

// DefaultSQLitePath is used when the sqlite driver has no database URL.
const DefaultSQLitePath = "vertical.db"

// Open connects the configured driver and applies migrations.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

var metricColumns = []string{
	"run_id", "vertical", "brand", "data_id", "advertiser",
	"clicks", "impressions", "cost", "conversions",
	"ctr", "cost_ratio", "ctr_z", "cost_z", "composite", "normalized_score",
}

func metricValues(runID string, r model.MetricRow) []any {
	return []any{
		runID, r.Vertical, r.Brand, r.DataID, r.Advertiser,
		r.Clicks, r.Impressions, r.Cost, r.Conversions,
		r.CTR, r.CostRatio, r.CTRZ, r.CostZ, r.Composite, r.NormalizedScore,
	}
}

var resolutionColumns = []string{
	"cache_key", "advertiser", "vertical", "matched_alias", "matched_column",
	"score", "technique", "reason", "resolved_at",
}

// aliasValue maps a missing alias to NULL.
func aliasValue(r model.Resolution) any {
	if r.MatchedAlias == nil {
		return nil
	}
	return *r.MatchedAlias
}

// resolutionFromRow rebuilds a Resolution; an empty alias means none.
func resolutionFromRow(name, vertical, alias, column string, score int, technique, reason string) model.Resolution {
	res := model.Resolution{
		Advertiser:    name,
		Vertical:      vertical,
		MatchedColumn: column,
		Score:         score,
		Technique:     model.Technique(technique),
		Reason:        reason,
	}
	if alias != "" {
		res.MatchedAlias = &alias
	}
	return res
}

func decodeStats(raw []byte) (*model.RunStats, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var stats *model.RunStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal run stats")
	}
	return stats, nil
}
