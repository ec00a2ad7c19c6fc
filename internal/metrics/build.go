package metrics

import (
	"go.uber.org/zap"

	"github.com/sells-group/vertical-cli/internal/model"
)

// Options configures Build.
type Options struct {
	GroupBy []Dimension
	Policy  Policy
}

// Report is the output of Build.
type Report struct {
	Rows []model.MetricRow
	// Groups is the number of aggregated rows before filtering.
	Groups int
	// Dropped is the number of aggregated rows filtered out by Derive.
	Dropped int
	// Unresolved is the number of advertisers with no resolution.
	Unresolved int
}

// Build joins, aggregates, derives and scores in one pass.
func Build(perf []model.PerformanceRow, recs []model.Resolution, opts Options) Report {
	dims := opts.GroupBy
	if len(dims) == 0 {
		dims = DefaultDimensions
	}

	joined, unresolved := Join(perf, recs)
	groups := Aggregate(joined, dims...)
	rows, dropped := Derive(groups, opts.Policy)
	Score(rows)

	zap.L().Info("metrics: built",
		zap.Int("input_rows", len(perf)),
		zap.Int("groups", len(groups)),
		zap.Int("kept", len(rows)),
		zap.Int("dropped", dropped),
		zap.Int("unresolved_advertisers", unresolved),
	)

	return Report{Rows: rows, Groups: len(groups), Dropped: dropped, Unresolved: unresolved}
}
