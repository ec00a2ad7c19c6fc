package main

import (
	"context"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vertical-cli/internal/fetcher"
	"github.com/sells-group/vertical-cli/internal/lookup"
	"github.com/sells-group/vertical-cli/internal/metrics"
	"github.com/sells-group/vertical-cli/internal/model"
	"github.com/sells-group/vertical-cli/internal/store"
)

var (
	runOpts       resolveFlags
	runOutDir     string
	runGroupBy    []string
	runCostMetric string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve, aggregate and record a run",
	Long: `Runs resolve and aggregate back to back, writes vertical_mapping.csv and
vertical_metrics.csv to --out-dir, and records the run and its metric rows
in the store.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("run"); err != nil {
			return err
		}
		f, err := runOpts.withDefaults()
		if err != nil {
			return err
		}
		mopts, err := metricsOptions(runGroupBy, runCostMetric)
		if err != nil {
			return eris.Wrap(err, "run: options")
		}

		table, err := lookup.Load(ctx, f.lookup, f.lookupSheet, cfg.Lookup.AliasColumns, cfg.Lookup.VerticalColumn)
		if err != nil {
			return eris.Wrap(err, "run: load lookup")
		}
		perf, err := loadPerformance(ctx, f.data, f.sheet)
		if err != nil {
			return eris.Wrap(err, "run: load data")
		}

		st, err := store.Open(ctx, storeConfig())
		if err != nil {
			return eris.Wrap(err, "run: open store")
		}
		defer st.Close() //nolint:errcheck

		r, err := newResolver(table, f, st)
		if err != nil {
			return eris.Wrap(err, "run: init")
		}
		return executeRun(ctx, st, r, f, perf, mopts)
	},
}

// executeRun records a run around resolution and aggregation. Any failure
// after the run is created marks it failed.
func executeRun(ctx context.Context, st store.Store, r *resolver, f resolveFlags, perf []model.PerformanceRow, mopts metrics.Options) (err error) {
	run, err := st.CreateRun(ctx, r.pipeline.Key(), f.data)
	if err != nil {
		return eris.Wrap(err, "run: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	defer func() {
		if err == nil {
			return
		}
		if uerr := st.UpdateRunStatus(context.WithoutCancel(ctx), run.ID, model.RunStatusFailed); uerr != nil {
			log.Warn("run: mark failed", zap.Error(uerr))
		}
	}()

	names := limitNames(fetcher.DistinctAdvertisers(perf), f.limit)
	recs := r.pipeline.ResolveBatch(ctx, names)
	logTally(recs, r.pipeline.CacheHits())
	r.logUsage("resolve")
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "run: interrupted")
	}

	if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusAggregating); err != nil {
		return err
	}
	report := metrics.Build(perf, recs, mopts)

	mappingPath := filepath.Join(runOutDir, "vertical_mapping.csv")
	if err := fetcher.WriteFile(mappingPath, func(w io.Writer) error {
		return fetcher.WriteResolutions(w, recs)
	}); err != nil {
		return eris.Wrap(err, "run: write mapping")
	}
	metricsPath := filepath.Join(runOutDir, "vertical_metrics.csv")
	if err := fetcher.WriteFile(metricsPath, func(w io.Writer) error {
		return fetcher.WriteMetrics(w, report.Rows, metricsLayout(mopts))
	}); err != nil {
		return eris.Wrap(err, "run: write metrics")
	}

	if _, err := st.SaveMetrics(ctx, run.ID, report.Rows); err != nil {
		return err
	}

	stats := model.Tally(recs)
	stats.CacheHits = r.pipeline.CacheHits()
	stats.MetricRows = len(report.Rows)
	stats.DroppedRows = report.Dropped
	r.addUsage(&stats)
	if err := st.CompleteRun(ctx, run.ID, stats); err != nil {
		return err
	}

	log.Info("run complete",
		zap.String("mapping", mappingPath),
		zap.String("metrics", metricsPath),
		zap.Int("metric_rows", stats.MetricRows),
		zap.Int64("input_tokens", stats.InputTokens),
		zap.Int64("output_tokens", stats.OutputTokens),
		zap.Float64("cost_usd", stats.CostUSD),
	)
	return nil
}

func init() {
	runOpts.register(runCmd)
	runCmd.Flags().StringVar(&runOutDir, "out-dir", ".", "directory for the mapping and metrics CSVs")
	runCmd.Flags().StringSliceVar(&runGroupBy, "group-by", nil, "grouping dimensions (default: metrics.group_by)")
	runCmd.Flags().StringVar(&runCostMetric, "cost-metric", "", "cpa or cpc (default: metrics.cost_metric)")
	rootCmd.AddCommand(runCmd)
}
