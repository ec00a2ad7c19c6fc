package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/vertical-cli/internal/fetcher"
	"github.com/sells-group/vertical-cli/internal/metrics"
)

var (
	aggregateData       string
	aggregateSheet      string
	aggregateMapping    string
	aggregateOut        string
	aggregateGroupBy    []string
	aggregateCostMetric string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate and score performance per vertical",
	Long: `Joins a resolution table written by "resolve" onto the performance
exports, sums each group, derives CTR and CPA (or CPC) and scores every
group from 1 to 100 relative to the batch.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("aggregate"); err != nil {
			return err
		}
		data := aggregateData
		if data == "" {
			data = cfg.Data.Path
		}
		if data == "" {
			return eris.New("performance data is required (--data or VERTICAL_DATA_PATH)")
		}
		sheet := aggregateSheet
		if sheet == "" {
			sheet = cfg.Data.Sheet
		}

		opts, err := metricsOptions(aggregateGroupBy, aggregateCostMetric)
		if err != nil {
			return eris.Wrap(err, "aggregate: options")
		}

		perf, err := loadPerformance(ctx, data, sheet)
		if err != nil {
			return eris.Wrap(err, "aggregate: load data")
		}

		f, err := os.Open(aggregateMapping)
		if err != nil {
			return eris.Wrap(err, "aggregate: open mapping")
		}
		recs, err := fetcher.ReadResolutions(f)
		_ = f.Close()
		if err != nil {
			return eris.Wrapf(err, "aggregate: read mapping %s", aggregateMapping)
		}

		report := metrics.Build(perf, recs, opts)
		return eris.Wrap(fetcher.WriteFile(aggregateOut, func(w io.Writer) error {
			return fetcher.WriteMetrics(w, report.Rows, metricsLayout(opts))
		}), "aggregate: write output")
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&aggregateData, "data", "", "performance export file or folder (default: data.path)")
	aggregateCmd.Flags().StringVar(&aggregateSheet, "sheet", "", "performance sheet name (default: data.sheet)")
	aggregateCmd.Flags().StringVar(&aggregateMapping, "mapping", "vertical_mapping.csv", "resolution table written by resolve")
	aggregateCmd.Flags().StringVar(&aggregateOut, "out", "vertical_metrics.csv", "metrics table output path")
	aggregateCmd.Flags().StringSliceVar(&aggregateGroupBy, "group-by", nil, "grouping dimensions: vertical, brand, data_id, advertiser (default: metrics.group_by)")
	aggregateCmd.Flags().StringVar(&aggregateCostMetric, "cost-metric", "", "cpa or cpc (default: metrics.cost_metric)")
	rootCmd.AddCommand(aggregateCmd)
}
