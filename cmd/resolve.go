package main

import (
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/vertical-cli/internal/fetcher"
	"github.com/sells-group/vertical-cli/internal/lookup"
	"github.com/sells-group/vertical-cli/internal/resolve"
)

var (
	resolveOpts resolveFlags
	resolveOut  string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Assign a vertical to every advertiser in the performance data",
	Long: `Reads the lookup table and performance exports, resolves each distinct
advertiser to a vertical and writes the resolution table as CSV.

Examples:
  # Fuzzy matching plus Claude disambiguation and categorization
  vertical-cli resolve --lookup lookup.xlsx --data exports/

  # Offline stub model, first 20 advertisers
  vertical-cli resolve --lookup lookup.xlsx --data data.xlsx --offline --limit 20

  # Deterministic fuzzy matching only
  vertical-cli resolve --lookup lookup.xlsx --data data.xlsx --no-llm`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("resolve"); err != nil {
			return err
		}
		f, err := resolveOpts.withDefaults()
		if err != nil {
			return err
		}

		table, err := lookup.Load(ctx, f.lookup, f.lookupSheet, cfg.Lookup.AliasColumns, cfg.Lookup.VerticalColumn)
		if err != nil {
			return eris.Wrap(err, "resolve: load lookup")
		}
		perf, err := loadPerformance(ctx, f.data, f.sheet)
		if err != nil {
			return eris.Wrap(err, "resolve: load data")
		}

		var cache resolve.Cache
		if !f.noCache {
			if st := openCache(ctx); st != nil {
				defer st.Close() //nolint:errcheck
				cache = st
			}
		}

		r, err := newResolver(table, f, cache)
		if err != nil {
			return eris.Wrap(err, "resolve: init")
		}

		names := limitNames(fetcher.DistinctAdvertisers(perf), f.limit)
		recs := r.pipeline.ResolveBatch(ctx, names)
		logTally(recs, r.pipeline.CacheHits())
		r.logUsage("resolve")

		if err := fetcher.WriteFile(resolveOut, func(w io.Writer) error {
			return fetcher.WriteResolutions(w, recs)
		}); err != nil {
			return eris.Wrap(err, "resolve: write output")
		}
		return eris.Wrap(ctx.Err(), "resolve: interrupted")
	},
}

func init() {
	resolveOpts.register(resolveCmd)
	resolveCmd.Flags().StringVar(&resolveOut, "out", "vertical_mapping.csv", "resolution table output path")
	rootCmd.AddCommand(resolveCmd)
}
