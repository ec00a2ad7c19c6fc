package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vertical-cli/internal/fetcher"
	"github.com/sells-group/vertical-cli/internal/llm"
	"github.com/sells-group/vertical-cli/internal/lookup"
	"github.com/sells-group/vertical-cli/internal/metrics"
	"github.com/sells-group/vertical-cli/internal/model"
	"github.com/sells-group/vertical-cli/internal/resolve"
	"github.com/sells-group/vertical-cli/internal/store"
	"github.com/sells-group/vertical-cli/pkg/anthropic"
)

// resolveFlags are shared by the resolve and run commands.
type resolveFlags struct {
	lookup      string
	lookupSheet string
	data        string
	sheet       string
	offline     bool
	noLLM       bool
	noCache     bool
	limit       int
}

func (f *resolveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.lookup, "lookup", "", "lookup workbook or CSV (default: lookup.path)")
	cmd.Flags().StringVar(&f.lookupSheet, "lookup-sheet", "", "lookup sheet name (default: lookup.sheet)")
	cmd.Flags().StringVar(&f.data, "data", "", "performance export file or folder of exports (default: data.path)")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "performance sheet name (default: data.sheet)")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "use a stub model client (no API key needed)")
	cmd.Flags().BoolVar(&f.noLLM, "no-llm", false, "accept fuzzy matches at the score cutoff and skip the model")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "ignore and do not update the resolution cache")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "max advertisers to resolve (0 = all)")
}

// withDefaults fills unset flags from configuration.
func (f resolveFlags) withDefaults() (resolveFlags, error) {
	if f.lookup == "" {
		f.lookup = cfg.Lookup.Path
	}
	if f.lookupSheet == "" {
		f.lookupSheet = cfg.Lookup.Sheet
	}
	if f.data == "" {
		f.data = cfg.Data.Path
	}
	if f.sheet == "" {
		f.sheet = cfg.Data.Sheet
	}
	if f.lookup == "" {
		return f, eris.New("a lookup file is required (--lookup or VERTICAL_LOOKUP_PATH)")
	}
	if f.data == "" {
		return f, eris.New("performance data is required (--data or VERTICAL_DATA_PATH)")
	}
	if !f.offline && !f.noLLM && cfg.Anthropic.Key == "" {
		return f, eris.New("missing VERTICAL_ANTHROPIC_KEY\n\nSet it or use --offline for stub mode, or --no-llm for fuzzy matching only")
	}
	return f, nil
}

// loadPerformance reads and parses the performance exports.
func loadPerformance(ctx context.Context, path, sheet string) ([]model.PerformanceRow, error) {
	t, err := fetcher.ReadTables(ctx, path, sheet)
	if err != nil {
		return nil, err
	}
	rows, skipped, err := fetcher.ParsePerformance(t, cfg.Data.Columns)
	if err != nil {
		return nil, err
	}
	zap.L().Info("loaded performance data",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
		zap.Int("skipped", skipped),
	)
	return rows, nil
}

// categories returns the configured vocabulary, or the table's verticals.
func categories(table *lookup.Table) ([]string, error) {
	if cfg.Resolve.CategoriesFile != "" {
		return fetcher.LoadCategories(cfg.Resolve.CategoriesFile)
	}
	return table.Categories(), nil
}

// resolver bundles a pipeline with the model service behind it. svc is nil
// when no model is used.
type resolver struct {
	pipeline *resolve.Pipeline
	svc      *llm.Service
}

// addUsage copies the model token counts and cost into stats.
func (r *resolver) addUsage(stats *model.RunStats) {
	if r.svc == nil {
		return
	}
	st := r.svc.Stats()
	stats.InputTokens = st.Usage.InputTokens
	stats.OutputTokens = st.Usage.OutputTokens
	stats.CostUSD = st.CostUSD
}

func (r *resolver) logUsage(phase string) {
	if r.svc != nil {
		r.svc.LogUsage(phase)
	}
}

// newResolver wires the pipeline for f. cache may be nil.
func newResolver(table *lookup.Table, f resolveFlags, cache resolve.Cache) (*resolver, error) {
	opts := resolve.Options{
		TopN:           cfg.Resolve.TopN,
		ScoreCutoff:    cfg.Resolve.ScoreCutoff,
		CandidateFloor: cfg.Resolve.CandidateFloor,
		Concurrency:    cfg.Resolve.Concurrency,
	}
	if cache != nil && !f.noCache {
		opts.Cache = cache
	}

	if f.noLLM {
		p, err := resolve.New(table, nil, nil, opts)
		if err != nil {
			return nil, err
		}
		return &resolver{pipeline: p}, nil
	}

	vocab, err := categories(table)
	if err != nil {
		return nil, err
	}

	var client anthropic.Client
	if f.offline {
		client = &llm.StubClient{AcceptScore: cfg.Resolve.ScoreCutoff}
	} else {
		client = anthropic.NewClient(cfg.Anthropic.Key)
	}
	svc := llm.NewService(client, llm.Config{
		Model:           cfg.Anthropic.Model,
		MaxTokens:       int64(cfg.Anthropic.MaxTokens),
		Timeout:         cfg.Anthropic.Timeout(),
		RatePerSec:      cfg.Anthropic.RatePerSec,
		Burst:           cfg.Anthropic.Burst,
		BreakerFailures: cfg.Resolve.BreakerFailures,
		BreakerReset:    cfg.Resolve.BreakerReset(),
	})
	cat, err := llm.NewCategorizer(svc, vocab)
	if err != nil {
		return nil, err
	}

	salt := cfg.Anthropic.Model + "\x1f" + strings.Join(vocab, "\x1f")
	if f.offline {
		salt += "\x1foffline"
	}
	opts.CacheSalt = salt

	p, err := resolve.New(table, llm.NewDisambiguator(svc), cat, opts)
	if err != nil {
		return nil, err
	}
	return &resolver{pipeline: p, svc: svc}, nil
}

// openCache opens the store for use as a resolution cache. Failure is not
// fatal; resolution proceeds uncached.
func openCache(ctx context.Context) store.Store {
	st, err := store.Open(ctx, storeConfig())
	if err != nil {
		zap.L().Warn("resolution cache unavailable", zap.Error(err))
		return nil
	}
	return st
}

func storeConfig() store.Config {
	return store.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
		MaxConns:    cfg.Store.MaxConns,
		MinConns:    cfg.Store.MinConns,
	}
}

// limitNames truncates names to limit when limit is positive.
func limitNames(names []string, limit int) []string {
	if limit > 0 && limit < len(names) {
		return names[:limit]
	}
	return names
}

// metricsOptions builds aggregation options from config and overrides.
func metricsOptions(groupBy []string, costMetric string) (metrics.Options, error) {
	if len(groupBy) == 0 {
		groupBy = cfg.Metrics.GroupBy
	}
	if costMetric == "" {
		costMetric = cfg.Metrics.CostMetric
	}
	dims, err := metrics.ParseDimensions(groupBy)
	if err != nil {
		return metrics.Options{}, err
	}
	var cm model.CostMetric
	switch strings.ToLower(costMetric) {
	case "cpa":
		cm = model.CostPerAcquisition
	case "cpc":
		cm = model.CostPerClick
	default:
		return metrics.Options{}, eris.Errorf("unknown cost metric %q (want cpa or cpc)", costMetric)
	}
	return metrics.Options{
		GroupBy: dims,
		Policy:  metrics.Policy{CostMetric: cm, MinImpressions: cfg.Metrics.MinImpressions},
	}, nil
}

func metricsLayout(opts metrics.Options) fetcher.MetricsLayout {
	layout := fetcher.MetricsLayout{CostMetric: opts.Policy.CostMetric}
	for _, d := range opts.GroupBy {
		if d == metrics.DimAdvertiser {
			layout.PerAdvertiser = true
		}
	}
	return layout
}

func logTally(recs []model.Resolution, cacheHits int) {
	t := model.Tally(recs)
	zap.L().Info("resolution complete",
		zap.Int("advertisers", t.Advertisers),
		zap.Int("matched", t.Matched),
		zap.Int("ai_categorized", t.AICategorized),
		zap.Int("uncategorized", t.Uncategorized),
		zap.Int("cache_hits", cacheHits),
	)
}
