// Package config loads the CLI configuration with viper and bootstraps the
// global zap logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/vertical-cli/internal/fetcher"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Resolve   ResolveConfig   `yaml:"resolve" mapstructure:"resolve"`
	Lookup    LookupConfig    `yaml:"lookup" mapstructure:"lookup"`
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings for the LLM steps.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
}

// Timeout returns the per-call timeout.
func (c AnthropicConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ResolveConfig tunes the resolution pipeline.
type ResolveConfig struct {
	TopN             int    `yaml:"top_n" mapstructure:"top_n"`
	ScoreCutoff      int    `yaml:"score_cutoff" mapstructure:"score_cutoff"`
	CandidateFloor   int    `yaml:"candidate_floor" mapstructure:"candidate_floor"`
	Concurrency      int    `yaml:"concurrency" mapstructure:"concurrency"`
	CategoriesFile   string `yaml:"categories_file" mapstructure:"categories_file"`
	BreakerFailures  int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// BreakerReset returns how long an open breaker waits before probing.
func (c ResolveConfig) BreakerReset() time.Duration {
	return time.Duration(c.BreakerResetSecs) * time.Second
}

// LookupConfig describes the reference lookup workbook.
type LookupConfig struct {
	Path           string   `yaml:"path" mapstructure:"path"`
	Sheet          string   `yaml:"sheet" mapstructure:"sheet"`
	AliasColumns   []string `yaml:"alias_columns" mapstructure:"alias_columns"`
	VerticalColumn string   `yaml:"vertical_column" mapstructure:"vertical_column"`
}

// DataConfig describes the performance exports.
type DataConfig struct {
	Path    string                     `yaml:"path" mapstructure:"path"`
	Sheet   string                     `yaml:"sheet" mapstructure:"sheet"`
	Columns fetcher.PerformanceColumns `yaml:"columns" mapstructure:"columns"`
}

// MetricsConfig configures aggregation and scoring.
type MetricsConfig struct {
	GroupBy        []string `yaml:"group_by" mapstructure:"group_by"`
	CostMetric     string   `yaml:"cost_metric" mapstructure:"cost_metric"`
	MinImpressions float64  `yaml:"min_impressions" mapstructure:"min_impressions"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VERTICAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 50)
	v.SetDefault("anthropic.timeout_secs", 30)
	v.SetDefault("anthropic.rate_per_sec", 5.0)
	v.SetDefault("anthropic.burst", 5)
	v.SetDefault("resolve.top_n", 10)
	v.SetDefault("resolve.score_cutoff", 90)
	v.SetDefault("resolve.candidate_floor", 60)
	v.SetDefault("resolve.concurrency", 8)
	v.SetDefault("resolve.categories_file", "")
	v.SetDefault("resolve.breaker_failures", 5)
	v.SetDefault("resolve.breaker_reset_secs", 30)
	v.SetDefault("lookup.path", "")
	v.SetDefault("lookup.sheet", "Master Lookup")
	v.SetDefault("lookup.alias_columns", []string{"Company Name", "Quickbooks Customer Name", "Client Group"})
	v.SetDefault("lookup.vertical_column", "Client Industry Value")
	v.SetDefault("data.path", "")
	v.SetDefault("data.sheet", "Data Element_data")
	cols := fetcher.DefaultPerformanceColumns
	v.SetDefault("data.columns.advertiser", cols.Advertiser)
	v.SetDefault("data.columns.brand", cols.Brand)
	v.SetDefault("data.columns.data_id", cols.DataID)
	v.SetDefault("data.columns.clicks", cols.Clicks)
	v.SetDefault("data.columns.impressions", cols.Impressions)
	v.SetDefault("data.columns.cost", cols.Cost)
	v.SetDefault("data.columns.conversions", cols.Conversions)
	v.SetDefault("metrics.group_by", []string{"vertical", "brand", "data_id"})
	v.SetDefault("metrics.cost_metric", "cpa")
	v.SetDefault("metrics.min_impressions", 1000.0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "vertical.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "resolve", "aggregate" and "run".
func (c *Config) Validate(mode string) error {
	var problems []string
	switch mode {
	case "resolve":
		problems = c.resolveProblems()
	case "aggregate":
		problems = c.metricsProblems()
	case "run":
		problems = append(c.resolveProblems(), c.metricsProblems()...)
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if len(problems) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) resolveProblems() []string {
	var problems []string
	if len(c.Lookup.AliasColumns) == 0 {
		problems = append(problems, "lookup.alias_columns is required")
	}
	if c.Lookup.VerticalColumn == "" {
		problems = append(problems, "lookup.vertical_column is required")
	}
	if c.Resolve.TopN <= 0 {
		problems = append(problems, "resolve.top_n must be > 0")
	}
	if c.Resolve.ScoreCutoff < 0 || c.Resolve.ScoreCutoff > 100 {
		problems = append(problems, "resolve.score_cutoff must be between 0 and 100")
	}
	if c.Resolve.CandidateFloor > 100 {
		problems = append(problems, "resolve.candidate_floor must be <= 100")
	}
	if c.Resolve.Concurrency < 1 || c.Resolve.Concurrency > 64 {
		problems = append(problems, "resolve.concurrency must be between 1 and 64")
	}
	return problems
}

func (c *Config) metricsProblems() []string {
	var problems []string
	switch strings.ToLower(c.Metrics.CostMetric) {
	case "cpa", "cpc":
	default:
		problems = append(problems, "metrics.cost_metric must be cpa or cpc")
	}
	if c.Metrics.MinImpressions < 0 {
		problems = append(problems, "metrics.min_impressions must be >= 0")
	}
	if len(c.Metrics.GroupBy) == 0 {
		problems = append(problems, "metrics.group_by is required")
	}
	return problems
}

// InitLogger replaces the global zap logger according to cfg.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
