package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/vertical-cli/internal/resilience"
	"github.com/sells-group/vertical-cli/pkg/anthropic"
)

// Config controls every model call made through a Service.
type Config struct {
	Model     string
	MaxTokens int64
	// Timeout bounds a single request. Default: 30s.
	Timeout time.Duration
	// RatePerSec caps request starts; 0 means unlimited.
	RatePerSec float64
	Burst      int
	// BreakerFailures consecutive failures open the circuit for
	// BreakerReset.
	BreakerFailures int
	BreakerReset    time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Model:           "claude-haiku-4-5-20251001",
		MaxTokens:       50,
		Timeout:         30 * time.Second,
		RatePerSec:      5,
		Burst:           5,
		BreakerFailures: 5,
		BreakerReset:    30 * time.Second,
	}
}

// Service sends single-shot, temperature-0 requests to the model. It is
// safe for concurrent use.
type Service struct {
	client  anthropic.Client
	cfg     Config
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker

	mu    sync.Mutex
	usage anthropic.TokenUsage
	calls int
	fails int
}

// NewService wraps client. Zero fields of cfg take DefaultConfig values.
func NewService(client anthropic.Client, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Service{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		breaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{
			Name:             "anthropic",
			FailureThreshold: cfg.BreakerFailures,
			ResetTimeout:     cfg.BreakerReset,
			// Only outages count; a rejected request concerns one name.
			ShouldTrip: resilience.IsTransient,
		}),
	}
}

// complete sends one request and returns the trimmed response text.
// Waiting for the rate limiter is bounded by ctx; the request itself is
// bounded by the configured timeout.
func (s *Service) complete(ctx context.Context, system []anthropic.SystemBlock, prompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "llm: rate limiter")
	}

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}

	resp, err := resilience.Do(ctx, s.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		resp, err := s.client.CreateMessage(callCtx, req)
		if err == nil && resp == nil {
			err = eris.New("llm: empty response")
		}
		return resp, err
	})

	s.mu.Lock()
	s.calls++
	if err != nil {
		s.fails++
	} else {
		s.usage.Add(resp.Usage)
	}
	s.mu.Unlock()

	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

// Stats is a snapshot of a Service's counters.
type Stats struct {
	Calls    int
	Failures int
	Usage    anthropic.TokenUsage
	CostUSD  float64
}

// Stats returns the calls made so far and their token usage.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Calls:    s.calls,
		Failures: s.fails,
		Usage:    s.usage,
		CostUSD:  s.usage.EstimateCost(s.cfg.Model),
	}
}

// LogUsage logs accumulated token usage and estimated cost.
func (s *Service) LogUsage(phase string) {
	st := s.Stats()
	st.Usage.LogCost(s.cfg.Model, phase)
}
