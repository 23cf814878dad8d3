package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/regimed/regimed/internal/domain/macro"
)

// HTTPConfig holds the HTTP source settings.
type HTTPConfig struct {
	BaseURL     string
	Timeout     time.Duration // transport-level, default 10s
	MaxRetries  uint64        // bounded retry before caching kicks in, default 2
	BreakerHold time.Duration // open-state hold, default 2m
}

// DefaultHTTPConfig returns the tuned production values.
func DefaultHTTPConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:     baseURL,
		Timeout:     10 * time.Second,
		MaxRetries:  2,
		BreakerHold: 2 * time.Minute,
	}
}

// HTTPSource reads the three inputs from JSON endpoints on a collaborator
// service. Each fetch retries with exponential backoff inside the caller's
// deadline and shares one circuit breaker so a dead collaborator stops
// costing the cycle its timeout budget.
type HTTPSource struct {
	cfg     HTTPConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPSource builds a source against cfg.BaseURL.
func NewHTTPSource(cfg HTTPConfig) *HTTPSource {
	return &HTTPSource{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "feed",
			Timeout: cfg.BreakerHold,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// PatternCounts fetches the scanners' current long/short counts.
func (s *HTTPSource) PatternCounts(ctx context.Context) (PatternCounts, error) {
	var out PatternCounts
	err := s.getJSON(ctx, "/patterns/counts", &out)
	return out, err
}

// IndexQuotes fetches the benchmark index quotes with moving averages.
func (s *HTTPSource) IndexQuotes(ctx context.Context) ([]macro.Quote, error) {
	var out struct {
		Quotes []macro.Quote `json:"quotes"`
	}
	if err := s.getJSON(ctx, "/indices/quotes", &out); err != nil {
		return nil, err
	}
	return out.Quotes, nil
}

// BreadthPct fetches the independent bullish-breadth percentage.
func (s *HTTPSource) BreadthPct(ctx context.Context) (float64, error) {
	var out struct {
		BullishBreadthPct float64 `json:"bullish_breadth_pct"`
	}
	if err := s.getJSON(ctx, "/breadth", &out); err != nil {
		return 0, err
	}
	return out.BullishBreadthPct, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, path string, v interface{}) error {
	op := func() error {
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, s.doGet(ctx, path, v)
		})
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.MaxRetries), ctx)
	return backoff.Retry(op, policy)
}

func (s *HTTPSource) doGet(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
