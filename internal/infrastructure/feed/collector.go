package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/regimed/regimed/internal/domain/macro"
)

// CollectorConfig holds the per-source call budgets.
type CollectorConfig struct {
	CallTimeout time.Duration // per-source budget, default 5s
	RatePerSec  float64       // outbound request budget, default 5
	RateBurst   int           // default 5
}

// DefaultCollectorConfig returns the tuned production values.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		CallTimeout: 5 * time.Second,
		RatePerSec:  5,
		RateBurst:   5,
	}
}

// Collector fetches all sources for a cycle, substituting the last valid
// cached reading when a source fails. Single-threaded use only, matching
// the pipeline's non-reentrant cycle.
type Collector struct {
	src     Source
	cfg     CollectorConfig
	limiter *rate.Limiter

	cachedCounts  *PatternCounts
	cachedQuotes  []macro.Quote
	cachedBreadth *float64
}

// NewCollector builds a collector over src.
func NewCollector(src Source, cfg CollectorConfig) *Collector {
	return &Collector{
		src:     src,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst),
	}
}

// Collect gathers one cycle's observations. It never returns an error:
// a failed source degrades to its cached reading, and a source with no
// cache yet is reported in Missing for the pipeline to re-weight around.
func (c *Collector) Collect(ctx context.Context) Observations {
	obs := Observations{Timestamp: time.Now().UTC()}

	if counts, err := c.fetchCounts(ctx); err == nil {
		c.cachedCounts = &counts
		obs.Counts = counts
	} else if c.cachedCounts != nil {
		log.Warn().Err(err).Msg("pattern counts unavailable, using cached reading")
		obs.Counts = *c.cachedCounts
		obs.Degraded = append(obs.Degraded, "pattern_counts")
	} else {
		log.Warn().Err(err).Msg("pattern counts unavailable, no cache yet")
		obs.Missing = append(obs.Missing, "pattern_counts")
	}

	if quotes, err := c.fetchQuotes(ctx); err == nil && len(quotes) > 0 {
		c.cachedQuotes = quotes
		obs.Quotes = quotes
	} else if c.cachedQuotes != nil {
		log.Warn().Err(err).Msg("index quotes unavailable, using cached reading")
		obs.Quotes = c.cachedQuotes
		obs.Degraded = append(obs.Degraded, "index_quotes")
	} else {
		log.Warn().Err(err).Msg("index quotes unavailable, no cache yet")
		obs.Missing = append(obs.Missing, "index_quotes")
	}

	if breadth, err := c.fetchBreadth(ctx); err == nil {
		c.cachedBreadth = &breadth
		obs.BreadthPct = breadth
	} else if c.cachedBreadth != nil {
		log.Warn().Err(err).Msg("breadth unavailable, using cached reading")
		obs.BreadthPct = *c.cachedBreadth
		obs.Degraded = append(obs.Degraded, "breadth")
	} else {
		log.Warn().Err(err).Msg("breadth unavailable, no cache yet")
		obs.Missing = append(obs.Missing, "breadth")
	}

	return obs
}

func (c *Collector) fetchCounts(ctx context.Context) (PatternCounts, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return PatternCounts{}, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return c.src.PatternCounts(callCtx)
}

func (c *Collector) fetchQuotes(ctx context.Context) ([]macro.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return c.src.IndexQuotes(callCtx)
}

func (c *Collector) fetchBreadth(ctx context.Context) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return c.src.BreadthPct(callCtx)
}
