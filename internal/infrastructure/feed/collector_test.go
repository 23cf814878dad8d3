package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regimed/regimed/internal/domain/macro"
)

type fakeSource struct {
	counts     PatternCounts
	countsErr  error
	quotes     []macro.Quote
	quotesErr  error
	breadth    float64
	breadthErr error
}

func (f *fakeSource) PatternCounts(context.Context) (PatternCounts, error) {
	return f.counts, f.countsErr
}

func (f *fakeSource) IndexQuotes(context.Context) ([]macro.Quote, error) {
	return f.quotes, f.quotesErr
}

func (f *fakeSource) BreadthPct(context.Context) (float64, error) {
	return f.breadth, f.breadthErr
}

func testConfig() CollectorConfig {
	cfg := DefaultCollectorConfig()
	cfg.RatePerSec = 1000
	cfg.RateBurst = 1000
	return cfg
}

func TestCollectAllSourcesHealthy(t *testing.T) {
	src := &fakeSource{
		counts:  PatternCounts{LongCount: 30, ShortCount: 20, AsOf: time.Now()},
		quotes:  []macro.Quote{{Name: "SPX", Price: 105, MovingAverage: 100}},
		breadth: 62.5,
	}
	c := NewCollector(src, testConfig())

	obs := c.Collect(context.Background())
	assert.Equal(t, 30, obs.Counts.LongCount)
	require.Len(t, obs.Quotes, 1)
	assert.Equal(t, 62.5, obs.BreadthPct)
	assert.Empty(t, obs.Degraded)
	assert.Empty(t, obs.Missing)
	assert.True(t, obs.BreadthAvailable())
}

func TestCollectFallsBackToCache(t *testing.T) {
	src := &fakeSource{
		counts:  PatternCounts{LongCount: 30, ShortCount: 20},
		quotes:  []macro.Quote{{Name: "SPX", Price: 105, MovingAverage: 100}},
		breadth: 62.5,
	}
	c := NewCollector(src, testConfig())

	// Prime the cache with one good cycle, then break every source.
	c.Collect(context.Background())
	src.countsErr = ErrUnavailable
	src.quotesErr = ErrUnavailable
	src.breadthErr = ErrUnavailable

	obs := c.Collect(context.Background())
	assert.Equal(t, 30, obs.Counts.LongCount)
	assert.Len(t, obs.Quotes, 1)
	assert.Equal(t, 62.5, obs.BreadthPct)
	assert.ElementsMatch(t, []string{"pattern_counts", "index_quotes", "breadth"}, obs.Degraded)
	assert.Empty(t, obs.Missing)
}

func TestCollectNoCacheMeansMissing(t *testing.T) {
	src := &fakeSource{
		countsErr:  ErrUnavailable,
		quotesErr:  ErrUnavailable,
		breadthErr: ErrUnavailable,
	}
	c := NewCollector(src, testConfig())

	obs := c.Collect(context.Background())
	assert.ElementsMatch(t, []string{"pattern_counts", "index_quotes", "breadth"}, obs.Missing)
	assert.Empty(t, obs.Degraded)
	assert.False(t, obs.BreadthAvailable())
}

func TestCollectEmptyQuotesTreatedAsFailure(t *testing.T) {
	src := &fakeSource{
		counts:  PatternCounts{LongCount: 30, ShortCount: 20},
		breadth: 50,
	}
	c := NewCollector(src, testConfig())

	obs := c.Collect(context.Background())
	assert.Contains(t, obs.Missing, "index_quotes")
}

func TestCollectPartialDegradation(t *testing.T) {
	src := &fakeSource{
		counts:  PatternCounts{LongCount: 30, ShortCount: 20},
		quotes:  []macro.Quote{{Name: "SPX", Price: 105, MovingAverage: 100}},
		breadth: 62.5,
	}
	c := NewCollector(src, testConfig())
	c.Collect(context.Background())

	// Only breadth goes dark; the rest stays live.
	src.breadthErr = ErrUnavailable
	obs := c.Collect(context.Background())
	assert.Equal(t, []string{"breadth"}, obs.Degraded)
	assert.Equal(t, 62.5, obs.BreadthPct)
	assert.True(t, obs.BreadthAvailable())
}
