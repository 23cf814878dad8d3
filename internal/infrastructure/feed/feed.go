// Package feed collects the per-cycle observations from the external
// collaborators: pattern scanners, the index-quote feed, the breadth
// source. Each call site has its own timeout and falls back to the last
// valid cached reading instead of failing the cycle.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/regimed/regimed/internal/domain/macro"
)

// ErrUnavailable signals that a source has no data to give right now.
var ErrUnavailable = errors.New("feed: source unavailable")

// PatternCounts are the raw bullish/bearish scan results. The scanners
// run on their own cadence; counts being stale is tolerated by design.
type PatternCounts struct {
	LongCount  int       `json:"long_count"`
	ShortCount int       `json:"short_count"`
	AsOf       time.Time `json:"as_of"`
}

// Source supplies the three independent inputs. Implementations may
// block; the collector wraps every call in a timeout.
type Source interface {
	PatternCounts(ctx context.Context) (PatternCounts, error)
	IndexQuotes(ctx context.Context) ([]macro.Quote, error)
	BreadthPct(ctx context.Context) (float64, error)
}

// Observations is one cycle's worth of input, possibly degraded by
// cached substitutions.
type Observations struct {
	Counts     PatternCounts
	Quotes     []macro.Quote
	BreadthPct float64

	// Degraded lists the sources that fell back to a cached reading
	// this cycle; Missing lists those with no cache to fall back on.
	Degraded []string
	Missing  []string

	Timestamp time.Time
}

// BreadthAvailable reports whether a breadth figure (live or cached) is
// present this cycle.
func (o Observations) BreadthAvailable() bool {
	for _, m := range o.Missing {
		if m == "breadth" {
			return false
		}
	}
	return true
}
