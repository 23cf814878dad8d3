package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/regimed/regimed/internal/infrastructure/feed"
)

// ErrRejectedInput marks observations the validation gate refused to let
// into the pipeline. The previous valid state is retained unchanged.
var ErrRejectedInput = errors.New("pipeline: input rejected by validation gate")

// GateConfig holds the plausibility bounds applied before classification.
type GateConfig struct {
	MinSampleSize int `yaml:"min_sample_size"` // long+short below this is implausible, default 5
}

// DefaultGateConfig returns the tuned production values.
func DefaultGateConfig() GateConfig {
	return GateConfig{MinSampleSize: 5}
}

// gate validates one cycle's observations. Corrupted upstream data is
// rejected outright; recoverable gaps are the collector's business and
// arrive here already substituted or listed as missing.
type gate struct {
	cfg GateConfig
}

func (g gate) validate(obs feed.Observations) error {
	if has(obs.Missing, "pattern_counts") {
		return fmt.Errorf("%w: no pattern counts and no cached reading", ErrRejectedInput)
	}

	if obs.Counts.LongCount < 0 || obs.Counts.ShortCount < 0 {
		return fmt.Errorf("%w: negative pattern counts %d/%d",
			ErrRejectedInput, obs.Counts.LongCount, obs.Counts.ShortCount)
	}

	sample := obs.Counts.LongCount + obs.Counts.ShortCount
	if sample > 0 && sample < g.cfg.MinSampleSize {
		return fmt.Errorf("%w: sample size %d far below normal", ErrRejectedInput, sample)
	}

	if obs.BreadthAvailable() {
		if math.IsNaN(obs.BreadthPct) || obs.BreadthPct < 0 || obs.BreadthPct > 100 {
			return fmt.Errorf("%w: breadth %.2f outside [0,100]", ErrRejectedInput, obs.BreadthPct)
		}
	}

	if g.allAtExtremes(obs) {
		return fmt.Errorf("%w: all indicators simultaneously at extreme bounds", ErrRejectedInput)
	}

	return nil
}

// allAtExtremes flags the implausible case of every indicator pinned to
// its bound at once, a signature of corrupted upstream data rather than
// a real market condition.
func (g gate) allAtExtremes(obs feed.Observations) bool {
	if !obs.BreadthAvailable() || len(obs.Quotes) == 0 {
		return false
	}
	if obs.BreadthPct != 0 && obs.BreadthPct != 100 {
		return false
	}
	if obs.Counts.LongCount != 0 && obs.Counts.ShortCount != 0 {
		return false
	}
	allAbove, allBelow := true, true
	for _, q := range obs.Quotes {
		if q.Price > q.MovingAverage {
			allBelow = false
		} else {
			allAbove = false
		}
	}
	return allAbove || allBelow
}

func has(list []string, key string) bool {
	for _, v := range list {
		if v == key {
			return true
		}
	}
	return false
}
