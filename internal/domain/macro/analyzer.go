// Package macro converts benchmark index quotes into a bullish, neutral,
// or bearish macro trend signal with a strength score.
package macro

import (
	"math"
	"time"

	"github.com/regimed/regimed/internal/domain/regime"
)

// Quote is one benchmark index reading supplied by an external feed. The
// moving average is computed upstream; this package never derives it.
type Quote struct {
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	MovingAverage float64   `json:"moving_average"`
	AsOf          time.Time `json:"as_of"`
}

// Signal is the aggregate macro classification.
type Signal int

const (
	StrongBullish Signal = iota
	Bullish
	Neutral
	Bearish
	StrongBearish
)

var signalNames = map[Signal]string{
	StrongBullish: "strong_bullish",
	Bullish:       "bullish",
	Neutral:       "neutral",
	Bearish:       "bearish",
	StrongBearish: "strong_bearish",
}

func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return "unknown"
}

// Label maps the five-step macro signal onto the seven-step regime scale.
func (s Signal) Label() regime.Label {
	switch s {
	case StrongBullish:
		return regime.StrongUptrend
	case Bullish:
		return regime.Uptrend
	case Bearish:
		return regime.Downtrend
	case StrongBearish:
		return regime.StrongDowntrend
	default:
		return regime.Choppy
	}
}

// IndexDetail is the per-index breakdown kept for downstream reporting.
type IndexDetail struct {
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	MovingAverage float64 `json:"moving_average"`
	Above         bool    `json:"above"`
	PositionPct   float64 `json:"position_pct"`
}

// Result is the analyzer output. Available is false only when every quote
// was missing or unusable; partial gaps just shrink the sample.
type Result struct {
	Available     bool
	Signal        Signal
	FractionAbove float64
	Confidence    float64
	Details       []IndexDetail
	Excluded      []string
}

// Thresholds holds the fraction-above boundaries for classification.
type Thresholds struct {
	StrongBullish float64 `yaml:"strong_bullish"` // fraction above -> strong bullish
	Bullish       float64 `yaml:"bullish"`        // fraction above -> bullish
	Neutral       float64 `yaml:"neutral"`        // fraction above -> neutral
	Bearish       float64 `yaml:"bearish"`        // fraction above -> bearish; below -> strong bearish
}

// DefaultThresholds returns the tuned production boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StrongBullish: 0.8,
		Bullish:       0.6,
		Neutral:       0.4,
		Bearish:       0.2,
	}
}

// Analyzer aggregates index quotes into the macro signal.
type Analyzer struct {
	thresholds Thresholds
}

// NewAnalyzer builds an analyzer with the supplied boundaries.
func NewAnalyzer(t Thresholds) *Analyzer {
	return &Analyzer{thresholds: t}
}

// Analyze classifies the supplied quotes. Quotes with non-positive or NaN
// price or moving average are excluded from the aggregate rather than
// failing the cycle; an empty usable set yields an unavailable result.
func (a *Analyzer) Analyze(quotes []Quote) Result {
	details := make([]IndexDetail, 0, len(quotes))
	var excluded []string
	above := 0

	for _, q := range quotes {
		if !usable(q) {
			excluded = append(excluded, q.Name)
			continue
		}
		posPct := (q.Price - q.MovingAverage) / q.MovingAverage * 100
		isAbove := q.Price > q.MovingAverage
		if isAbove {
			above++
		}
		details = append(details, IndexDetail{
			Name:          q.Name,
			Price:         q.Price,
			MovingAverage: q.MovingAverage,
			Above:         isAbove,
			PositionPct:   posPct,
		})
	}

	if len(details) == 0 {
		return Result{Available: false, Signal: Neutral, Excluded: excluded}
	}

	fraction := float64(above) / float64(len(details))
	signal := a.classify(fraction)

	return Result{
		Available:     true,
		Signal:        signal,
		FractionAbove: fraction,
		Confidence:    confidence(fraction),
		Details:       details,
		Excluded:      excluded,
	}
}

func (a *Analyzer) classify(fraction float64) Signal {
	t := a.thresholds
	switch {
	case fraction >= t.StrongBullish:
		return StrongBullish
	case fraction >= t.Bullish:
		return Bullish
	case fraction >= t.Neutral:
		return Neutral
	case fraction >= t.Bearish:
		return Bearish
	default:
		return StrongBearish
	}
}

// confidence grades signal strength by distance from the 50/50 midpoint:
// a unanimous panel scores 1.0, an even split 0.5.
func confidence(fraction float64) float64 {
	return 0.5 + math.Abs(fraction-0.5)
}

func usable(q Quote) bool {
	if q.Price <= 0 || q.MovingAverage <= 0 {
		return false
	}
	if math.IsNaN(q.Price) || math.IsNaN(q.MovingAverage) {
		return false
	}
	return true
}
