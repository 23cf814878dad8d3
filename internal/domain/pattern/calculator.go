// Package pattern converts raw bullish/bearish pattern counts into a
// long/short ratio and a discrete trend-strength bucket.
package pattern

import (
	"math"

	"github.com/regimed/regimed/internal/domain/regime"
)

// Bucket is the discrete trend-strength classification of a ratio. The
// values align one-to-one with the regime label ordering.
type Bucket int

const (
	StrongBullish Bucket = iota
	Bullish
	NeutralBullish
	Neutral
	NeutralBearish
	Bearish
	StrongBearish
)

var bucketNames = map[Bucket]string{
	StrongBullish:  "strong_bullish",
	Bullish:        "bullish",
	NeutralBullish: "neutral_bullish",
	Neutral:        "neutral",
	NeutralBearish: "neutral_bearish",
	Bearish:        "bearish",
	StrongBearish:  "strong_bearish",
}

func (b Bucket) String() string {
	if name, ok := bucketNames[b]; ok {
		return name
	}
	return "unknown"
}

// Label maps the bucket onto the corresponding regime label.
func (b Bucket) Label() regime.Label {
	return regime.Label(b)
}

// Thresholds holds the ratio boundaries for bucket classification. The
// bearish and neutral-bearish bands overlap in [0.5, 0.8) on purpose:
// bands are applied most-extreme-first, so the overlap resolves to
// bearish only below the bearish boundary. This mirrors the documented
// behavior and is covered by tests rather than silently fixed.
type Thresholds struct {
	StrongBullish  float64 `yaml:"strong_bullish"`  // ratio above -> strong bullish
	Bullish        float64 `yaml:"bullish"`         // ratio above -> bullish
	NeutralBullish float64 `yaml:"neutral_bullish"` // ratio above -> neutral bullish
	NeutralBearish float64 `yaml:"neutral_bearish"` // ratio below -> neutral bearish
	Bearish        float64 `yaml:"bearish"`         // ratio below -> bearish
	StrongBearish  float64 `yaml:"strong_bearish"`  // ratio below -> strong bearish
}

// DefaultThresholds returns the tuned production boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StrongBullish:  2.0,
		Bullish:        1.5,
		NeutralBullish: 1.2,
		NeutralBearish: 0.8,
		Bearish:        0.67,
		StrongBearish:  0.5,
	}
}

// Result is the pure output of a single classification.
type Result struct {
	LongCount  int
	ShortCount int
	Ratio      float64
	Bucket     Bucket
	Confidence float64
	Saturated  bool // short count was zero; ratio treated as saturated-high
	Empty      bool // both counts were zero; neutral by construction
}

// ratioEpsilon guards the division when the short count is zero; the
// resulting ratio saturates high instead of being undefined.
const ratioEpsilon = 1e-3

// Calculator buckets long/short pattern-count ratios.
type Calculator struct {
	thresholds Thresholds
}

// NewCalculator builds a calculator with the supplied boundaries.
func NewCalculator(t Thresholds) *Calculator {
	return &Calculator{thresholds: t}
}

// Calculate classifies a pattern-count pair. Pure and total for
// non-negative inputs.
func (c *Calculator) Calculate(longCount, shortCount int) Result {
	if longCount == 0 && shortCount == 0 {
		return Result{Ratio: 1.0, Bucket: Neutral, Confidence: 0.5, Empty: true}
	}

	saturated := shortCount == 0
	ratio := float64(longCount) / math.Max(float64(shortCount), ratioEpsilon)

	bucket := c.ClassifyRatio(ratio)
	return Result{
		LongCount:  longCount,
		ShortCount: shortCount,
		Ratio:      ratio,
		Bucket:     bucket,
		Confidence: c.confidence(ratio, bucket),
		Saturated:  saturated,
	}
}

// ClassifyRatio maps a ratio onto a bucket, most extreme band first.
func (c *Calculator) ClassifyRatio(ratio float64) Bucket {
	t := c.thresholds
	switch {
	case ratio > t.StrongBullish:
		return StrongBullish
	case ratio > t.Bullish:
		return Bullish
	case ratio > t.NeutralBullish:
		return NeutralBullish
	case ratio < t.StrongBearish:
		return StrongBearish
	case ratio < t.Bearish:
		return Bearish
	case ratio < t.NeutralBearish:
		return NeutralBearish
	default:
		return Neutral
	}
}

// confidence grades how decisively the ratio sits inside its bucket.
// Farther from parity means a stronger micro signal; log-distance keeps
// the bullish and bearish sides symmetric.
func (c *Calculator) confidence(ratio float64, bucket Bucket) float64 {
	if ratio <= 0 {
		ratio = ratioEpsilon
	}
	strength := math.Abs(math.Log(ratio))

	base := 0.5
	switch bucket {
	case StrongBullish, StrongBearish:
		base = 0.85
	case Bullish, Bearish:
		base = 0.75
	case NeutralBullish, NeutralBearish:
		base = 0.62
	}

	conf := base + 0.05*math.Min(strength, 2.0)
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}
