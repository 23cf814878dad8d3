// Package smoother implements the hysteresis state machine that decides
// whether a raw classification may replace the currently published
// regime. It keeps a short window of recent ratios, blends the current
// reading against the trailing mean, and gates transitions on label age,
// confidence, and ratio volatility.
package smoother

import (
	"math"
	"time"

	"github.com/prometheus/common/model"

	"github.com/regimed/regimed/internal/domain/pattern"
	"github.com/regimed/regimed/internal/domain/regime"
)

// Config holds the hysteresis tuning knobs. Durations use the
// Prometheus duration format so YAML can say "2h".
type Config struct {
	MinDuration        model.Duration `yaml:"min_duration"`          // label age before a change is allowed, default 2h
	AdjacentMinConf    float64        `yaml:"adjacent_min_conf"`     // confidence for a one-step move, default 0.80
	NonAdjacentMinConf float64        `yaml:"non_adjacent_min_conf"` // confidence for a larger move, default 0.70
	MaxVolatility      float64        `yaml:"max_volatility"`        // CV ceiling over the ratio window, default 0.50
	ExtremeHigh        float64        `yaml:"extreme_high"`          // ratio above bypasses duration and volatility, default 3.0
	ExtremeLow         float64        `yaml:"extreme_low"`           // ratio below bypasses duration and volatility, default 0.33
	RatioWindow        int            `yaml:"ratio_window"`          // volatility sample size, default 5
	BlendWindow        int            `yaml:"blend_window"`          // trailing cycles in the smoothed ratio, default 3
	CurrentWeight      float64        `yaml:"current_weight"`        // current cycle's share of the blend, default 0.5
}

// DefaultConfig returns the tuned production values.
func DefaultConfig() Config {
	return Config{
		MinDuration:        model.Duration(2 * time.Hour),
		AdjacentMinConf:    0.80,
		NonAdjacentMinConf: 0.70,
		MaxVolatility:      0.50,
		ExtremeHigh:        3.0,
		ExtremeLow:         0.33,
		RatioWindow:        5,
		BlendWindow:        3,
		CurrentWeight:      0.5,
	}
}

// Blocked reasons recorded for observability when a transition is refused.
const (
	BlockedDuration   = "min_duration"
	BlockedConfidence = "confidence"
	BlockedVolatility = "volatility"
)

// Decision is the outcome of one smoothing evaluation.
type Decision struct {
	Changed         bool         // the published label should change
	NextLabel       regime.Label // label to publish (current label when unchanged)
	SmoothedRatio   float64
	SmoothedLabel   regime.Label
	Volatility      float64
	ExtremeOverride bool
	BlockedReason   string // empty unless a wanted transition was refused
}

// Smoother owns the rolling ratio window. Not safe for concurrent use;
// the pipeline guarantees single-threaded cycles.
type Smoother struct {
	cfg    Config
	calc   *pattern.Calculator
	ratios []float64 // most recent last
}

// New builds a smoother that classifies smoothed ratios with calc.
func New(cfg Config, calc *pattern.Calculator) *Smoother {
	return &Smoother{cfg: cfg, calc: calc}
}

// Evaluate applies the transition rule for one cycle. It observes the
// cycle's raw ratio, computes the blended ratio and window volatility,
// and decides whether rawLabel may replace the state's current label.
// The caller mutates state and appends history; Evaluate itself only
// advances the ratio window.
func (s *Smoother) Evaluate(now time.Time, state regime.State, rawLabel regime.Label, rawConfidence, ratio float64) Decision {
	smoothed := s.blend(ratio)
	s.observe(ratio)
	vol := s.volatility()

	d := Decision{
		NextLabel:     state.CurrentLabel,
		SmoothedRatio: smoothed,
		SmoothedLabel: s.calc.ClassifyRatio(smoothed).Label(),
		Volatility:    vol,
	}

	if rawLabel == state.CurrentLabel {
		return d
	}

	extreme := ratio > s.cfg.ExtremeHigh || ratio < s.cfg.ExtremeLow
	d.ExtremeOverride = extreme

	// Gate (a): minimum label duration, bypassed by an extreme ratio.
	if !extreme && state.Age(now) < time.Duration(s.cfg.MinDuration) {
		d.BlockedReason = BlockedDuration
		return d
	}

	// Gate (b): adjacent moves need more conviction than larger ones.
	minConf := s.cfg.NonAdjacentMinConf
	if rawLabel.IsAdjacent(state.CurrentLabel) {
		minConf = s.cfg.AdjacentMinConf
	}
	if rawConfidence < minConf {
		d.BlockedReason = BlockedConfidence
		return d
	}

	// Gate (c): ratio volatility, also bypassed by an extreme ratio.
	if !extreme && vol > s.cfg.MaxVolatility {
		d.BlockedReason = BlockedVolatility
		return d
	}

	d.Changed = true
	d.NextLabel = rawLabel
	return d
}

// blend weights the current ratio against the trailing mean of the last
// BlendWindow observed ratios. With no history the current ratio stands.
func (s *Smoother) blend(current float64) float64 {
	n := len(s.ratios)
	if n == 0 {
		return current
	}
	start := n - s.cfg.BlendWindow
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, r := range s.ratios[start:] {
		sum += r
	}
	trailing := sum / float64(n-start)
	return s.cfg.CurrentWeight*current + (1-s.cfg.CurrentWeight)*trailing
}

func (s *Smoother) observe(ratio float64) {
	s.ratios = append(s.ratios, ratio)
	if len(s.ratios) > s.cfg.RatioWindow {
		s.ratios = s.ratios[len(s.ratios)-s.cfg.RatioWindow:]
	}
}

// volatility is the coefficient of variation over the ratio window.
// Fewer than two samples read as perfectly stable.
func (s *Smoother) volatility() float64 {
	n := len(s.ratios)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range s.ratios {
		mean += r
	}
	mean /= float64(n)
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, r := range s.ratios {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(n)
	return math.Sqrt(variance) / math.Abs(mean)
}

// Preview returns the blended ratio and window volatility as they stand
// before this cycle's ratio is observed, for predictor features.
func (s *Smoother) Preview(ratio float64) (smoothed, vol float64) {
	return s.blend(ratio), s.volatility()
}

// Window exposes a copy of the current ratio window for diagnostics.
func (s *Smoother) Window() []float64 {
	out := make([]float64, len(s.ratios))
	copy(out, s.ratios)
	return out
}
