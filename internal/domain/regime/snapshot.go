package regime

import (
	"fmt"
	"time"
)

// PatternDiag carries the pattern-count stage's diagnostic detail.
type PatternDiag struct {
	LongCount  int     `json:"long_count"`
	ShortCount int     `json:"short_count"`
	Ratio      float64 `json:"ratio"`
	Bucket     string  `json:"bucket"`
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
	Saturated  bool    `json:"saturated,omitempty"`
}

// IndexDiag carries one benchmark index's contribution to the macro signal.
type IndexDiag struct {
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	MovingAverage float64 `json:"moving_average"`
	Above         bool    `json:"above"`
	PositionPct   float64 `json:"position_pct"`
}

// MacroDiag carries the macro trend stage's diagnostic detail.
type MacroDiag struct {
	Available     bool        `json:"available"`
	Signal        string      `json:"signal,omitempty"`
	FractionAbove float64     `json:"fraction_above"`
	Confidence    float64     `json:"confidence"`
	Indices       []IndexDiag `json:"indices,omitempty"`
	Excluded      []string    `json:"excluded,omitempty"`
}

// PredictorDiag carries the learned predictor's contribution, if any.
type PredictorDiag struct {
	Available  bool    `json:"available"`
	Label      Label   `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Applied    bool    `json:"applied,omitempty"`
}

// SmootherDiag carries the hysteresis stage's diagnostic detail.
type SmootherDiag struct {
	SmoothedRatio   float64 `json:"smoothed_ratio"`
	SmoothedLabel   Label   `json:"smoothed_label"`
	Volatility      float64 `json:"volatility"`
	TransitionState string  `json:"transition"` // "accepted", "blocked", "unchanged"
	BlockedReason   string  `json:"blocked_reason,omitempty"`
	ExtremeOverride bool    `json:"extreme_override,omitempty"`
}

// Recommendation is the confidence-scaled position sizing guidance derived
// from the published regime. Recomputed every cycle, never persisted on
// its own.
type Recommendation struct {
	SizeMultiplier     float64   `json:"size_multiplier"`
	StopLossMultiplier float64   `json:"stop_loss_multiplier"`
	MaxPositions       int       `json:"max_positions"`
	PreferredDirection Direction `json:"preferred_direction"`
	RiskPerTrade       float64   `json:"risk_per_trade"`
	Advice             string    `json:"advice"` // "normal", "reduce_size", "avoid_or_reduce"
}

// Snapshot is the immutable record published after each cycle. The
// previous snapshot stays readable until it is replaced wholesale.
type Snapshot struct {
	ID             string         `json:"id"`
	State          State          `json:"state"`
	Recommendation Recommendation `json:"recommendation"`
	Pattern        PatternDiag    `json:"pattern"`
	Macro          MacroDiag      `json:"macro"`
	Predictor      PredictorDiag  `json:"predictor"`
	Smoother       SmootherDiag   `json:"smoother"`
	OpposingPct    float64        `json:"opposing_pct"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Stale reports whether the snapshot is older than the freshness
// threshold. Readers must call this rather than trusting liveness.
func (s *Snapshot) Stale(now time.Time, freshness time.Duration) bool {
	return now.Sub(s.Timestamp) > freshness
}

// FormatReport renders a human-readable regime report for the status CLI
// and operator logs.
func (s *Snapshot) FormatReport() string {
	if s == nil {
		return "No regime snapshot available\n"
	}

	report := fmt.Sprintf("Regime: %s (%.1f%% confidence)\n",
		s.State.CurrentLabel, s.State.Confidence*100)
	report += fmt.Sprintf("Entered: %s  Snapshot: %s\n",
		s.State.EnteredAt.Format(time.RFC3339),
		s.Timestamp.Format(time.RFC3339))
	report += fmt.Sprintf("Raw: %s (%.1f%%)  Smoothed ratio: %.2f  Volatility: %.2f\n",
		s.State.RawLabel, s.State.RawConfidence*100,
		s.Smoother.SmoothedRatio, s.Smoother.Volatility)
	report += fmt.Sprintf("Pattern: %s (ratio %.2f, %d/%d)\n",
		s.Pattern.Bucket, s.Pattern.Ratio, s.Pattern.LongCount, s.Pattern.ShortCount)

	if s.Macro.Available {
		report += fmt.Sprintf("Macro: %s (%.0f%% of indices above MA)\n",
			s.Macro.Signal, s.Macro.FractionAbove*100)
		for _, idx := range s.Macro.Indices {
			report += fmt.Sprintf("  %s: %.2f vs MA %.2f (%+.2f%%)\n",
				idx.Name, idx.Price, idx.MovingAverage, idx.PositionPct)
		}
	} else {
		report += "Macro: unavailable\n"
	}

	if s.State.Divergence != DivergenceNone {
		report += fmt.Sprintf("Divergence: %s (%.1f%% opposing): %s\n",
			s.State.Divergence, s.OpposingPct, s.State.DivergenceNote)
	}
	if s.State.Degraded {
		report += fmt.Sprintf("DEGRADED: %s\n", s.State.DegradedReason)
	}

	report += fmt.Sprintf("Sizing: %.2fx, stop %.2fx, max %d positions, %s, risk %.2f%%\n",
		s.Recommendation.SizeMultiplier, s.Recommendation.StopLossMultiplier,
		s.Recommendation.MaxPositions, s.Recommendation.PreferredDirection,
		s.Recommendation.RiskPerTrade*100)

	return report
}
