// Package policy maps (regime, confidence, volatility, divergence advice)
// to a deterministic position-sizing recommendation.
package policy

import (
	"github.com/regimed/regimed/internal/domain/divergence"
	"github.com/regimed/regimed/internal/domain/regime"
)

// Config holds the per-label sizing baselines and global risk knobs.
// Slices are indexed by label ordinal, strong_uptrend first.
type Config struct {
	SizeMultipliers  []float64 `yaml:"size_multipliers"`   // default 1.5 .. 0.3
	StopMultipliers  []float64 `yaml:"stop_multipliers"`   // stop-loss width per label
	MaxPositions     []int     `yaml:"max_positions"`      // per label
	BaseRiskPerTrade float64   `yaml:"base_risk_per_trade"` // fraction of equity, default 0.01
	ReduceSizeFactor float64   `yaml:"reduce_size_factor"` // moderate-divergence trim, default 0.75
	MinVolFactor     float64   `yaml:"min_vol_factor"`     // floor on the volatility scaler, default 0.4
}

// DefaultConfig returns the tuned production values.
func DefaultConfig() Config {
	return Config{
		SizeMultipliers:  []float64{1.5, 1.2, 1.0, 0.8, 0.6, 0.45, 0.3},
		StopMultipliers:  []float64{1.0, 1.0, 1.25, 1.5, 1.25, 1.0, 1.0},
		MaxPositions:     []int{10, 8, 6, 4, 4, 3, 2},
		BaseRiskPerTrade: 0.01,
		ReduceSizeFactor: 0.75,
		MinVolFactor:     0.4,
	}
}

// Engine computes sizing recommendations. Pure given its config.
type Engine struct {
	cfg Config
}

// NewEngine builds a sizing engine with the supplied config.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Compute derives the recommendation for one cycle. The volatility
// estimate is the ratio-window coefficient of variation supplied by the
// smoother; higher volatility scales size down, floored so a noisy tape
// never zeroes the book outright.
func (e *Engine) Compute(label regime.Label, confidence, volatility float64, advice divergence.Advice) regime.Recommendation {
	idx := label.Ordinal()
	if idx < 0 || idx >= len(e.cfg.SizeMultipliers) {
		idx = regime.Choppy.Ordinal()
	}

	confFactor := 0.5 + 0.5*confidence
	volFactor := 1.0 / (1.0 + volatility)
	if volFactor < e.cfg.MinVolFactor {
		volFactor = e.cfg.MinVolFactor
	}

	size := e.cfg.SizeMultipliers[idx] * confFactor * volFactor
	maxPositions := e.cfg.MaxPositions[idx]
	risk := e.cfg.BaseRiskPerTrade * confFactor * volFactor

	switch advice {
	case divergence.AdviceAvoidOrReduce:
		size /= 2
		risk /= 2
		maxPositions /= 2
		if maxPositions < 1 {
			maxPositions = 1
		}
	case divergence.AdviceReduceSize:
		size *= e.cfg.ReduceSizeFactor
		risk *= e.cfg.ReduceSizeFactor
	}

	return regime.Recommendation{
		SizeMultiplier:     size,
		StopLossMultiplier: e.cfg.StopMultipliers[idx],
		MaxPositions:       maxPositions,
		PreferredDirection: label.Direction(),
		RiskPerTrade:       risk,
		Advice:             string(advice),
	}
}
