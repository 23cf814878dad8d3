// Package divergence cross-checks the smoothed regime against an
// independently sourced breadth percentage and applies confidence
// penalties when the two disagree.
package divergence

import (
	"fmt"

	"github.com/regimed/regimed/internal/domain/regime"
)

// Advice is the sizing recommendation attached to a divergence check.
type Advice string

const (
	AdviceNormal        Advice = "normal"
	AdviceReduceSize    Advice = "reduce_size"
	AdviceAvoidOrReduce Advice = "avoid_or_reduce"
)

// Config holds the divergence thresholds and penalties.
type Config struct {
	ExtremePct         float64 `yaml:"extreme_pct"`          // opposing breadth above -> extreme, default 70
	StrongPct          float64 `yaml:"strong_pct"`           // opposing breadth above -> extreme (weaker note), default 60
	ModeratePct        float64 `yaml:"moderate_pct"`         // opposing breadth above -> moderate, default 50
	ExtremeMultiplier  float64 `yaml:"extreme_multiplier"`   // default 0.5
	ModerateMultiplier float64 `yaml:"moderate_multiplier"`  // default 0.75
	ConfidenceFloor    float64 `yaml:"confidence_floor"`     // default 0.30
	OverrideLabel      bool    `yaml:"override_label"`       // optional extension: step the label toward Choppy above ExtremePct
}

// DefaultConfig returns the tuned production values. Label override is
// off by default; penalizing confidence is the documented behavior.
func DefaultConfig() Config {
	return Config{
		ExtremePct:         70,
		StrongPct:          60,
		ModeratePct:        50,
		ExtremeMultiplier:  0.5,
		ModerateMultiplier: 0.75,
		ConfidenceFloor:    0.30,
		OverrideLabel:      false,
	}
}

// Result is the outcome of one consistency check.
type Result struct {
	Level           regime.DivergenceLevel
	Advice          Advice
	OpposingPct     float64
	Note            string
	Confidence      float64 // post-check confidence
	Label           regime.Label
	LabelOverridden bool
}

// Checker validates regimes against breadth.
type Checker struct {
	cfg Config
}

// NewChecker builds a checker with the supplied thresholds.
func NewChecker(cfg Config) *Checker {
	return &Checker{cfg: cfg}
}

// Check grades the disagreement between the regime's implied direction
// and the breadth percentage. Rules apply in order, most severe first.
// A directionless (choppy) regime has nothing to oppose and always
// passes clean.
func (c *Checker) Check(label regime.Label, confidence, bullishBreadthPct float64) Result {
	res := Result{
		Level:      regime.DivergenceNone,
		Advice:     AdviceNormal,
		Confidence: confidence,
		Label:      label,
	}

	var opposing float64
	switch label.Direction() {
	case regime.DirectionLong:
		opposing = 100 - bullishBreadthPct
	case regime.DirectionShort:
		opposing = bullishBreadthPct
	default:
		return res
	}
	res.OpposingPct = opposing

	switch {
	case opposing > c.cfg.ExtremePct:
		res.Level = regime.DivergenceExtreme
		res.Advice = AdviceAvoidOrReduce
		res.Confidence = c.floor(confidence * c.cfg.ExtremeMultiplier)
		res.Note = fmt.Sprintf("breadth strongly contradicts %s: %.1f%% opposing", label, opposing)
		if c.cfg.OverrideLabel {
			res.Label = label.StepToward(regime.Choppy)
			res.LabelOverridden = res.Label != label
		}
	case opposing > c.cfg.StrongPct:
		res.Level = regime.DivergenceExtreme
		res.Advice = AdviceAvoidOrReduce
		res.Confidence = c.floor(confidence * c.cfg.ExtremeMultiplier)
		res.Note = fmt.Sprintf("breadth contradicts %s: %.1f%% opposing", label, opposing)
	case opposing > c.cfg.ModeratePct:
		res.Level = regime.DivergenceModerate
		res.Advice = AdviceReduceSize
		res.Confidence = c.floor(confidence * c.cfg.ModerateMultiplier)
		res.Note = fmt.Sprintf("breadth leans against %s: %.1f%% opposing", label, opposing)
	}

	return res
}

func (c *Checker) floor(conf float64) float64 {
	if conf < c.cfg.ConfidenceFloor {
		return c.cfg.ConfidenceFloor
	}
	return conf
}
