// Package fusion combines the pattern micro signal, the macro trend
// signal, and the optional learned predictor into one raw regime label
// and raw confidence. The stage is pure: identical inputs always produce
// identical output.
package fusion

import (
	"github.com/regimed/regimed/internal/domain/macro"
	"github.com/regimed/regimed/internal/domain/pattern"
	"github.com/regimed/regimed/internal/domain/regime"
)

// Weights holds the fusion tuning knobs.
type Weights struct {
	PatternWeight       float64 `yaml:"pattern_weight"`        // default 0.7
	MacroWeight         float64 `yaml:"macro_weight"`          // default 0.3
	AgreementBoost      float64 `yaml:"agreement_boost"`       // default 0.15
	DisagreementPenalty float64 `yaml:"disagreement_penalty"`  // default 0.10
	PredictorMinConf    float64 `yaml:"predictor_min_conf"`    // tie-break threshold, default 0.75
	PredictorBlend      float64 `yaml:"predictor_blend"`       // confidence pull toward predictor, default 0.2
	PatternOnlyCap      float64 `yaml:"pattern_only_cap"`      // hard ceiling without macro, default 0.70
	ConfidenceFloor     float64 `yaml:"confidence_floor"`      // default 0.10
	ConfidenceCeiling   float64 `yaml:"confidence_ceiling"`    // default 0.95
	MaxMacroDisagreeHop int     `yaml:"max_macro_disagree_hop"` // ordinal steps tolerated, default 1
}

// DefaultWeights returns the tuned production values.
func DefaultWeights() Weights {
	return Weights{
		PatternWeight:       0.7,
		MacroWeight:         0.3,
		AgreementBoost:      0.15,
		DisagreementPenalty: 0.10,
		PredictorMinConf:    0.75,
		PredictorBlend:      0.2,
		PatternOnlyCap:      0.70,
		ConfidenceFloor:     0.10,
		ConfidenceCeiling:   0.95,
		MaxMacroDisagreeHop: 1,
	}
}

// Prediction is the optional learned classifier's vote.
type Prediction struct {
	Available  bool
	Label      regime.Label
	Confidence float64 // [0,1]
}

// Result is the fused raw classification, pre-smoothing.
type Result struct {
	Label            regime.Label
	Confidence       float64
	Agreement        bool // pattern and macro agreed on direction
	MacroUsed        bool
	PredictorApplied bool
	Capped           bool // pattern-only ceiling was applied
}

// Classifier fuses the sub-signals with fixed weights.
type Classifier struct {
	weights Weights
}

// NewClassifier builds a classifier with the supplied weights.
func NewClassifier(w Weights) *Classifier {
	return &Classifier{weights: w}
}

// Fuse combines the three sub-signals. The pattern bucket always supplies
// the label; the macro signal and predictor only move confidence, except
// that a high-confidence predictor may pull the label one ordinal step
// when pattern and macro conflict.
func (c *Classifier) Fuse(p pattern.Result, m macro.Result, pred Prediction) Result {
	w := c.weights
	label := p.Bucket.Label()

	if !m.Available {
		conf := p.Confidence
		if conf > w.PatternOnlyCap {
			conf = w.PatternOnlyCap
		}
		conf = clamp(conf, w.ConfidenceFloor, w.PatternOnlyCap)
		return Result{Label: label, Confidence: conf, Capped: true}
	}

	conf := w.PatternWeight*p.Confidence + w.MacroWeight*m.Confidence

	macroLabel := m.Signal.Label()
	hop := label.Distance(macroLabel)
	agree := directionsAgree(label, macroLabel)

	opposed := (label.Bullish() && macroLabel.Bearish()) ||
		(label.Bearish() && macroLabel.Bullish())
	// Macro disagreement beyond tolerance never overrides the label;
	// only the confidence pays for it.
	conflict := hop > w.MaxMacroDisagreeHop

	switch {
	case agree:
		conf += w.AgreementBoost
	case opposed || conflict:
		conf -= w.DisagreementPenalty
	}

	predictorApplied := false
	if pred.Available && pred.Label.IsValid() && pred.Confidence >= w.PredictorMinConf {
		// Tie-breaker only: in a pattern/macro conflict the predictor
		// pulls the label one step toward its own vote, and in all
		// cases it nudges confidence toward its own.
		if conflict && pred.Label != label {
			label = label.StepToward(pred.Label)
		}
		conf = conf + w.PredictorBlend*(pred.Confidence-conf)
		predictorApplied = true
	}

	conf = clamp(conf, w.ConfidenceFloor, w.ConfidenceCeiling)

	return Result{
		Label:            label,
		Confidence:       conf,
		Agreement:        agree,
		MacroUsed:        true,
		PredictorApplied: predictorApplied,
	}
}

// directionsAgree reports whether both labels sit on the same side of
// Choppy. A neutral label agrees with nothing and opposes nothing.
func directionsAgree(a, b regime.Label) bool {
	return (a.Bullish() && b.Bullish()) || (a.Bearish() && b.Bearish())
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
