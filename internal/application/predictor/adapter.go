// Package predictor wraps the optional external learned classifier. The
// adapter's only contract is to return a valid label with a confidence in
// [0,1] or report "unavailable"; it must never block or fail the cycle.
package predictor

import (
	"context"
	"time"

	"github.com/prometheus/common/model"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/regimed/regimed/internal/domain/fusion"
	"github.com/regimed/regimed/internal/domain/regime"
)

// Features is the input vector handed to the external classifier,
// derived from recent ratios and momentum.
type Features struct {
	Ratio         float64 `json:"ratio"`
	SmoothedRatio float64 `json:"smoothed_ratio"`
	FractionAbove float64 `json:"fraction_above"`
	BreadthPct    float64 `json:"breadth_pct"`
	Volatility    float64 `json:"volatility"`
}

// Classifier is the external model-serving component. Implementations
// live outside this repository; the training loop never sees this core's
// own output.
type Classifier interface {
	Predict(ctx context.Context, f Features) (regime.Label, float64, error)
}

// Config holds the adapter knobs.
type Config struct {
	Timeout         model.Duration `yaml:"timeout"`          // per-call budget, default 2s
	BreakerFailures uint32         `yaml:"breaker_failures"` // consecutive failures before opening, default 3
	BreakerCooldown model.Duration `yaml:"breaker_cooldown"` // open-state hold, default 5m
}

// DefaultConfig returns the tuned production values.
func DefaultConfig() Config {
	return Config{
		Timeout:         model.Duration(2 * time.Second),
		BreakerFailures: 3,
		BreakerCooldown: model.Duration(5 * time.Minute),
	}
}

// Adapter guards the classifier with a timeout and a circuit breaker.
// A nil classifier, a timeout, a tripped breaker, and an out-of-contract
// response are all treated identically: unavailable.
type Adapter struct {
	classifier Classifier
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
}

type prediction struct {
	label      regime.Label
	confidence float64
}

// NewAdapter builds an adapter around classifier; classifier may be nil.
func NewAdapter(classifier Classifier, cfg Config) *Adapter {
	settings := gobreaker.Settings{
		Name:    "predictor",
		Timeout: time.Duration(cfg.BreakerCooldown),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("predictor breaker state change")
		},
	}
	return &Adapter{
		classifier: classifier,
		timeout:    time.Duration(cfg.Timeout),
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

// Predict asks the external classifier for a candidate regime. The
// returned Prediction has Available=false on any error, timeout, or
// contract violation.
func (a *Adapter) Predict(ctx context.Context, f Features) fusion.Prediction {
	if a == nil || a.classifier == nil {
		return fusion.Prediction{}
	}

	out, err := a.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		label, confidence, err := a.classifier.Predict(callCtx, f)
		if err != nil {
			return nil, err
		}
		return prediction{label: label, confidence: confidence}, nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("predictor unavailable")
		return fusion.Prediction{}
	}

	p := out.(prediction)
	if !p.label.IsValid() || p.confidence < 0 || p.confidence > 1 {
		log.Warn().Str("label", p.label.String()).Float64("confidence", p.confidence).
			Msg("predictor returned out-of-contract result, discarding")
		return fusion.Prediction{}
	}

	return fusion.Prediction{Available: true, Label: p.label, Confidence: p.confidence}
}
