// Package pipeline orchestrates one classification cycle: collect
// observations, validate, classify, smooth, cross-check, size, then
// atomically publish the snapshot. Cycles are strictly non-reentrant; an
// overlapping invocation is refused rather than queued.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/regimed/regimed/internal/application/predictor"
	"github.com/regimed/regimed/internal/domain/divergence"
	"github.com/regimed/regimed/internal/domain/fusion"
	"github.com/regimed/regimed/internal/domain/history"
	"github.com/regimed/regimed/internal/domain/macro"
	"github.com/regimed/regimed/internal/domain/pattern"
	"github.com/regimed/regimed/internal/domain/policy"
	"github.com/regimed/regimed/internal/domain/regime"
	"github.com/regimed/regimed/internal/domain/smoother"
	"github.com/regimed/regimed/internal/infrastructure/feed"
	"github.com/regimed/regimed/internal/notify"
	"github.com/regimed/regimed/internal/persistence"
	"github.com/regimed/regimed/internal/snapshot"
	"github.com/regimed/regimed/internal/telemetry"
)

// ErrCycleInFlight is returned when a new cycle is requested while one is
// still running. A skipped cycle is acceptable; a corrupted state is not.
var ErrCycleInFlight = errors.New("pipeline: cycle already in flight")

// Published-state confidence bounds. Fusion may go lower internally; the
// published regime never does.
const (
	stateConfidenceFloor   = 0.30
	stateConfidenceCeiling = 0.95
)

// Collector abstracts the feed collector for tests.
type Collector interface {
	Collect(ctx context.Context) feed.Observations
}

// Deps wires the pipeline's collaborators. Adapter, RedisPub, Repo, and
// Notifier are optional; Clock defaults to time.Now.
type Deps struct {
	Calculator *pattern.Calculator
	Analyzer   *macro.Analyzer
	Classifier *fusion.Classifier
	Smoother   *smoother.Smoother
	Checker    *divergence.Checker
	Sizing     *policy.Engine
	Tracker    *history.Tracker
	Collector  Collector
	Adapter    *predictor.Adapter
	Store      *snapshot.Store
	RedisPub   *snapshot.RedisPublisher
	Repo       persistence.HistoryRepo
	Notifier   notify.Notifier
	Metrics    *telemetry.Metrics
	Gate       GateConfig
	Clock      func() time.Time
}

// Pipeline owns the mutable regime state. Single writer: RunCycle is the
// only mutator, and it refuses to overlap itself.
type Pipeline struct {
	deps     Deps
	gate     gate
	clock    func() time.Time
	inFlight chan struct{} // 1-slot semaphore, acquired per cycle
	state    regime.State
}

// New builds a pipeline starting from the neutral boot state.
func New(deps Deps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{}
	}
	p := &Pipeline{
		deps:     deps,
		gate:     gate{cfg: deps.Gate},
		clock:    clock,
		inFlight: make(chan struct{}, 1),
		state:    regime.NewState(clock()),
	}
	return p
}

// State returns a copy of the current mutable state, for the smoother's
// duration gate and for tests.
func (p *Pipeline) State() regime.State {
	return p.state
}

// RunCycle executes one complete classification cycle and publishes the
// resulting snapshot. It returns ErrCycleInFlight if a previous cycle is
// still running. Nothing in the cycle is fatal: degraded inputs produce
// a degraded snapshot, rejected inputs retain the previous state.
func (p *Pipeline) RunCycle(ctx context.Context) (*regime.Snapshot, error) {
	select {
	case p.inFlight <- struct{}{}:
	default:
		p.deps.Metrics.SkippedCycles.Inc()
		log.Warn().Msg("cycle requested while previous still running, skipping")
		return nil, ErrCycleInFlight
	}
	defer func() { <-p.inFlight }()

	started := p.clock()
	defer func() {
		p.deps.Metrics.CycleDuration.Observe(p.clock().Sub(started).Seconds())
	}()

	obs := p.deps.Collector.Collect(ctx)
	now := p.clock()

	if err := p.gate.validate(obs); err != nil {
		log.Error().Err(err).Msg("observations rejected, retaining previous state")
		p.deps.Metrics.CyclesTotal.WithLabelValues("rejected").Inc()
		return p.publishDegraded(now, err.Error()), nil
	}

	// Stage 1+2: pattern and macro signals.
	pat := p.deps.Calculator.Calculate(obs.Counts.LongCount, obs.Counts.ShortCount)
	mac := p.deps.Analyzer.Analyze(obs.Quotes)

	// Stage 3: optional learned predictor, never blocking.
	smoothedPreview, volPreview := p.deps.Smoother.Preview(pat.Ratio)
	pred := p.deps.Adapter.Predict(ctx, predictor.Features{
		Ratio:         pat.Ratio,
		SmoothedRatio: smoothedPreview,
		FractionAbove: mac.FractionAbove,
		BreadthPct:    obs.BreadthPct,
		Volatility:    volPreview,
	})

	// Stage 4: fusion into the raw classification.
	fused := p.deps.Classifier.Fuse(pat, mac, pred)

	// Stage 5: hysteresis.
	decision := p.deps.Smoother.Evaluate(now, p.state, fused.Label, fused.Confidence, pat.Ratio)
	if decision.BlockedReason != "" {
		p.deps.Metrics.BlockedTransitions.WithLabelValues(decision.BlockedReason).Inc()
	}

	label := decision.NextLabel
	confidence := fused.Confidence
	if !decision.Changed && label != fused.Label {
		// Blocked transition: the raw classification disagrees with the
		// published label, so its confidence does not speak for the
		// published regime. Keep the previous published confidence.
		confidence = p.state.Confidence
	}

	// Stage 6: breadth consistency check.
	div := divergence.Result{
		Level:      regime.DivergenceNone,
		Advice:     divergence.AdviceNormal,
		Confidence: confidence,
		Label:      label,
	}
	if obs.BreadthAvailable() {
		div = p.deps.Checker.Check(label, confidence, obs.BreadthPct)
	}

	changed := decision.Changed
	if div.LabelOverridden {
		label = div.Label
		changed = label != p.state.CurrentLabel
	}
	confidence = clampStateConfidence(div.Confidence)

	// Stage 8 update: append history before mutating state.
	if changed {
		p.recordChange(ctx, now, label, confidence, pat.Ratio)
	}

	prevEnteredAt := p.state.EnteredAt
	p.state = regime.State{
		CurrentLabel:   label,
		Confidence:     confidence,
		RawLabel:       fused.Label,
		RawConfidence:  fused.Confidence,
		EnteredAt:      prevEnteredAt,
		Divergence:     div.Level,
		DivergenceNote: div.Note,
		Degraded:       len(obs.Degraded) > 0 || len(obs.Missing) > 0 || !mac.Available,
		Timestamp:      now,
	}
	if changed {
		p.state.EnteredAt = now
	}
	if p.state.Degraded {
		reasons := append(append([]string{}, obs.Degraded...), obs.Missing...)
		if !mac.Available {
			reasons = append(reasons, "macro_unavailable")
		}
		p.state.DegradedReason = strings.Join(reasons, ",")
		p.deps.Metrics.DegradedCycles.Inc()
	}

	// Stage 7: position sizing from the published regime.
	rec := p.deps.Sizing.Compute(label, confidence, decision.Volatility, div.Advice)

	snap := p.buildSnapshot(now, obs, pat, mac, pred, fused, decision, div, rec)
	p.publish(ctx, snap)

	p.deps.Metrics.CyclesTotal.WithLabelValues("ok").Inc()
	p.observeState()

	log.Info().
		Str("regime", label.String()).
		Float64("confidence", confidence).
		Str("raw", fused.Label.String()).
		Bool("changed", changed).
		Str("divergence", div.Level.String()).
		Bool("degraded", p.state.Degraded).
		Msg("cycle complete")

	return snap, nil
}

// recordChange appends the transition to the in-memory tracker, the
// optional durable repo, and the notifier, in that order, before the
// state mutation that follows.
func (p *Pipeline) recordChange(ctx context.Context, now time.Time, to regime.Label, confidence, ratio float64) {
	entry := history.Entry{
		Timestamp:          now,
		From:               p.state.CurrentLabel,
		To:                 to,
		ConfidenceAtChange: confidence,
		PreviousDuration:   p.state.Age(now),
	}
	p.deps.Tracker.Append(entry)
	p.deps.Metrics.RegimeSwitches.WithLabelValues(to.String()).Inc()

	if p.deps.Repo != nil {
		if err := p.deps.Repo.InsertChange(ctx, entry); err != nil {
			log.Error().Err(err).Msg("failed to persist regime change")
		}
	}

	p.deps.Notifier.RegimeChanged(ctx, notify.NewChange(entry.From, to, confidence, ratio, now))
}

func (p *Pipeline) buildSnapshot(now time.Time, obs feed.Observations,
	pat pattern.Result, mac macro.Result, pred fusion.Prediction,
	fused fusion.Result, decision smoother.Decision, div divergence.Result,
	rec regime.Recommendation) *regime.Snapshot {

	transition := "unchanged"
	if decision.Changed {
		transition = "accepted"
	} else if decision.BlockedReason != "" {
		transition = "blocked"
	}

	macroDiag := regime.MacroDiag{
		Available:     mac.Available,
		FractionAbove: mac.FractionAbove,
		Confidence:    mac.Confidence,
		Excluded:      mac.Excluded,
	}
	if mac.Available {
		macroDiag.Signal = mac.Signal.String()
		for _, d := range mac.Details {
			macroDiag.Indices = append(macroDiag.Indices, regime.IndexDiag{
				Name:          d.Name,
				Price:         d.Price,
				MovingAverage: d.MovingAverage,
				Above:         d.Above,
				PositionPct:   d.PositionPct,
			})
		}
	}

	return &regime.Snapshot{
		ID:             uuid.NewString(),
		State:          p.state,
		Recommendation: rec,
		Pattern: regime.PatternDiag{
			LongCount:  pat.LongCount,
			ShortCount: pat.ShortCount,
			Ratio:      pat.Ratio,
			Bucket:     pat.Bucket.String(),
			Label:      pat.Bucket.Label(),
			Confidence: pat.Confidence,
			Saturated:  pat.Saturated,
		},
		Macro: macroDiag,
		Predictor: regime.PredictorDiag{
			Available:  pred.Available,
			Label:      pred.Label,
			Confidence: pred.Confidence,
			Applied:    fused.PredictorApplied,
		},
		Smoother: regime.SmootherDiag{
			SmoothedRatio:   decision.SmoothedRatio,
			SmoothedLabel:   decision.SmoothedLabel,
			Volatility:      decision.Volatility,
			TransitionState: transition,
			BlockedReason:   decision.BlockedReason,
			ExtremeOverride: decision.ExtremeOverride,
		},
		OpposingPct: div.OpposingPct,
		Timestamp:   now,
	}
}

// publishDegraded re-publishes the unchanged state as a fresh snapshot
// marked degraded, so consumers always have a current, honest reading.
func (p *Pipeline) publishDegraded(now time.Time, reason string) *regime.Snapshot {
	p.deps.Metrics.DegradedCycles.Inc()

	state := p.state
	state.Degraded = true
	state.DegradedReason = reason
	state.Timestamp = now
	p.state = state

	rec := p.deps.Sizing.Compute(state.CurrentLabel, state.Confidence, 0, divergence.AdviceNormal)
	snap := &regime.Snapshot{
		ID:             uuid.NewString(),
		State:          state,
		Recommendation: rec,
		Timestamp:      now,
	}
	p.publish(context.Background(), snap)
	p.observeState()
	return snap
}

func (p *Pipeline) publish(ctx context.Context, snap *regime.Snapshot) {
	p.deps.Store.Publish(snap)

	if p.deps.RedisPub != nil {
		if err := p.deps.RedisPub.Publish(ctx, snap); err != nil {
			log.Error().Err(err).Msg("failed to mirror snapshot to redis")
		}
	}
	if p.deps.Repo != nil {
		if err := p.deps.Repo.InsertSnapshot(ctx, snap); err != nil {
			log.Error().Err(err).Msg("failed to persist snapshot")
		}
	}
}

func (p *Pipeline) observeState() {
	p.deps.Metrics.ActiveRegime.Set(float64(p.state.CurrentLabel.Ordinal()))
	p.deps.Metrics.Confidence.Set(p.state.Confidence)
	p.deps.Metrics.DivergenceGauge.Set(float64(p.state.Divergence))
}

func clampStateConfidence(v float64) float64 {
	if v < stateConfidenceFloor {
		return stateConfidenceFloor
	}
	if v > stateConfidenceCeiling {
		return stateConfidenceCeiling
	}
	return v
}
