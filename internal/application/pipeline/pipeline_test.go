package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	"github.com/regimed/regimed/internal/snapshot"
	"github.com/regimed/regimed/internal/telemetry"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type stubCollector struct {
	obs feed.Observations
}

func (s *stubCollector) Collect(context.Context) feed.Observations { return s.obs }

type captureNotifier struct {
	changes []notify.Change
}

func (c *captureNotifier) RegimeChanged(_ context.Context, ch notify.Change) {
	c.changes = append(c.changes, ch)
}

func quotesAbove() []macro.Quote {
	return []macro.Quote{
		{Name: "SPX", Price: 105, MovingAverage: 100},
		{Name: "NDX", Price: 210, MovingAverage: 200},
		{Name: "DJI", Price: 330, MovingAverage: 300},
		{Name: "RUT", Price: 110, MovingAverage: 100},
	}
}

func quotesBelow() []macro.Quote {
	q := quotesAbove()
	for i := range q {
		q[i].Price = q[i].MovingAverage * 0.95
	}
	return q
}

func newTestPipeline(clk *fakeClock, col *stubCollector, n notify.Notifier) (*Pipeline, *history.Tracker, *snapshot.Store) {
	calc := pattern.NewCalculator(pattern.DefaultThresholds())
	tracker := history.NewTracker(0)
	store := snapshot.NewStore(30 * time.Minute)

	p := New(Deps{
		Calculator: calc,
		Analyzer:   macro.NewAnalyzer(macro.DefaultThresholds()),
		Classifier: fusion.NewClassifier(fusion.DefaultWeights()),
		Smoother:   smoother.New(smoother.DefaultConfig(), calc),
		Checker:    divergence.NewChecker(divergence.DefaultConfig()),
		Sizing:     policy.NewEngine(policy.DefaultConfig()),
		Tracker:    tracker,
		Collector:  col,
		Store:      store,
		Notifier:   n,
		Metrics:    telemetry.NewMetrics(),
		Gate:       DefaultGateConfig(),
		Clock:      clk.Now,
	})
	return p, tracker, store
}

// An extreme bearish tape overrides the duration gate on the very first
// cycle and flips the boot state straight to strong_downtrend.
func TestRunCycleExtremeBearishAccepted(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)}
	col := &stubCollector{obs: feed.Observations{
		Counts:     feed.PatternCounts{LongCount: 20, ShortCount: 61},
		Quotes:     quotesBelow(),
		BreadthPct: 28.8,
		Timestamp:  clk.Now(),
	}}
	notifier := &captureNotifier{}
	p, tracker, store := newTestPipeline(clk, col, notifier)

	snap, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, regime.StrongDowntrend, snap.State.CurrentLabel)
	assert.InDelta(t, 0.95, snap.State.Confidence, 1e-9)
	assert.Equal(t, clk.Now(), snap.State.EnteredAt)
	assert.True(t, snap.Smoother.ExtremeOverride)
	assert.Equal(t, "accepted", snap.Smoother.TransitionState)

	// Breadth at 28.8% bullish agrees with a short regime.
	assert.Equal(t, regime.DivergenceNone, snap.State.Divergence)
	assert.Equal(t, regime.DirectionShort, snap.Recommendation.PreferredDirection)
	assert.Equal(t, "normal", snap.Recommendation.Advice)

	require.Equal(t, 1, tracker.Len())
	change := tracker.Recent(1)[0]
	assert.Equal(t, regime.Choppy, change.From)
	assert.Equal(t, regime.StrongDowntrend, change.To)

	require.Len(t, notifier.changes, 1)
	assert.Equal(t, regime.StrongDowntrend, notifier.changes[0].To)

	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, snap.ID, latest.ID)
}

// A bullish tape contradicted by breadth gets the extreme divergence
// penalty: confidence halved, sizing halved, avoid_or_reduce advice.
func TestRunCycleExtremeDivergencePenalty(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)}
	col := &stubCollector{obs: feed.Observations{
		Counts:     feed.PatternCounts{LongCount: 29, ShortCount: 11},
		Quotes:     quotesAbove(),
		BreadthPct: 28.8,
	}}
	p, _, _ := newTestPipeline(clk, col, &captureNotifier{})
	clk.Advance(3 * time.Hour)

	snap, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, regime.StrongUptrend, snap.State.CurrentLabel)
	assert.Equal(t, regime.DivergenceExtreme, snap.State.Divergence)
	assert.InDelta(t, 71.2, snap.OpposingPct, 1e-9)
	// Fused 0.95 halved by the extreme penalty.
	assert.InDelta(t, 0.475, snap.State.Confidence, 1e-9)
	assert.Equal(t, "avoid_or_reduce", snap.Recommendation.Advice)
	assert.Equal(t, 5, snap.Recommendation.MaxPositions)

	// size = 1.5 * (0.5 + 0.5*0.475) * 1.0, then halved.
	assert.InDelta(t, 1.5*0.7375/2, snap.Recommendation.SizeMultiplier, 1e-9)
}

// A confident bullish reading 40 minutes into choppy is blocked by the
// duration gate: published label and confidence stay put, the raw
// classification is still visible in the snapshot.
func TestRunCycleBlockedByDuration(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)}
	col := &stubCollector{obs: feed.Observations{
		Counts:     feed.PatternCounts{LongCount: 29, ShortCount: 11},
		Quotes:     quotesAbove(),
		BreadthPct: 60,
	}}
	notifier := &captureNotifier{}
	p, tracker, _ := newTestPipeline(clk, col, notifier)
	entered := p.State().EnteredAt
	clk.Advance(40 * time.Minute)

	snap, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, regime.Choppy, snap.State.CurrentLabel)
	assert.InDelta(t, 0.50, snap.State.Confidence, 1e-9)
	assert.Equal(t, entered, snap.State.EnteredAt)
	assert.Equal(t, regime.StrongUptrend, snap.State.RawLabel)
	assert.InDelta(t, 0.95, snap.State.RawConfidence, 1e-9)
	assert.Equal(t, "blocked", snap.Smoother.TransitionState)
	assert.Equal(t, smoother.BlockedDuration, snap.Smoother.BlockedReason)

	assert.Equal(t, 0, tracker.Len())
	assert.Empty(t, notifier.changes)
}

// Without index quotes the regime runs pattern-only: confidence is
// capped at 0.70 and the state is marked degraded.
func TestRunCycleMacroUnavailable(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)}
	col := &stubCollector{obs: feed.Observations{
		Counts:     feed.PatternCounts{LongCount: 29, ShortCount: 11},
		BreadthPct: 55,
		Missing:    []string{"index_quotes"},
	}}
	p, _, _ := newTestPipeline(clk, col, &captureNotifier{})
	clk.Advance(3 * time.Hour)

	snap, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, regime.StrongUptrend, snap.State.CurrentLabel)
	assert.InDelta(t, 0.70, snap.State.Confidence, 1e-9)
	assert.False(t, snap.Macro.Available)
	assert.True(t, snap.State.Degraded)
	assert.Contains(t, snap.State.DegradedReason, "index_quotes")
	assert.Contains(t, snap.State.DegradedReason, "macro_unavailable")
}

// Rejected observations never touch the state: the previous reading is
// re-published marked degraded.
func TestRunCycleRejectedInputRetainsState(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)}
	col := &stubCollector{obs: feed.Observations{
		Counts:     feed.PatternCounts{LongCount: 2, ShortCount: 1},
		Quotes:     quotesAbove(),
		BreadthPct: 55,
	}}
	p, tracker, store := newTestPipeline(clk, col, &captureNotifier{})
	clk.Advance(3 * time.Hour)

	snap, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, regime.Choppy, snap.State.CurrentLabel)
	assert.InDelta(t, 0.50, snap.State.Confidence, 1e-9)
	assert.True(t, snap.State.Degraded)
	assert.NotEmpty(t, snap.State.DegradedReason)
	assert.Equal(t, 0, tracker.Len())

	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, snap.ID, latest.ID)
	assert.Equal(t, clk.Now(), latest.Timestamp)
}

type blockingCollector struct {
	started chan struct{}
	release chan struct{}
	obs     feed.Observations
}

func (b *blockingCollector) Collect(context.Context) feed.Observations {
	close(b.started)
	<-b.release
	return b.obs
}

func TestRunCycleRefusesOverlap(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)}
	col := &blockingCollector{
		started: make(chan struct{}),
		release: make(chan struct{}),
		obs: feed.Observations{
			Counts:     feed.PatternCounts{LongCount: 10, ShortCount: 10},
			Quotes:     quotesAbove(),
			BreadthPct: 50,
		},
	}

	calc := pattern.NewCalculator(pattern.DefaultThresholds())
	p := New(Deps{
		Calculator: calc,
		Analyzer:   macro.NewAnalyzer(macro.DefaultThresholds()),
		Classifier: fusion.NewClassifier(fusion.DefaultWeights()),
		Smoother:   smoother.New(smoother.DefaultConfig(), calc),
		Checker:    divergence.NewChecker(divergence.DefaultConfig()),
		Sizing:     policy.NewEngine(policy.DefaultConfig()),
		Tracker:    history.NewTracker(0),
		Collector:  col,
		Store:      snapshot.NewStore(30 * time.Minute),
		Metrics:    telemetry.NewMetrics(),
		Gate:       DefaultGateConfig(),
		Clock:      clk.Now,
	})

	done := make(chan error, 1)
	go func() {
		_, err := p.RunCycle(context.Background())
		done <- err
	}()
	<-col.started

	snap, err := p.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInFlight)
	assert.Nil(t, snap)

	close(col.release)
	require.NoError(t, <-done)

	// The slot is free again once the first cycle finishes.
	col.release = make(chan struct{})
	close(col.release)
	col.started = make(chan struct{})
	_, err = p.RunCycle(context.Background())
	require.NoError(t, err)
}

// Whatever the inputs do, the published confidence stays in its band.
func TestRunCyclePublishedConfidenceBounds(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)}
	col := &stubCollector{}
	p, _, _ := newTestPipeline(clk, col, &captureNotifier{})

	cases := []feed.Observations{
		{Counts: feed.PatternCounts{LongCount: 200, ShortCount: 5}, Quotes: quotesAbove(), BreadthPct: 5},
		{Counts: feed.PatternCounts{LongCount: 5, ShortCount: 200}, Quotes: quotesBelow(), BreadthPct: 95},
		{Counts: feed.PatternCounts{LongCount: 50, ShortCount: 50}, Quotes: quotesAbove(), BreadthPct: 50},
	}
	for _, obs := range cases {
		col.obs = obs
		clk.Advance(4 * time.Hour)
		snap, err := p.RunCycle(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, snap.State.Confidence, 0.30)
		assert.LessOrEqual(t, snap.State.Confidence, 0.95)
	}
}
