package regime

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *Snapshot {
	now := time.Date(2025, 6, 12, 14, 30, 0, 0, time.UTC)
	return &Snapshot{
		ID: "5aa2f7d4-5c4f-4d38-b6c1-1f6e9a3a7b10",
		State: State{
			CurrentLabel:   Uptrend,
			Confidence:     0.81,
			RawLabel:       StrongUptrend,
			RawConfidence:  0.88,
			EnteredAt:      now.Add(-5 * time.Hour),
			Divergence:     DivergenceModerate,
			DivergenceNote: "breadth leans against uptrend: 54.0% opposing",
			Timestamp:      now,
		},
		Recommendation: Recommendation{
			SizeMultiplier:     0.94,
			StopLossMultiplier: 1.0,
			MaxPositions:       8,
			PreferredDirection: DirectionLong,
			RiskPerTrade:       0.0085,
			Advice:             "reduce_size",
		},
		Pattern: PatternDiag{
			LongCount:  31,
			ShortCount: 17,
			Ratio:      1.8235,
			Bucket:     "bullish",
			Label:      Uptrend,
			Confidence: 0.78,
		},
		Macro: MacroDiag{
			Available:     true,
			Signal:        "bullish",
			FractionAbove: 0.75,
			Confidence:    0.75,
			Indices: []IndexDiag{
				{Name: "SPX", Price: 5310.2, MovingAverage: 5180.7, Above: true, PositionPct: 2.5},
				{Name: "NDX", Price: 18720.0, MovingAverage: 18950.5, Above: false, PositionPct: -1.22},
			},
		},
		Predictor: PredictorDiag{Available: true, Label: Uptrend, Confidence: 0.83, Applied: true},
		Smoother: SmootherDiag{
			SmoothedRatio:   1.71,
			SmoothedLabel:   Uptrend,
			Volatility:      0.12,
			TransitionState: "accepted",
		},
		OpposingPct: 54.0,
		Timestamp:   now,
	}
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	original := sampleSnapshot()

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, *original, back)
}

func TestSnapshotStale(t *testing.T) {
	s := sampleSnapshot()
	assert.False(t, s.Stale(s.Timestamp.Add(10*time.Minute), 30*time.Minute))
	assert.True(t, s.Stale(s.Timestamp.Add(31*time.Minute), 30*time.Minute))
}

func TestFormatReport(t *testing.T) {
	report := sampleSnapshot().FormatReport()

	assert.Contains(t, report, "Regime: uptrend (81.0% confidence)")
	assert.Contains(t, report, "SPX")
	assert.Contains(t, report, "Divergence: moderate")
	assert.True(t, strings.HasSuffix(report, "\n"))

	var nilSnap *Snapshot
	assert.Contains(t, nilSnap.FormatReport(), "No regime snapshot")
}

func TestNewStateDefaults(t *testing.T) {
	now := time.Now()
	s := NewState(now)

	assert.Equal(t, Choppy, s.CurrentLabel)
	assert.Equal(t, 0.50, s.Confidence)
	assert.Equal(t, DivergenceNone, s.Divergence)
	assert.Equal(t, time.Duration(0), s.Age(now))
}
