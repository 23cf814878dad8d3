package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regimed/regimed/internal/domain/regime"
)

func entry(ts time.Time, from, to regime.Label, prev time.Duration) Entry {
	return Entry{Timestamp: ts, From: from, To: to, ConfidenceAtChange: 0.8, PreviousDuration: prev}
}

func TestTrackerAppendAndRecent(t *testing.T) {
	tr := NewTracker(0)
	now := time.Now()

	tr.Append(entry(now.Add(-2*time.Hour), regime.Choppy, regime.Uptrend, time.Hour))
	tr.Append(entry(now.Add(-1*time.Hour), regime.Uptrend, regime.ChoppyBullish, time.Hour))

	assert.Equal(t, 2, tr.Len())

	recent := tr.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, regime.ChoppyBullish, recent[0].To)

	// Oversized and non-positive requests both mean "everything".
	assert.Len(t, tr.Recent(10), 2)
	assert.Len(t, tr.Recent(0), 2)
}

func TestTrackerEviction(t *testing.T) {
	tr := NewTracker(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		tr.Append(entry(now.Add(time.Duration(i)*time.Minute), regime.Choppy, regime.Uptrend, time.Minute))
	}

	assert.Equal(t, 3, tr.Len())
	oldest := tr.Recent(3)[0]
	assert.Equal(t, now.Add(2*time.Minute), oldest.Timestamp)
}

func TestTrackerSince(t *testing.T) {
	tr := NewTracker(0)
	now := time.Now()

	tr.Append(entry(now.Add(-3*time.Hour), regime.Choppy, regime.Uptrend, time.Hour))
	tr.Append(entry(now.Add(-1*time.Hour), regime.Uptrend, regime.Choppy, 2*time.Hour))

	got := tr.Since(now.Add(-2 * time.Hour))
	require.Len(t, got, 1)
	assert.Equal(t, regime.Choppy, got[0].To)
}

func TestStatsSingleChange(t *testing.T) {
	tr := NewTracker(0)
	now := time.Date(2025, 6, 12, 18, 0, 0, 0, time.UTC)

	// Choppy for 18h, then uptrend for the last 6h of a 24h window.
	changed := now.Add(-6 * time.Hour)
	tr.Append(entry(changed, regime.Choppy, regime.Uptrend, 18*time.Hour))

	stats := tr.Stats(now, 24*time.Hour, regime.Uptrend, changed)
	assert.Equal(t, 1, stats.Changes)
	assert.InDelta(t, 0.25, stats.TimeInLabel["uptrend"], 1e-9)
	assert.InDelta(t, 0.75, stats.TimeInLabel["choppy"], 1e-9)
	assert.Equal(t, regime.Uptrend, stats.Current)
	assert.Equal(t, 6*time.Hour, stats.CurrentAge)
}

func TestStatsEmptyLog(t *testing.T) {
	tr := NewTracker(0)
	now := time.Now()

	// The current label has held since before the window opened.
	stats := tr.Stats(now, 24*time.Hour, regime.Choppy, now.Add(-48*time.Hour))
	assert.Equal(t, 0, stats.Changes)
	assert.InDelta(t, 1.0, stats.TimeInLabel["choppy"], 1e-9)
}

func TestStatsChangeOutsideWindow(t *testing.T) {
	tr := NewTracker(0)
	now := time.Now()

	changed := now.Add(-30 * time.Hour)
	tr.Append(entry(changed, regime.Downtrend, regime.Choppy, 5*time.Hour))

	stats := tr.Stats(now, 24*time.Hour, regime.Choppy, changed)
	assert.Equal(t, 0, stats.Changes)
	assert.InDelta(t, 1.0, stats.TimeInLabel["choppy"], 1e-9)
	assert.NotContains(t, stats.TimeInLabel, "downtrend")
}

func TestStatsMultipleChanges(t *testing.T) {
	tr := NewTracker(0)
	now := time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC)

	// choppy (6h) -> uptrend (3h) -> choppy_bullish (3h, current).
	tr.Append(entry(now.Add(-6*time.Hour), regime.Choppy, regime.Uptrend, 6*time.Hour))
	tr.Append(entry(now.Add(-3*time.Hour), regime.Uptrend, regime.ChoppyBullish, 3*time.Hour))

	stats := tr.Stats(now, 12*time.Hour, regime.ChoppyBullish, now.Add(-3*time.Hour))
	assert.Equal(t, 2, stats.Changes)
	assert.InDelta(t, 0.25, stats.TimeInLabel["choppy_bullish"], 1e-9)
	assert.InDelta(t, 0.25, stats.TimeInLabel["uptrend"], 1e-9)
	assert.InDelta(t, 0.5, stats.TimeInLabel["choppy"], 1e-9)
}
