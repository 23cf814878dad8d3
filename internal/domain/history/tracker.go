// Package history keeps the append-only log of regime transitions and
// the rolling stability statistics derived from it.
package history

import (
	"sync"
	"time"

	"github.com/regimed/regimed/internal/domain/regime"
)

// Entry records one accepted regime transition.
type Entry struct {
	Timestamp          time.Time     `json:"timestamp" db:"ts"`
	From               regime.Label  `json:"from_label" db:"from_label"`
	To                 regime.Label  `json:"to_label" db:"to_label"`
	ConfidenceAtChange float64       `json:"confidence_at_change" db:"confidence_at_change"`
	PreviousDuration   time.Duration `json:"duration_of_previous_state" db:"previous_duration"`
}

// Stats summarizes regime stability over a rolling window.
type Stats struct {
	Window      time.Duration            `json:"window"`
	TimeInLabel map[string]float64       `json:"time_in_label"` // fraction of window per label
	Changes     int                      `json:"changes"`
	Current     regime.Label             `json:"current"`
	CurrentAge  time.Duration            `json:"current_age"`
}

// Tracker is the in-memory transition log. Appends come only from the
// single-writer pipeline; reads may come from HTTP handlers, hence the
// read lock.
type Tracker struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
}

// NewTracker builds a tracker retaining at most max entries; zero means
// an unbounded log.
func NewTracker(max int) *Tracker {
	return &Tracker{max: max}
}

// Append records one transition, evicting the oldest entry past the cap.
func (t *Tracker) Append(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
	if t.max > 0 && len(t.entries) > t.max {
		t.entries = t.entries[len(t.entries)-t.max:]
	}
}

// Len returns the number of retained entries.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Recent returns up to n most recent entries, newest last.
func (t *Tracker) Recent(n int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]Entry, n)
	copy(out, t.entries[len(t.entries)-n:])
	return out
}

// Since returns all entries at or after cutoff, oldest first.
func (t *Tracker) Since(cutoff time.Time) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Entry
	for _, e := range t.entries {
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Stats computes time-in-label fractions over the trailing window ending
// at now. The walk runs the transition log backwards from the current
// label so the fractions cover the whole window even when it predates
// the oldest retained entry.
func (t *Tracker) Stats(now time.Time, window time.Duration, current regime.Label, enteredAt time.Time) Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := now.Add(-window)
	inLabel := make(map[string]float64)
	changes := 0

	segEnd := now
	label := current
	segStart := enteredAt

	apply := func(label regime.Label, start, end time.Time) {
		if end.Before(cutoff) || !end.After(start) {
			return
		}
		if start.Before(cutoff) {
			start = cutoff
		}
		inLabel[label.String()] += end.Sub(start).Seconds()
	}

	applied := false
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if e.Timestamp.After(segEnd) {
			continue
		}
		apply(label, segStart, segEnd)
		applied = true
		if !e.Timestamp.Before(cutoff) {
			changes++
		}
		if segStart.Before(cutoff) {
			break
		}
		segEnd = e.Timestamp
		label = e.From
		segStart = e.Timestamp.Add(-e.PreviousDuration)
		applied = false
	}
	if !applied {
		apply(label, segStart, segEnd)
	}

	total := window.Seconds()
	for k, v := range inLabel {
		inLabel[k] = v / total
	}

	return Stats{
		Window:      window,
		TimeInLabel: inLabel,
		Changes:     changes,
		Current:     current,
		CurrentAge:  now.Sub(enteredAt),
	}
}
