// Package snapshot publishes immutable regime snapshots to concurrent
// readers. Publication is write-then-swap: readers always see either the
// previous complete snapshot or the new one, never a partial update.
package snapshot

import (
	"sync/atomic"
	"time"

	"github.com/regimed/regimed/internal/domain/regime"
)

// Store is the in-process single-writer/multi-reader snapshot holder.
type Store struct {
	current   atomic.Pointer[regime.Snapshot]
	freshness time.Duration
}

// NewStore builds a store with the given freshness threshold for
// staleness checks.
func NewStore(freshness time.Duration) *Store {
	return &Store{freshness: freshness}
}

// Publish swaps in a new snapshot. The caller must not mutate s after
// publishing.
func (st *Store) Publish(s *regime.Snapshot) {
	st.current.Store(s)
}

// Latest returns the current snapshot, or ok=false before the first
// publish.
func (st *Store) Latest() (*regime.Snapshot, bool) {
	s := st.current.Load()
	return s, s != nil
}

// Stale reports whether the published snapshot has outlived the
// freshness threshold. A store with no snapshot yet reads as stale.
func (st *Store) Stale(now time.Time) bool {
	s := st.current.Load()
	if s == nil {
		return true
	}
	return s.Stale(now, st.freshness)
}

// Freshness returns the configured threshold.
func (st *Store) Freshness() time.Duration {
	return st.freshness
}
