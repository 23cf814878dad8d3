// Package persistence defines the optional durable sinks for regime
// history and snapshots. Absence of a sink never affects classification;
// the pipeline logs and moves on when a write fails.
package persistence

import (
	"context"
	"time"

	"github.com/regimed/regimed/internal/domain/history"
	"github.com/regimed/regimed/internal/domain/regime"
)

// SnapshotRow is the durable form of a published snapshot.
type SnapshotRow struct {
	ID          string    `db:"id"`
	Timestamp   time.Time `db:"ts"`
	Label       string    `db:"label"`
	Confidence  float64   `db:"confidence"`
	RawLabel    string    `db:"raw_label"`
	Divergence  string    `db:"divergence"`
	Degraded    bool      `db:"degraded"`
	Payload     []byte    `db:"payload"` // full snapshot JSON
	CreatedAt   time.Time `db:"created_at"`
}

// HistoryRepo persists regime transitions and snapshots.
type HistoryRepo interface {
	// InsertChange appends one accepted transition.
	InsertChange(ctx context.Context, e history.Entry) error

	// RecentChanges returns up to limit transitions, newest first.
	RecentChanges(ctx context.Context, limit int) ([]history.Entry, error)

	// InsertSnapshot stores one published snapshot.
	InsertSnapshot(ctx context.Context, s *regime.Snapshot) error

	// LatestSnapshot returns the most recent stored snapshot, or nil.
	LatestSnapshot(ctx context.Context) (*regime.Snapshot, error)
}
