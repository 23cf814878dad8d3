// Package postgres implements the persistence interfaces against
// PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/regimed/regimed/internal/domain/history"
	"github.com/regimed/regimed/internal/domain/regime"
	"github.com/regimed/regimed/internal/persistence"
)

// Schema for reference; migrations are applied out of band.
//
//	CREATE TABLE regime_changes (
//	    id BIGSERIAL PRIMARY KEY,
//	    ts TIMESTAMPTZ NOT NULL,
//	    from_label TEXT NOT NULL,
//	    to_label TEXT NOT NULL,
//	    confidence_at_change DOUBLE PRECISION NOT NULL,
//	    previous_duration_secs DOUBLE PRECISION NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE TABLE regime_snapshots (
//	    id UUID PRIMARY KEY,
//	    ts TIMESTAMPTZ NOT NULL,
//	    label TEXT NOT NULL,
//	    confidence DOUBLE PRECISION NOT NULL,
//	    raw_label TEXT NOT NULL,
//	    divergence TEXT NOT NULL,
//	    degraded BOOLEAN NOT NULL,
//	    payload JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);

type historyRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewHistoryRepo creates a PostgreSQL-backed history repository.
func NewHistoryRepo(db *sqlx.DB, timeout time.Duration) persistence.HistoryRepo {
	return &historyRepo{db: db, timeout: timeout}
}

// Open dials the database and verifies connectivity.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

func (r *historyRepo) InsertChange(ctx context.Context, e history.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO regime_changes (ts, from_label, to_label, confidence_at_change, previous_duration_secs)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		e.Timestamp, e.From.String(), e.To.String(),
		e.ConfidenceAtChange, e.PreviousDuration.Seconds())
	if err != nil {
		return fmt.Errorf("insert regime change: %w", err)
	}
	return nil
}

func (r *historyRepo) RecentChanges(ctx context.Context, limit int) ([]history.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, from_label, to_label, confidence_at_change, previous_duration_secs
		FROM regime_changes
		ORDER BY ts DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query regime changes: %w", err)
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		var (
			ts           time.Time
			fromLabel    string
			toLabel      string
			confidence   float64
			durationSecs float64
		)
		if err := rows.Scan(&ts, &fromLabel, &toLabel, &confidence, &durationSecs); err != nil {
			return nil, fmt.Errorf("scan regime change: %w", err)
		}

		from, err := regime.ParseLabel(fromLabel)
		if err != nil {
			return nil, fmt.Errorf("stored from_label: %w", err)
		}
		to, err := regime.ParseLabel(toLabel)
		if err != nil {
			return nil, fmt.Errorf("stored to_label: %w", err)
		}

		entries = append(entries, history.Entry{
			Timestamp:          ts,
			From:               from,
			To:                 to,
			ConfidenceAtChange: confidence,
			PreviousDuration:   time.Duration(durationSecs * float64(time.Second)),
		})
	}
	return entries, rows.Err()
}

func (r *historyRepo) InsertSnapshot(ctx context.Context, s *regime.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO regime_snapshots (id, ts, label, confidence, raw_label, divergence, degraded, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.Timestamp, s.State.CurrentLabel.String(), s.State.Confidence,
		s.State.RawLabel.String(), s.State.Divergence.String(), s.State.Degraded, payload)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (r *historyRepo) LatestSnapshot(ctx context.Context) (*regime.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var payload []byte
	err := r.db.QueryRowxContext(ctx,
		`SELECT payload FROM regime_snapshots ORDER BY ts DESC LIMIT 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}

	var s regime.Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("unmarshal stored snapshot: %w", err)
	}
	return &s, nil
}
