// Package scheduler drives the classification pipeline at a fixed
// cadence. The pipeline itself guards against overlap; the scheduler just
// ticks and reports.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/common/model"
	"github.com/rs/zerolog/log"

	"github.com/regimed/regimed/internal/application/pipeline"
	"github.com/regimed/regimed/internal/domain/regime"
)

// Runner is the unit of work executed each tick.
type Runner interface {
	RunCycle(ctx context.Context) (*regime.Snapshot, error)
}

// Config holds the loop settings.
type Config struct {
	Interval   model.Duration `yaml:"interval"`     // cycle cadence, default 15m
	RunOnStart bool           `yaml:"run_on_start"` // run one cycle immediately, default true
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{Interval: model.Duration(15 * time.Minute), RunOnStart: true}
}

// Loop ticks the runner until the context is cancelled.
type Loop struct {
	cfg    Config
	runner Runner
}

// NewLoop builds a loop over runner.
func NewLoop(cfg Config, runner Runner) *Loop {
	return &Loop{cfg: cfg, runner: runner}
}

// Run blocks until ctx is cancelled. Cycle errors are logged, never
// propagated: the next tick gets a clean start.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().Dur("interval", time.Duration(l.cfg.Interval)).Msg("scheduler started")

	if l.cfg.RunOnStart {
		l.tick(ctx)
	}

	ticker := time.NewTicker(time.Duration(l.cfg.Interval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	started := time.Now()
	snap, err := l.runner.RunCycle(ctx)
	switch {
	case errors.Is(err, pipeline.ErrCycleInFlight):
		// Already counted by the pipeline; just surface it.
		log.Warn().Msg("tick skipped, cycle still in flight")
	case err != nil:
		log.Error().Err(err).Msg("cycle failed")
	default:
		log.Debug().
			Str("regime", snap.State.CurrentLabel.String()).
			Dur("took", time.Since(started)).
			Msg("tick complete")
	}
}
