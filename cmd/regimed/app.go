package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/regimed/regimed/internal/application/pipeline"
	"github.com/regimed/regimed/internal/application/predictor"
	"github.com/regimed/regimed/internal/config"
	"github.com/regimed/regimed/internal/domain/divergence"
	"github.com/regimed/regimed/internal/domain/fusion"
	"github.com/regimed/regimed/internal/domain/history"
	"github.com/regimed/regimed/internal/domain/macro"
	"github.com/regimed/regimed/internal/domain/pattern"
	"github.com/regimed/regimed/internal/domain/policy"
	"github.com/regimed/regimed/internal/domain/smoother"
	httpapi "github.com/regimed/regimed/internal/interfaces/http"
	"github.com/regimed/regimed/internal/infrastructure/feed"
	"github.com/regimed/regimed/internal/notify"
	"github.com/regimed/regimed/internal/persistence"
	"github.com/regimed/regimed/internal/persistence/postgres"
	"github.com/regimed/regimed/internal/snapshot"
	"github.com/regimed/regimed/internal/telemetry"
)

// app bundles the wired service for the run and cycle commands.
type app struct {
	cfg      config.Config
	pipeline *pipeline.Pipeline
	store    *snapshot.Store
	tracker  *history.Tracker
	metrics  *telemetry.Metrics
	server   *httpapi.Server
}

// buildApp wires all collaborators from the configuration. Optional
// sinks (Redis, Postgres, predictor) stay nil when disabled.
func buildApp(cfg config.Config) (*app, error) {
	calc := pattern.NewCalculator(cfg.Pattern)
	metrics := telemetry.NewMetrics()
	store := snapshot.NewStore(time.Duration(cfg.Freshness))
	tracker := history.NewTracker(cfg.History.MaxEntries)

	source := feed.NewHTTPSource(feed.HTTPConfig{
		BaseURL:     cfg.Feed.BaseURL,
		Timeout:     time.Duration(cfg.Feed.Timeout),
		MaxRetries:  cfg.Feed.MaxRetries,
		BreakerHold: time.Duration(cfg.Feed.BreakerHold),
	})
	collector := feed.NewCollector(source, feed.CollectorConfig{
		CallTimeout: time.Duration(cfg.Feed.CallTimeout),
		RatePerSec:  cfg.Feed.RatePerSec,
		RateBurst:   cfg.Feed.RateBurst,
	})

	var adapter *predictor.Adapter
	if cfg.Predictor.Enabled {
		classifier := predictor.NewHTTPClassifier(cfg.Predictor.URL)
		adapter = predictor.NewAdapter(classifier, cfg.Predictor.Adapter)
	}

	var redisPub *snapshot.RedisPublisher
	if cfg.Redis.Enabled {
		redisPub = snapshot.NewRedisPublisherForAddr(cfg.Redis)
	}

	var repo persistence.HistoryRepo
	if cfg.Postgres.Enabled {
		db, err := postgres.Open(cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo = postgres.NewHistoryRepo(db, time.Duration(cfg.Postgres.Timeout))
	}

	server := httpapi.NewServer(cfg.HTTP, store, tracker, metrics)

	p := pipeline.New(pipeline.Deps{
		Calculator: calc,
		Analyzer:   macro.NewAnalyzer(cfg.Macro),
		Classifier: fusion.NewClassifier(cfg.Fusion),
		Smoother:   smoother.New(cfg.Smoother, calc),
		Checker:    divergence.NewChecker(cfg.Divergence),
		Sizing:     policy.NewEngine(cfg.Policy),
		Tracker:    tracker,
		Collector:  collector,
		Adapter:    adapter,
		Store:      store,
		RedisPub:   redisPub,
		Repo:       repo,
		Notifier:   notify.Multi{notify.LogNotifier{}, server.Hub()},
		Metrics:    metrics,
		Gate:       cfg.Gate,
	})

	log.Info().
		Bool("predictor", cfg.Predictor.Enabled).
		Bool("redis", cfg.Redis.Enabled).
		Bool("postgres", cfg.Postgres.Enabled).
		Msg("service wired")

	return &app{
		cfg:      cfg,
		pipeline: p,
		store:    store,
		tracker:  tracker,
		metrics:  metrics,
		server:   server,
	}, nil
}
