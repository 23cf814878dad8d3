// Package config loads and validates the full tuning surface. Every
// numeric threshold in the classification core is empirically tuned and
// therefore externally configurable; code carries the defaults only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"

	"github.com/regimed/regimed/internal/application/pipeline"
	"github.com/regimed/regimed/internal/application/predictor"
	"github.com/regimed/regimed/internal/domain/divergence"
	"github.com/regimed/regimed/internal/domain/fusion"
	"github.com/regimed/regimed/internal/domain/macro"
	"github.com/regimed/regimed/internal/domain/pattern"
	"github.com/regimed/regimed/internal/domain/policy"
	"github.com/regimed/regimed/internal/domain/smoother"
	httpapi "github.com/regimed/regimed/internal/interfaces/http"
	"github.com/regimed/regimed/internal/scheduler"
	"github.com/regimed/regimed/internal/snapshot"
)

// Config is the complete service configuration. Durations use the
// Prometheus duration format so YAML can say "30m" or "2h".
type Config struct {
	LogLevel  string         `yaml:"log_level"` // default "info"
	Freshness model.Duration `yaml:"freshness"` // snapshot staleness threshold, default 30m

	Scheduler  scheduler.Config     `yaml:"scheduler"`
	Pattern    pattern.Thresholds   `yaml:"pattern"`
	Macro      macro.Thresholds     `yaml:"macro"`
	Fusion     fusion.Weights       `yaml:"fusion"`
	Smoother   smoother.Config      `yaml:"smoother"`
	Divergence divergence.Config    `yaml:"divergence"`
	Policy     policy.Config        `yaml:"policy"`
	Gate       pipeline.GateConfig  `yaml:"gate"`
	Predictor  PredictorConfig      `yaml:"predictor"`
	Feed       FeedConfig           `yaml:"feed"`
	HTTP       httpapi.Config       `yaml:"http"`
	Redis      snapshot.RedisConfig `yaml:"redis"`
	Postgres   PostgresConfig       `yaml:"postgres"`
	History    HistoryConfig        `yaml:"history"`
}

// PredictorConfig wraps the adapter knobs plus the enable switch.
type PredictorConfig struct {
	Enabled bool             `yaml:"enabled"`
	URL     string           `yaml:"url"`
	Adapter predictor.Config `yaml:",inline"`
}

// FeedConfig wraps the collector budgets and the HTTP source location.
type FeedConfig struct {
	BaseURL     string         `yaml:"base_url"`
	CallTimeout model.Duration `yaml:"call_timeout"`
	RatePerSec  float64        `yaml:"rate_per_sec"`
	RateBurst   int            `yaml:"rate_burst"`
	Timeout     model.Duration `yaml:"timeout"`
	MaxRetries  uint64         `yaml:"max_retries"`
	BreakerHold model.Duration `yaml:"breaker_hold"`
}

// PostgresConfig holds the optional durable history sink.
type PostgresConfig struct {
	Enabled bool           `yaml:"enabled"`
	DSN     string         `yaml:"dsn"`
	Timeout model.Duration `yaml:"timeout"` // per-query, default 5s
}

// HistoryConfig holds the in-memory tracker bounds.
type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries"` // default 1000; zero keeps everything
}

// Default returns the full tuned default configuration.
func Default() Config {
	return Config{
		LogLevel:   "info",
		Freshness:  model.Duration(30 * time.Minute),
		Scheduler:  scheduler.DefaultConfig(),
		Pattern:    pattern.DefaultThresholds(),
		Macro:      macro.DefaultThresholds(),
		Fusion:     fusion.DefaultWeights(),
		Smoother:   smoother.DefaultConfig(),
		Divergence: divergence.DefaultConfig(),
		Policy:     policy.DefaultConfig(),
		Gate:       pipeline.DefaultGateConfig(),
		Predictor: PredictorConfig{
			Adapter: predictor.DefaultConfig(),
		},
		Feed: FeedConfig{
			BaseURL:     "http://localhost:8085",
			CallTimeout: model.Duration(5 * time.Second),
			RatePerSec:  5,
			RateBurst:   5,
			Timeout:     model.Duration(10 * time.Second),
			MaxRetries:  2,
			BreakerHold: model.Duration(2 * time.Minute),
		},
		HTTP:  httpapi.DefaultConfig(),
		Redis: snapshot.DefaultRedisConfig(),
		Postgres: PostgresConfig{
			Timeout: model.Duration(5 * time.Second),
		},
		History: HistoryConfig{MaxEntries: 1000},
	}
}

// Load reads path, overlaying the defaults, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultPath returns the conventional config location.
func DefaultPath() string {
	return filepath.Join("config", "regimed.yaml")
}

// Validate applies cross-field sanity checks on the tuned thresholds.
func (c Config) Validate() error {
	if c.Freshness <= 0 {
		return fmt.Errorf("freshness must be positive")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}

	p := c.Pattern
	if !(p.StrongBullish > p.Bullish && p.Bullish > p.NeutralBullish &&
		p.NeutralBullish > p.NeutralBearish && p.NeutralBearish > p.Bearish &&
		p.Bearish > p.StrongBearish) {
		return fmt.Errorf("pattern thresholds must be strictly ordered")
	}

	m := c.Macro
	if !(m.StrongBullish > m.Bullish && m.Bullish > m.Neutral && m.Neutral > m.Bearish) {
		return fmt.Errorf("macro thresholds must be strictly ordered")
	}

	w := c.Fusion
	if w.PatternWeight <= 0 || w.MacroWeight < 0 {
		return fmt.Errorf("fusion weights must be positive")
	}
	if sum := w.PatternWeight + w.MacroWeight; sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("fusion weights sum to %.3f, expected 1.0", sum)
	}
	if w.ConfidenceFloor >= w.ConfidenceCeiling {
		return fmt.Errorf("fusion confidence floor must sit below ceiling")
	}

	s := c.Smoother
	if s.MinDuration <= 0 {
		return fmt.Errorf("smoother min_duration must be positive")
	}
	if s.ExtremeLow >= s.ExtremeHigh {
		return fmt.Errorf("smoother extreme bounds inverted")
	}
	if s.RatioWindow < 2 || s.BlendWindow < 1 {
		return fmt.Errorf("smoother windows too small")
	}
	if s.CurrentWeight < 0 || s.CurrentWeight > 1 {
		return fmt.Errorf("smoother current_weight outside [0,1]")
	}

	d := c.Divergence
	if !(d.ExtremePct > d.StrongPct && d.StrongPct > d.ModeratePct) {
		return fmt.Errorf("divergence thresholds must be strictly ordered")
	}
	if d.ExtremeMultiplier <= 0 || d.ExtremeMultiplier >= 1 ||
		d.ModerateMultiplier <= 0 || d.ModerateMultiplier >= 1 {
		return fmt.Errorf("divergence multipliers must sit in (0,1)")
	}

	pol := c.Policy
	if len(pol.SizeMultipliers) != 7 || len(pol.StopMultipliers) != 7 || len(pol.MaxPositions) != 7 {
		return fmt.Errorf("policy tables must cover all seven labels")
	}
	for i := 1; i < len(pol.SizeMultipliers); i++ {
		if pol.SizeMultipliers[i] > pol.SizeMultipliers[i-1] {
			return fmt.Errorf("policy size multipliers must not increase toward bearish labels")
		}
	}

	if c.Predictor.Enabled && c.Predictor.URL == "" {
		return fmt.Errorf("predictor enabled but no url configured")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres enabled but no dsn configured")
	}

	return nil
}
