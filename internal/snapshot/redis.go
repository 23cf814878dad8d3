package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/common/model"

	"github.com/regimed/regimed/internal/domain/regime"
)

// RedisConfig holds the optional Redis publication settings.
type RedisConfig struct {
	Enabled bool           `yaml:"enabled"`
	Addr    string         `yaml:"addr"`
	Key     string         `yaml:"key"` // default "regimed:snapshot"
	TTL     model.Duration `yaml:"ttl"` // default 1h
}

// DefaultRedisConfig returns the production defaults, disabled.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr: "localhost:6379",
		Key:  "regimed:snapshot",
		TTL:  model.Duration(time.Hour),
	}
}

// RedisPublisher mirrors each published snapshot into a Redis key so
// out-of-process dashboards can read it without hitting the HTTP API.
// Publication failures are reported but must never affect the cycle.
type RedisPublisher struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisPublisher builds a publisher over an existing client.
func NewRedisPublisher(client redis.Cmdable, cfg RedisConfig) *RedisPublisher {
	return &RedisPublisher{client: client, key: cfg.Key, ttl: time.Duration(cfg.TTL)}
}

// NewRedisPublisherForAddr dials cfg.Addr and builds a publisher.
func NewRedisPublisherForAddr(cfg RedisConfig) *RedisPublisher {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	return NewRedisPublisher(client, cfg)
}

// Publish writes the snapshot as JSON with the configured TTL. The TTL
// doubles as a staleness guard for readers that only see Redis.
func (p *RedisPublisher) Publish(ctx context.Context, s *regime.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := p.client.Set(ctx, p.key, payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("publish snapshot to redis: %w", err)
	}
	return nil
}

// Fetch reads the last published snapshot back, for the status CLI.
func (p *RedisPublisher) Fetch(ctx context.Context) (*regime.Snapshot, error) {
	payload, err := p.client.Get(ctx, p.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot from redis: %w", err)
	}
	var s regime.Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}
