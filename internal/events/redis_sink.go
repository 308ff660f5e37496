// SPDX-License-Identifier: MIT

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
	Channel  string // Pub/Sub channel prefix, e.g. "sessiond.events"
}

// RedisSink publishes events on Redis Pub/Sub.
// Every event goes to "<channel>" and to "<channel>.<sessionId>" so consumers can
// subscribe to one tenant.
type RedisSink struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
	timeout time.Duration
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(cfg RedisConfig, logger zerolog.Logger) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Str("channel", channelOrDefault(cfg.Channel)).
		Msg("connected to Redis event sink")

	return newRedisSinkWithClient(client, cfg.Channel, logger), nil
}

func newRedisSinkWithClient(client *redis.Client, channel string, logger zerolog.Logger) *RedisSink {
	return &RedisSink{
		client:  client,
		channel: channelOrDefault(channel),
		logger:  logger,
		timeout: 2 * time.Second,
	}
}

func channelOrDefault(ch string) string {
	if ch == "" {
		return "sessiond.events"
	}
	return ch
}

func (s *RedisSink) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.Publish(ctx, s.channel, payload)
	if ev.SessionID != "" {
		pipe.Publish(ctx, s.channel+"."+ev.SessionID, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("redis publish failed")
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Ping checks connectivity (readiness).
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
