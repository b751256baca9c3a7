// Package kvstore keeps performance records in Redis.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pavelanni/quiztutor/internal/model"
)

const keyPrefix = "quiztutor:perf:"

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// TTL expires idle records. Zero keeps them forever.
	TTL time.Duration
}

// RedisStore implements the performance store on Redis. Each record is one
// JSON value.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, cfg Config) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     50,
		MinIdleConns: 5,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return New(rdb, cfg.TTL), nil
}

// New wraps an existing client.
func New(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// redisKey escapes each component so that no two keys share a Redis key.
func redisKey(key model.SessionKey) string {
	return keyPrefix + url.QueryEscape(key.StudentID) + "/" +
		url.QueryEscape(key.Subject) + "/" + url.QueryEscape(key.Week)
}

// GetPerformance returns nil and nil error when no record exists.
func (s *RedisStore) GetPerformance(ctx context.Context, key model.SessionKey) (*model.PerformanceState, error) {
	data, err := s.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	p := model.NewPerformanceState()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if p.Answers == nil {
		p.Answers = make(map[int][]model.AttemptRecord)
	}
	return p, nil
}

func (s *RedisStore) PutPerformance(ctx context.Context, key model.SessionKey, state *model.PerformanceState) error {
	if err := key.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
