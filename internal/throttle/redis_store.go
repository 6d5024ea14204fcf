// Package throttle provides a Redis-backed failed-login counter.
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore counts failed login attempts per account within a rolling
// window. It denies nothing by itself; callers compare Failures against
// their limit before attempting authentication.
type RedisStore struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisStore connects to Redis and returns a throttle store.
func NewRedisStore(redisURL string, window time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "loginfail:", window: window}, nil
}

func (s *RedisStore) key(username string) string {
	return s.prefix + username
}

// RecordFailure increments the failure counter for an account and returns
// the new count. The window starts at the first failure and is not extended
// by later ones.
func (s *RedisStore) RecordFailure(ctx context.Context, username string) (int64, error) {
	key := s.key(username)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, s.window).Err(); err != nil {
			return 0, fmt.Errorf("set failure window: %w", err)
		}
	}
	return count, nil
}

// Failures returns the current failure count for an account.
func (s *RedisStore) Failures(ctx context.Context, username string) (int64, error) {
	count, err := s.client.Get(ctx, s.key(username)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read login failures: %w", err)
	}
	return count, nil
}

// Reset clears the failure counter, typically after a successful login.
func (s *RedisStore) Reset(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, s.key(username)).Err(); err != nil {
		return fmt.Errorf("reset login failures: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
