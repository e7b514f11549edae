package queue

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DedupeStore guards against double-enqueueing the same job while one is
// already in flight. The LifecycleCoordinator sets a short-TTL key per
// (session_id, target_watermark, job_kind) before enqueueing; a retried
// on_turn call within the same TTL window sees the key present and skips
// the enqueue.
type DedupeStore interface {
	// SetIfAbsent returns true if key was not present and is now set with
	// ttl, false if key was already present (a duplicate).
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisDedupeStore is a Redis-backed DedupeStore.
type RedisDedupeStore struct {
	client *redis.Client
}

// NewRedisDedupeStore connects to addr and pings it to validate the
// connection before returning.
func NewRedisDedupeStore(addr string) (*RedisDedupeStore, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisDedupeStore{client: c}, nil
}

// SetIfAbsent implements DedupeStore via Redis SETNX semantics.
func (s *RedisDedupeStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Close closes the underlying Redis client.
func (s *RedisDedupeStore) Close() error {
	return s.client.Close()
}

// NoopDedupeStore always reports the key as absent; it is used when no Redis
// URL is configured so the LifecycleCoordinator can run without the
// best-effort suppression.
type NoopDedupeStore struct{}

// SetIfAbsent always succeeds, since there is no shared state to guard.
func (NoopDedupeStore) SetIfAbsent(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}
