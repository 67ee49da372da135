package tagcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a TagStore backed by Redis strings with native TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore returns a store using client. Every tag is stored under
// prefix+tag.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get implements TagStore.
func (s *RedisStore) Get(ctx context.Context, tag string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+tag).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("tagcache: redis get %s: %w", tag, err)
	}
	return value, true, nil
}

// Set implements TagStore.
func (s *RedisStore) Set(ctx context.Context, tag string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+tag, value, ttl).Err(); err != nil {
		return fmt.Errorf("tagcache: redis set %s: %w", tag, err)
	}
	return nil
}

// Invalidate implements TagStore.
func (s *RedisStore) Invalidate(ctx context.Context, tag string) error {
	if err := s.client.Del(ctx, s.prefix+tag).Err(); err != nil {
		return fmt.Errorf("tagcache: redis del %s: %w", tag, err)
	}
	return nil
}
