package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flipscan/arbcheck/internal/domain/providers"
	redisclient "github.com/flipscan/arbcheck/internal/infrastructure/clients/redis"
)

// Entries older than the longest status TTL (7 days for OK) are garbage
// to every reader, so Redis evicts them at that horizon.
const redisMaxRetention = 7 * 24 * time.Hour

// RedisAdapter implements the CacheProvider interface using Redis.
// Selected with CACHE_BACKEND=redis; the default backend is the
// file-backed adapter.
type RedisAdapter struct {
	client *redisclient.Client
}

// NewRedisAdapter creates a new Redis cache adapter
func NewRedisAdapter(client *redisclient.Client) providers.CacheProvider {
	return &RedisAdapter{
		client: client,
	}
}

// Get retrieves a value from cache
func (a *RedisAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := a.client.Client().Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get from cache: %w", err)
	}
	return result, true, nil
}

// Set stores a value in cache, replacing any prior entry wholesale
func (a *RedisAdapter) Set(ctx context.Context, key string, value []byte) error {
	if err := a.client.Client().Set(ctx, key, value, redisMaxRetention).Err(); err != nil {
		return fmt.Errorf("failed to set in cache: %w", err)
	}
	return nil
}

// Delete removes a value from cache
func (a *RedisAdapter) Delete(ctx context.Context, key string) error {
	if err := a.client.Client().Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete from cache: %w", err)
	}
	return nil
}
