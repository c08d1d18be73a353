package providers

import (
	"context"
)

// CacheProvider defines the interface for comps-cache storage backends.
// Freshness policy (per-status TTLs) is the comps service's business;
// a provider only stores and returns raw entries.
type CacheProvider interface {
	// Get retrieves a value from cache. The second return value reports
	// whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value in cache, replacing any prior entry wholesale.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error
}
