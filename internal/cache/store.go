package cache

import (
	"context"
	"time"
)

// Store is the shared counter/value store behind the brute-force guard and
// the transport rate limiter. Implementations must make IncrementWithTTL
// atomic: the guard's thresholds depend on it.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
