package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service is the key-value contract shared by the token store, the rate-limit
// counters and the snapshot cache. Implementations must be safe for concurrent use.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	// Increment adds one to the integer at key. When the key is created by this
	// call and ttl > 0 the key expires after ttl; an existing TTL is left alone.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// GetTyped reads key into a fresh T.
func GetTyped[T any](ctx context.Context, c Service, key string) (*T, error) {
	var v T
	if err := c.Get(ctx, key, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
