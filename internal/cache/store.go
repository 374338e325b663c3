package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss reports that a key is absent or has expired.
var ErrCacheMiss = errors.New("cache: miss")

// Store is a byte-oriented key/value store with per-entry TTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
