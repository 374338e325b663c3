package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore     = errors.New("cache: store is required")
	errMissingNamespace = errors.New("cache: key namespace is required")
	errInvalidTTL       = errors.New("cache: ttl must be positive")
)

// LoaderFunc queries the primary store for a listing.
type LoaderFunc[T any] func(ctx context.Context) ([]T, error)

// ReadThroughConfig wires a ReadThrough accessor.
type ReadThroughConfig struct {
	Store  Store
	Keys   KeyBuilder
	TTL    time.Duration
	Logger *zap.Logger
}

// ReadThrough fronts a listing query with a Store. Entries are snapshots of the loader's
// result; viewer-specific state must be layered on by the caller after GetList returns.
type ReadThrough[T any] struct {
	store  Store
	keys   KeyBuilder
	ttl    time.Duration
	logger *zap.Logger
}

// NewReadThrough validates cfg and returns an accessor.
func NewReadThrough[T any](cfg ReadThroughConfig) (*ReadThrough[T], error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Keys.Namespace() == "" {
		return nil, errMissingNamespace
	}
	if cfg.TTL <= 0 {
		return nil, errInvalidTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadThrough[T]{
		store:  cfg.Store,
		keys:   cfg.Keys,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

// Keys exposes the key builder for callers that need the computed keys.
func (r *ReadThrough[T]) Keys() KeyBuilder {
	return r.keys
}

// GetList returns the cached listing for filter or populates it from load.
// Store failures degrade to a miss; only load errors reach the caller.
func (r *ReadThrough[T]) GetList(ctx context.Context, filter Filter, load LoaderFunc[T]) ([]T, error) {
	key := r.keys.Build(filter)

	cached, err := r.store.Get(ctx, key)
	switch {
	case err == nil:
		var records []T
		decodeErr := json.Unmarshal(cached, &records)
		if decodeErr == nil {
			r.logger.Debug("cache hit", zap.String("key", key), zap.Int("count", len(records)))
			if records == nil {
				records = []T{}
			}
			return records, nil
		}
		r.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(decodeErr))
	case errors.Is(err, ErrCacheMiss):
		r.logger.Debug("cache miss", zap.String("key", key))
	default:
		r.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	records, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []T{}
	}

	encoded, err := json.Marshal(records)
	if err != nil {
		r.logger.Warn("cache entry encode failed", zap.String("key", key), zap.Error(err))
		return records, nil
	}
	if err := r.store.Set(ctx, key, encoded, r.ttl); err != nil {
		r.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return records, nil
}

// Invalidate deletes the key for filter and the all-wildcard key of the namespace.
func (r *ReadThrough[T]) Invalidate(ctx context.Context, filter Filter) error {
	specific := r.keys.Build(filter)
	wildcard := r.keys.Wildcard()
	if specific == wildcard {
		return r.store.Delete(ctx, wildcard)
	}
	return r.store.Delete(ctx, specific, wildcard)
}

// InvalidateCovering deletes every key whose listing could include a record with filter's values.
func (r *ReadThrough[T]) InvalidateCovering(ctx context.Context, filter Filter) error {
	return r.store.Delete(ctx, r.keys.Covering(filter)...)
}
