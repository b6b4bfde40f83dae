package cachemanager

import (
	"context"
	"time"

	"github.com/zjrosen/pkgdb/internal/log"
)

// ReadThroughCache memoizes fn in a CacheManager. Errors are never cached,
// so a failed computation is retried on the next call.
type ReadThroughCache[K comparable, V any, I any] struct {
	cache           CacheManager[K, V]
	fn              func(ctx context.Context, input I) (V, error)
	shouldSkipCache bool
}

func NewReadThroughCache[K comparable, V any, I any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, input I) (V, error),
	shouldSkipCache bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{
		cache:           cache,
		fn:              fn,
		shouldSkipCache: shouldSkipCache,
	}
}

func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.fn(ctx, input)
	if err != nil {
		log.Debug(log.CatCache, "read-through computation failed", "key", key, "error", err)
		return value, err
	}

	r.cache.Set(ctx, key, value, ttl)

	return value, nil
}

func (r *ReadThroughCache[K, V, I]) GetWithRefresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.GetWithRefresh(ctx, key, ttl); ok {
		return value, nil
	}

	value, err := r.fn(ctx, input)
	if err != nil {
		log.Debug(log.CatCache, "read-through computation failed", "key", key, "error", err)
		return value, err
	}

	r.cache.Set(ctx, key, value, ttl)

	return value, nil
}

// Forget drops the memoized values for keys.
func (r *ReadThroughCache[K, V, I]) Forget(ctx context.Context, keys ...K) error {
	return r.cache.Delete(ctx, keys...)
}
