// Package cachemanager provides typed, expiring key/value caches. The
// package cache memoizes version queries with it and the live cache keeps
// its negative resolution results in it.
package cachemanager

import (
	"context"
	"time"
)

type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetMultiple(ctx context.Context, keys []K) (map[K]V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	DeleteFunc(ctx context.Context, match func(key K, value V) bool) int
	Flush(ctx context.Context) error
}
