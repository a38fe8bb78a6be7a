// Package cachemanager provides keyed caches with per entry expiry and a
// read-through wrapper that fills them on miss.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager stores values by key with a TTL per entry.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
	Len() int
}
