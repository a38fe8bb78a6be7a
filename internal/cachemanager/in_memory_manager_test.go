package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type descriptor struct {
	Name string
	Rank int
}

func newTestCache[V any]() *InMemoryCacheManager[string, V] {
	return NewInMemoryCacheManager[string, V]("test", DefaultExpiration, DefaultCleanupInterval)
}

// === Unit Tests: InMemoryCacheManager ===

func TestInMemoryCacheManager_GetExistingValue_StructType(t *testing.T) {
	cache := newTestCache[descriptor]()
	want := descriptor{Name: "db", Rank: 10}
	cache.Set(context.Background(), "svc:1", want, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "svc:1")
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestInMemoryCacheManager_GetMissing(t *testing.T) {
	cache := newTestCache[string]()

	got, ok := cache.Get(context.Background(), "svc")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetWrongType(t *testing.T) {
	cache := newTestCache[string]()
	cache.cache.Set("svc", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "svc")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_ZeroTTLUsesDefault(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("test", time.Hour, DefaultCleanupInterval)
	cache.Set(context.Background(), "svc", "db", 0)

	_, exp, ok := cache.cache.GetWithExpiration("svc")
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)
}

func TestInMemoryCacheManager_ExpiredEntryIsGone(t *testing.T) {
	cache := newTestCache[string]()
	cache.Set(context.Background(), "svc", "db", time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := cache.Get(context.Background(), "svc")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryCacheManager_GetWithRefresh(t *testing.T) {
	cache := newTestCache[string]()

	_, ok := cache.GetWithRefresh(context.Background(), "svc", time.Hour)
	require.False(t, ok)

	cache.Set(context.Background(), "svc", "db", time.Minute)
	got, ok := cache.GetWithRefresh(context.Background(), "svc", time.Hour)
	require.True(t, ok)
	require.Equal(t, "db", got)

	_, exp, _ := cache.cache.GetWithExpiration("svc")
	require.True(t, exp.After(time.Now().Add(30*time.Minute)), "refresh must extend the ttl")
}

func TestInMemoryCacheManager_DeleteAndFlush(t *testing.T) {
	cache := newTestCache[string]()
	require.NoError(t, cache.Delete(context.Background()))

	cache.Set(context.Background(), "a", "1", DefaultExpiration)
	cache.Set(context.Background(), "b", "2", DefaultExpiration)
	cache.Set(context.Background(), "c", "3", DefaultExpiration)
	require.Equal(t, 3, cache.Len())

	require.NoError(t, cache.Delete(context.Background(), "a", "b"))
	require.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Flush(context.Background()))
	require.Equal(t, 0, cache.Len())
}
