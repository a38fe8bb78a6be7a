package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCacheManager struct {
	mock.Mock
}

func (m *mockCacheManager) Get(ctx context.Context, key string) (descriptor, bool) {
	args := m.Called(ctx, key)
	return args.Get(0).(descriptor), args.Bool(1)
}

func (m *mockCacheManager) GetWithRefresh(ctx context.Context, key string, ttl time.Duration) (descriptor, bool) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(descriptor), args.Bool(1)
}

func (m *mockCacheManager) Set(ctx context.Context, key string, value descriptor, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *mockCacheManager) Delete(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *mockCacheManager) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockCacheManager) Len() int {
	return m.Called().Int(0)
}

func loadDescriptor(_ context.Context, name string) (descriptor, error) {
	return descriptor{Name: name}, nil
}

// === Unit Tests: ReadThroughCache ===

func TestReadThroughCache_BypassNeverTouchesCache(t *testing.T) {
	m := &mockCacheManager{}
	rt := NewReadThroughCache[string, descriptor, string](m, loadDescriptor, true)

	got, err := rt.Get(context.Background(), "key", "db", time.Minute)
	require.NoError(t, err)
	require.Equal(t, descriptor{Name: "db"}, got)

	got, err = rt.GetWithRefresh(context.Background(), "key", "db", time.Minute)
	require.NoError(t, err)
	require.Equal(t, descriptor{Name: "db"}, got)

	m.AssertExpectations(t)
	m.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestReadThroughCache_Hit(t *testing.T) {
	m := &mockCacheManager{}
	m.On("Get", mock.Anything, "key").Return(descriptor{Name: "cached"}, true)
	rt := NewReadThroughCache[string, descriptor, string](m, loadDescriptor, false)

	got, err := rt.Get(context.Background(), "key", "db", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "cached", got.Name)

	hits, misses := rt.Stats()
	require.Equal(t, uint64(1), hits)
	require.Equal(t, uint64(0), misses)
	m.AssertExpectations(t)
}

func TestReadThroughCache_MissFillsCache(t *testing.T) {
	m := &mockCacheManager{}
	m.On("Get", mock.Anything, "key").Return(descriptor{}, false)
	m.On("Set", mock.Anything, "key", descriptor{Name: "db"}, time.Minute).Return()
	rt := NewReadThroughCache[string, descriptor, string](m, loadDescriptor, false)

	got, err := rt.Get(context.Background(), "key", "db", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "db", got.Name)

	_, misses := rt.Stats()
	require.Equal(t, uint64(1), misses)
	m.AssertExpectations(t)
}

func TestReadThroughCache_LoadErrorIsNotCached(t *testing.T) {
	m := &mockCacheManager{}
	m.On("Get", mock.Anything, "key").Return(descriptor{}, false)
	rt := NewReadThroughCache[string, descriptor, string](m, func(context.Context, string) (descriptor, error) {
		return descriptor{}, errors.New("unreadable")
	}, false)

	_, err := rt.Get(context.Background(), "key", "db", time.Minute)
	require.Error(t, err)
	m.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThroughCache_GetWithRefreshHit(t *testing.T) {
	m := &mockCacheManager{}
	m.On("GetWithRefresh", mock.Anything, "key", time.Hour).Return(descriptor{Name: "cached"}, true)
	rt := NewReadThroughCache[string, descriptor, string](m, loadDescriptor, false)

	got, err := rt.GetWithRefresh(context.Background(), "key", "db", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "cached", got.Name)
	m.AssertExpectations(t)
}

func TestReadThroughCache_WithInMemoryManager(t *testing.T) {
	loads := 0
	rt := NewReadThroughCache[string, descriptor, string](newTestCache[descriptor](),
		func(ctx context.Context, name string) (descriptor, error) {
			loads++
			return loadDescriptor(ctx, name)
		}, false)

	for i := 0; i < 3; i++ {
		got, err := rt.Get(context.Background(), "db", "db", time.Minute)
		require.NoError(t, err)
		require.Equal(t, "db", got.Name)
	}
	require.Equal(t, 1, loads)
}
