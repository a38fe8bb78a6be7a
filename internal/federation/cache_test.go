package federation

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/metrics"
	"github.com/zjrosen/rankreg/internal/rankedset"
)

func newCache(t *testing.T, generations int) (*rankedset.Set[string], *CachingRegistry[string]) {
	t.Helper()
	s := rankedset.New[string]()
	c, err := NewCachingRegistry[string](s, CacheConfig{Generations: generations})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return s, c
}

// === Unit Tests: CachingRegistry ===

func TestCache_SameImportPerHandle(t *testing.T) {
	s, c := newCache(t, 1)
	s.Export("a", nil)

	first, ok := c.First(nil)
	require.True(t, ok)
	again, ok := c.First(nil)
	require.True(t, ok)
	require.Same(t, first, again)
	require.Equal(t, 1, c.Len())
}

func TestCache_IdleEntrySurvivesExactlyNGenerations(t *testing.T) {
	s, c := newCache(t, 3)
	h := s.Export("a", nil)

	imp, _ := c.First(nil)
	_, err := imp.Get()
	require.NoError(t, err)
	imp.Unget() // idle at generation 0

	for i := 0; i < 3; i++ {
		require.Equal(t, 0, c.Flush())
		require.True(t, c.Cached(h.ID()), "flush %d", i+1)
	}
	require.Equal(t, 1, c.Flush())
	require.False(t, c.Cached(h.ID()))
	require.True(t, s.Contains(h), "eviction never withdraws from the source")
}

func TestCache_AcquiredEntryIsNeverEvicted(t *testing.T) {
	s, c := newCache(t, 1)
	h := s.Export("a", nil)

	imp, _ := c.First(nil)
	_, err := imp.Get()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		c.Flush()
	}
	require.True(t, c.Cached(h.ID()))

	imp.Unget()
	c.Flush()
	require.True(t, c.Cached(h.ID()), "idle clock restarts at release")
	c.Flush()
	require.False(t, c.Cached(h.ID()))
	require.Equal(t, 0, h.RefCount())
}

// flushingImport runs hook inside Get, between the cache counting the
// acquisition and the value being returned.
type flushingImport struct {
	hook func()
}

func (f *flushingImport) Get() (string, error) {
	if f.hook != nil {
		f.hook()
	}
	return "a", nil
}

func (f *flushingImport) Unget() {}

func (f *flushingImport) Available() bool { return true }

func (f *flushingImport) Attributes() handle.Attributes { return nil }

func TestCache_FlushDuringAcquisitionKeepsEntry(t *testing.T) {
	s, c := newCache(t, 1)
	delegate := &flushingImport{}
	h := s.ExportImport(delegate, nil)

	imp, ok := c.First(nil)
	require.True(t, ok)
	delegate.hook = func() {
		c.Flush()
		c.Flush()
	}

	v, err := imp.Get()
	require.NoError(t, err)
	require.Equal(t, "a", v)
	require.True(t, c.Cached(h.ID()), "acquired entry must stay cached")

	delegate.hook = nil
	imp.Unget()
	c.Flush()
	require.True(t, c.Cached(h.ID()))
	c.Flush()
	require.False(t, c.Cached(h.ID()))
}

func TestCache_FailedGetLeavesEntryIdle(t *testing.T) {
	s, c := newCache(t, 1)
	h := s.Export("a", nil)
	imp, _ := c.First(nil)

	h.Unput()
	_, err := imp.Get()
	require.ErrorIs(t, err, handle.ErrUnavailable)

	c.Flush()
	require.True(t, c.Cached(h.ID()))
	c.Flush()
	require.False(t, c.Cached(h.ID()), "failed acquisition must not pin the entry")
}

func TestCache_WithdrawnHandleDropsIdleEntry(t *testing.T) {
	s, c := newCache(t, 5)
	h := s.Export("a", nil)
	imp, _ := c.First(nil)

	_, _ = imp.Get()
	h.Withdraw()
	require.True(t, c.Cached(h.ID()), "still acquired")

	imp.Unget()
	require.False(t, c.Cached(h.ID()))
}

func TestCache_Validation(t *testing.T) {
	s := rankedset.New[string]()
	_, err := NewCachingRegistry[string](s, CacheConfig{Generations: 0})
	require.Error(t, err)
	_, err = NewCachingRegistry[string](s, CacheConfig{Generations: 1, FlushInterval: -time.Second})
	require.Error(t, err)
	require.Equal(t, 0, s.Subscribers())
}

func TestCache_StartTicksAndStopHalts(t *testing.T) {
	s := rankedset.New[string]()
	c, err := NewCachingRegistry[string](s, CacheConfig{Generations: 1, FlushInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()

	c.Start(context.Background())
	c.Start(context.Background()) // second start is a no-op
	require.Eventually(t, func() bool { return c.Generation() >= 2 }, time.Second, time.Millisecond)

	c.Stop()
	gen := c.Generation()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, gen, c.Generation())
}

func TestCache_MetricsAndTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	rec := metrics.New(metrics.WithRegistry(prometheus.NewRegistry()))

	s := rankedset.New[string]()
	c, err := NewCachingRegistry[string](s, CacheConfig{Generations: 1},
		WithCacheName("lookup"), WithCacheMetrics(rec), WithCacheTracer(tp.Tracer("test")))
	require.NoError(t, err)
	defer c.Close()

	s.Export("a", nil)
	_, _ = c.First(nil)
	c.Flush()
	require.Equal(t, 1, c.Flush())

	spans := sr.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "cache.flush", spans[1].Name())
	require.Equal(t, "cache.evicted", spans[1].Events()[0].Name)
}

// === Property-Based Tests ===

func TestCache_Property_EvictionAfterExactlyNGenerations(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "generations")
		s := rankedset.New[string]()
		c, err := NewCachingRegistry[string](s, CacheConfig{Generations: n})
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()

		h := s.Export("svc", nil)
		imp, _ := c.First(nil)
		held := 0
		idleSince := uint64(0)

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				if !c.Cached(h.ID()) {
					return
				}
				if _, err := imp.Get(); err == nil {
					held++
				}
			case 1:
				if held > 0 {
					imp.Unget()
					held--
					if held == 0 {
						idleSince = c.Generation()
					}
				}
			default:
				c.Flush()
				gen := c.Generation()
				shouldExist := held > 0 || gen-idleSince <= uint64(n)
				if c.Cached(h.ID()) != shouldExist {
					t.Fatalf("gen %d idleSince %d held %d: cached=%v want %v",
						gen, idleSince, held, c.Cached(h.ID()), shouldExist)
				}
				if !shouldExist {
					return
				}
			}
		}
	})
}

func TestCachedImport_DelegatesToHandle(t *testing.T) {
	s, c := newCache(t, 1)
	s.Export("a", handle.Attributes{"name": "db"})
	imp, _ := c.First(nil)
	require.True(t, imp.Available())
	require.Equal(t, "db", imp.Attributes().String("name"))
	imp.Unget() // surplus release is ignored
}

var (
	_ Cacheable[string] = (*rankedset.Set[string])(nil)
	_ Cacheable[string] = (*Chain[string])(nil)
)

func TestCache_FrontsChainInMergedOrder(t *testing.T) {
	a, b := twoSets()
	chain, err := NewChain([]Source[string]{a, b})
	require.NoError(t, err)
	c, err := NewCachingRegistry[string](chain, CacheConfig{Generations: 1})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	var got []string
	for imp := range c.Lookup(nil) {
		v, err := imp.Get()
		require.NoError(t, err)
		got = append(got, v)
		imp.Unget()
	}
	require.Equal(t, []string{"a10", "b10", "b7", "a5"}, got)
	require.Equal(t, 4, c.Len())

	first, ok := c.First(nil)
	require.True(t, ok)
	again, _ := c.First(nil)
	require.Same(t, first, again)
}
