package federation

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/log"
	"github.com/zjrosen/rankreg/internal/metrics"
	"github.com/zjrosen/rankreg/internal/tracing"
	"github.com/zjrosen/rankreg/internal/watch"
)

// CacheConfig tunes a CachingRegistry.
type CacheConfig struct {
	// FlushInterval is the period of the generation ticker. Zero disables
	// the ticker; Flush can still be called directly.
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`

	// Generations is how many flushes an idle entry survives.
	Generations int `mapstructure:"generations" yaml:"generations"`
}

// DefaultCacheConfig returns a 30s tick with three generations to live.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		FlushInterval: 30 * time.Second,
		Generations:   3,
	}
}

// CacheOption configures a CachingRegistry.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	name    string
	metrics metrics.Recorder
	tracer  trace.Tracer
}

// WithCacheName names the cache in logs and metrics.
func WithCacheName(name string) CacheOption {
	return func(o *cacheOptions) {
		o.name = name
	}
}

// WithCacheMetrics sets the metrics recorder.
func WithCacheMetrics(r metrics.Recorder) CacheOption {
	return func(o *cacheOptions) {
		o.metrics = r
	}
}

// WithCacheTracer records a span per flush.
func WithCacheTracer(t trace.Tracer) CacheOption {
	return func(o *cacheOptions) {
		o.tracer = t
	}
}

// CachingRegistry hands out one cached import per handle of a source and
// evicts entries that stay idle for more than the configured number of
// flush generations. Eviction drops the cache entry only; the handle stays
// in the source.
type CachingRegistry[T any] struct {
	name    string
	source  Cacheable[T]
	cfg     CacheConfig
	metrics metrics.Recorder
	tracer  trace.Tracer

	mu         sync.Mutex
	generation uint64
	entries    map[handle.Identity]*cachedImport[T]

	sub    *watch.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Cacheable is anything a CachingRegistry can sit in front of: a ranked set,
// a single source or a whole chain.
type Cacheable[T any] interface {
	watch.Publisher[T]
	All(filter handle.Filter) iter.Seq[*handle.Handle[T]]
}

// NewCachingRegistry creates a cache over source. It watches the source so
// entries for withdrawn handles are dropped once idle.
func NewCachingRegistry[T any](source Cacheable[T], cfg CacheConfig, opts ...CacheOption) (*CachingRegistry[T], error) {
	if cfg.Generations < 1 {
		return nil, fmt.Errorf("cache generations must be >= 1, got %d", cfg.Generations)
	}
	if cfg.FlushInterval < 0 {
		return nil, fmt.Errorf("cache flush interval must not be negative, got %s", cfg.FlushInterval)
	}

	o := cacheOptions{name: "cache", metrics: metrics.Nop{}, tracer: noop.NewTracerProvider().Tracer("noop")}
	for _, opt := range opts {
		opt(&o)
	}

	c := &CachingRegistry[T]{
		name:    o.name,
		source:  source,
		cfg:     cfg,
		metrics: o.metrics,
		tracer:  o.tracer,
		entries: make(map[handle.Identity]*cachedImport[T]),
	}

	sub, err := source.Subscribe(context.Background(), nil, watch.WatcherFunc[T](c.track))
	if err != nil {
		return nil, fmt.Errorf("watch cache source: %w", err)
	}
	c.sub = sub
	return c, nil
}

func (c *CachingRegistry[T]) track(imp handle.Import[T]) handle.Export[T] {
	id, ok := watch.IdentityOf(imp)
	if !ok {
		return nil
	}
	return watch.Track(imp, nil, func() { c.sourceRemoved(id) })
}

func (c *CachingRegistry[T]) sourceRemoved(id handle.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return
	}
	e.gone = true
	if e.refs == 0 {
		delete(c.entries, id)
	}
}

// Lookup returns cached imports for the handles matching filter, in rank
// order. The same import is returned for a handle until it is evicted.
func (c *CachingRegistry[T]) Lookup(filter handle.Filter) iter.Seq[handle.Import[T]] {
	return func(yield func(handle.Import[T]) bool) {
		for h := range c.source.All(filter) {
			if !yield(c.entry(h)) {
				return
			}
		}
	}
}

// First returns the cached import of the best handle matching filter.
func (c *CachingRegistry[T]) First(filter handle.Filter) (handle.Import[T], bool) {
	for imp := range c.Lookup(filter) {
		return imp, true
	}
	return nil, false
}

func (c *CachingRegistry[T]) entry(h *handle.Handle[T]) *cachedImport[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[h.ID()]; ok {
		return e
	}
	e := &cachedImport[T]{cache: c, h: h, idleSince: c.generation}
	c.entries[h.ID()] = e
	return e
}

// Flush advances the generation and evicts idle entries older than the
// configured number of generations. It returns the number evicted.
func (c *CachingRegistry[T]) Flush() int {
	_, span := c.tracer.Start(context.Background(), tracing.SpanCacheFlush)
	defer span.End()

	c.mu.Lock()
	c.generation++
	gen := c.generation
	evicted := 0
	for id, e := range c.entries {
		if e.refs == 0 && gen-e.idleSince > uint64(c.cfg.Generations) {
			delete(c.entries, id)
			evicted++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	span.AddEvent(tracing.EventEvicted, trace.WithAttributes(attribute.Int("count", evicted)))
	c.metrics.Generation(c.name, gen)
	c.metrics.Evicted(c.name, evicted)
	if evicted > 0 {
		log.Debug(log.CatCache, "evicted idle entries", "cache", c.name, "generation", gen,
			"evicted", evicted, "remaining", remaining)
	}
	return evicted
}

// Start runs Flush every FlushInterval until ctx is done or Stop is called.
func (c *CachingRegistry[T]) Start(ctx context.Context) {
	if c.cfg.FlushInterval <= 0 {
		return
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Flush()
			}
		}
	}()
}

// Stop halts the flush ticker and waits for it to exit.
func (c *CachingRegistry[T]) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Close stops the ticker and stops watching the source.
func (c *CachingRegistry[T]) Close() {
	c.Stop()
	c.source.Unsubscribe(c.sub)
}

// Generation returns the current generation.
func (c *CachingRegistry[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Len returns the number of cached entries.
func (c *CachingRegistry[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cached reports whether the handle with id has a cache entry.
func (c *CachingRegistry[T]) Cached(id handle.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// cachedImport counts acquisitions made through the cache so idle entries
// can be aged out. refs, idleSince and gone are guarded by cache.mu.
type cachedImport[T any] struct {
	cache     *CachingRegistry[T]
	h         *handle.Handle[T]
	refs      int
	idleSince uint64
	gone      bool
}

func (e *cachedImport[T]) ID() handle.Identity {
	return e.h.ID()
}

// Get counts the acquisition before delegating so a concurrent Flush never
// sees the entry idle while the handle is held.
func (e *cachedImport[T]) Get() (T, error) {
	c := e.cache
	c.mu.Lock()
	e.refs++
	c.mu.Unlock()

	v, err := e.h.Get()
	if err != nil {
		c.mu.Lock()
		e.releaseLocked()
		c.mu.Unlock()
		return v, err
	}
	return v, nil
}

func (e *cachedImport[T]) Unget() {
	c := e.cache
	c.mu.Lock()
	if e.refs == 0 {
		c.mu.Unlock()
		return
	}
	e.releaseLocked()
	c.mu.Unlock()

	e.h.Unget()
}

// releaseLocked drops one count and restarts the idle clock at zero.
// Requires cache.mu.
func (e *cachedImport[T]) releaseLocked() {
	c := e.cache
	e.refs--
	if e.refs == 0 {
		e.idleSince = c.generation
		if e.gone && c.entries[e.h.ID()] == e {
			delete(c.entries, e.h.ID())
		}
	}
}

func (e *cachedImport[T]) Available() bool {
	return e.h.Available()
}

func (e *cachedImport[T]) Attributes() handle.Attributes {
	return e.h.Attributes()
}
