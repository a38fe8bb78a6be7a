// Package registry assembles the runtime from configuration: one descriptor
// directory per configured source, merged by a chain, optionally fronted by
// the generation cache and the lookup decorators enabled by feature flags.
package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/rankreg/internal/config"
	"github.com/zjrosen/rankreg/internal/decorator"
	"github.com/zjrosen/rankreg/internal/federation"
	"github.com/zjrosen/rankreg/internal/filter"
	"github.com/zjrosen/rankreg/internal/flags"
	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/log"
	"github.com/zjrosen/rankreg/internal/metrics"
	"github.com/zjrosen/rankreg/internal/source"
	"github.com/zjrosen/rankreg/internal/tracing"
	"github.com/zjrosen/rankreg/internal/watch"
)

// Registry errors
var (
	ErrNoSources = errors.New("no sources configured")
	ErrNotFound  = errors.New("no service matches")
	ErrReadOnly  = errors.New("no writable source configured")
)

// Import is what lookups hand out.
type Import = handle.Import[*source.Descriptor]

// Option configures a Registry.
type Option func(*options)

type options struct {
	metrics metrics.Recorder
	tracer  trace.Tracer
}

// WithMetrics records set and cache activity.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// WithTracer spans lookups and, with traced-lookup, acquisitions.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// Registry is the assembled view over every configured source.
type Registry struct {
	sources  []*source.Directory
	chain    *federation.Chain[*source.Descriptor]
	cache    *federation.CachingRegistry[*source.Descriptor]
	decorate decorator.ImportDecorator[*source.Descriptor]
	filters  *filter.Cache
	native   bool
	tracer   trace.Tracer
	writable int

	closeOnce sync.Once
}

// New builds a registry from cfg. Flags select the cache and decorators.
func New(cfg config.Config, fl *flags.Registry, opts ...Option) (*Registry, error) {
	if len(cfg.Sources) == 0 {
		return nil, ErrNoSources
	}
	if err := config.ValidateSources(cfg.Sources); err != nil {
		return nil, err
	}

	o := options{metrics: metrics.Nop{}, tracer: noop.NewTracerProvider().Tracer("noop")}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{
		filters:  filter.NewCache(cfg.Filter.CacheTTL),
		native:   cfg.Filter.PreferNative,
		tracer:   o.tracer,
		writable: cfg.WritableSource(),
	}

	chainSources := make([]federation.Source[*source.Descriptor], 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		d, err := source.NewDirectory(source.Config{
			Name:         sc.Name,
			Dir:          sc.Dir,
			PreferNative: cfg.Filter.PreferNative,
			Metrics:      o.metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		r.sources = append(r.sources, d)
		chainSources = append(chainSources, d)
	}

	chainOpts := []federation.ChainOption{federation.WithChainName("rankreg")}
	for idx, ceiling := range cfg.Ceilings() {
		chainOpts = append(chainOpts, federation.WithRankCeiling(idx, ceiling))
	}
	if idx := cfg.WritableSource(); idx >= 0 {
		chainOpts = append(chainOpts, federation.WithWritable(idx))
	}
	chain, err := federation.NewChain(chainSources, chainOpts...)
	if err != nil {
		return nil, err
	}
	r.chain = chain

	if fl.Enabled(flags.FlagCachedLookup) {
		cache, err := federation.NewCachingRegistry[*source.Descriptor](chain, cfg.Cache,
			federation.WithCacheName("rankreg"),
			federation.WithCacheMetrics(o.metrics),
			federation.WithCacheTracer(o.tracer))
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}

	var decorators []decorator.ImportDecorator[*source.Descriptor]
	if fl.Enabled(flags.FlagStickyLookup) {
		decorators = append(decorators, decorator.Sticky[*source.Descriptor](nil, decorator.WithTTL(cfg.Lookup.StickyTTL)))
	}
	if fl.Enabled(flags.FlagTracedLookup) {
		decorators = append(decorators, decorator.Traced[*source.Descriptor](o.tracer))
	}
	r.decorate = decorator.Chain(decorators...)

	log.Info(log.CatChain, "registry assembled",
		"sources", len(r.sources), "cached", r.cache != nil, "decorators", len(decorators))
	return r, nil
}

// Sources returns the configured directories in priority order.
func (r *Registry) Sources() []*source.Directory {
	return r.sources
}

// Chain returns the merged view.
func (r *Registry) Chain() *federation.Chain[*source.Descriptor] {
	return r.chain
}

// Cached reports whether lookups go through the generation cache.
func (r *Registry) Cached() bool {
	return r.cache != nil
}

// Compile parses a filter query. An empty query matches everything and
// yields a nil filter. Native mode reuses compiled queries.
func (r *Registry) Compile(query string) (handle.Filter, error) {
	var (
		q   *filter.Query
		err error
	)
	if r.native {
		q, err = r.filters.Parse(query)
	} else {
		q, err = filter.Parse(query)
	}
	if err != nil {
		return nil, err
	}
	if q.Expr() == nil {
		return nil, nil
	}
	return q, nil
}

// Handles returns the merged handles matching f, best first.
func (r *Registry) Handles(ctx context.Context, f handle.Filter) iter.Seq[*handle.Handle[*source.Descriptor]] {
	return func(yield func(*handle.Handle[*source.Descriptor]) bool) {
		_, span := r.tracer.Start(ctx, tracing.SpanChainLookup)
		matched := 0
		defer func() {
			span.SetAttributes(attribute.Int(tracing.AttrMatched, matched))
			span.End()
		}()

		for h := range r.chain.All(f) {
			matched++
			if !yield(h) {
				return
			}
		}
	}
}

// Lookup returns imports for the services matching f, best first. Imports
// come from the cache when enabled and are wrapped by the configured
// decorators.
func (r *Registry) Lookup(ctx context.Context, f handle.Filter) iter.Seq[Import] {
	spanName := tracing.SpanChainLookup
	if r.cache != nil {
		spanName = tracing.SpanCacheLookup
	}

	var seq iter.Seq[Import] = func(yield func(Import) bool) {
		_, span := r.tracer.Start(ctx, spanName)
		matched := 0
		defer func() {
			span.SetAttributes(attribute.Int(tracing.AttrMatched, matched))
			span.End()
		}()

		var imports iter.Seq[Import]
		if r.cache != nil {
			imports = r.cache.Lookup(f)
		} else {
			imports = r.chain.Imports(f)
		}
		for imp := range imports {
			matched++
			if !yield(imp) {
				return
			}
		}
	}
	return decorator.Decorate(seq, r.decorate)
}

// First returns the best available service matching f.
func (r *Registry) First(ctx context.Context, f handle.Filter) (Import, error) {
	for imp := range r.Lookup(ctx, f) {
		if imp.Available() {
			return imp, nil
		}
	}
	return nil, ErrNotFound
}

// Watch subscribes w to every source. Cancelling ctx ends the subscription.
func (r *Registry) Watch(ctx context.Context, f handle.Filter, w watch.Watcher[*source.Descriptor]) (*watch.Subscription, error) {
	return r.chain.Watch(ctx, f, w)
}

// Export writes desc into the writable source and publishes it.
func (r *Registry) Export(desc *source.Descriptor) (*handle.Handle[*source.Descriptor], error) {
	if r.writable < 0 {
		return nil, ErrReadOnly
	}
	target := r.sources[r.writable]
	if desc.File == "" {
		desc.File = desc.Name + ".yaml"
	}
	h, err := r.chain.Export(desc, desc.HandleAttributes(target.Name()))
	if err != nil {
		return nil, err
	}
	log.Info(log.CatChain, "service exported", "name", desc.Name, "source", target.Name(), "id", h.ID())
	return h, nil
}

// MaxRank returns the highest effective rank across all sources.
func (r *Registry) MaxRank() int {
	return r.chain.MaxRank()
}

// Start runs the cache flush ticker until ctx is done. Without a cache it
// does nothing.
func (r *Registry) Start(ctx context.Context) {
	if r.cache != nil {
		r.cache.Start(ctx)
	}
}

// Flush advances the cache generation. It returns the number of evicted
// entries, zero without a cache.
func (r *Registry) Flush() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.Flush()
}

// Close stops the cache. Subscriptions opened through Watch are owned by
// their callers.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		if r.cache != nil {
			r.cache.Close()
		}
	})
}
