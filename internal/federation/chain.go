// Package federation merges several ranked sources into one view and caches
// lookups over a source across flush generations.
package federation

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/log"
	"github.com/zjrosen/rankreg/internal/rankedset"
	"github.com/zjrosen/rankreg/internal/watch"
)

// Source is a ranked source a Chain can merge.
type Source[T any] interface {
	watch.Publisher[T]
	Iterate(filter handle.Filter) *rankedset.Iterator[T]
	Contains(h *handle.Handle[T]) bool
}

// Writable is a source the chain can export into.
type Writable[T any] interface {
	Source[T]
	Sequence() *handle.Sequence
	Insert(h *handle.Handle[T]) error
}

// ChainOption configures a Chain.
type ChainOption func(*chainOptions)

type chainOptions struct {
	name     string
	ceilings map[int]int
	writable int
}

// WithChainName names the chain in logs.
func WithChainName(name string) ChainOption {
	return func(o *chainOptions) {
		o.name = name
	}
}

// WithRankCeiling caps the effective rank of handles from source idx.
func WithRankCeiling(idx, max int) ChainOption {
	return func(o *chainOptions) {
		o.ceilings[idx] = max
	}
}

// WithWritable designates source idx as the target of Export. The source
// must implement Writable.
func WithWritable(idx int) ChainOption {
	return func(o *chainOptions) {
		o.writable = idx
	}
}

// Chain presents several sources as one ranked view. Order is
// (effective rank desc, source index asc, identity asc). Sources should
// use distinct identity spaces.
type Chain[T any] struct {
	name     string
	sources  []Source[T]
	ceilings map[int]int
	writable Writable[T]

	mu       sync.Mutex
	exported map[handle.Identity]*selfExport[T]
}

// selfExport records a handle exported through the chain. inserted is set
// once the writable source accepted it.
type selfExport[T any] struct {
	h        *handle.Handle[T]
	inserted bool
}

// NewChain creates a chain over sources, highest priority first on ties.
func NewChain[T any](sources []Source[T], opts ...ChainOption) (*Chain[T], error) {
	o := chainOptions{name: "chain", ceilings: make(map[int]int), writable: -1}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Chain[T]{
		name:     o.name,
		sources:  sources,
		ceilings: o.ceilings,
		exported: make(map[handle.Identity]*selfExport[T]),
	}
	for idx := range o.ceilings {
		if idx < 0 || idx >= len(sources) {
			return nil, fmt.Errorf("rank ceiling for source %d: index out of range", idx)
		}
	}
	if o.writable >= 0 {
		if o.writable >= len(sources) {
			return nil, fmt.Errorf("writable source %d: index out of range", o.writable)
		}
		w, ok := sources[o.writable].(Writable[T])
		if !ok {
			return nil, fmt.Errorf("writable source %d: %w", o.writable, handle.ErrNotSupported)
		}
		c.writable = w
	}
	return c, nil
}

// effectiveRank applies the ceiling of source idx.
func (c *Chain[T]) effectiveRank(idx, rank int) int {
	if ceiling, ok := c.ceilings[idx]; ok && rank > ceiling {
		return ceiling
	}
	return rank
}

// MaxRank returns the highest effective rank over all sources, or 0 when
// every source is empty. Empty sources do not take part.
func (c *Chain[T]) MaxRank() int {
	best, seen := 0, false
	for i, src := range c.sources {
		if _, ok := src.Iterate(nil).Next(); !ok {
			continue
		}
		if r := c.effectiveRank(i, src.MaxRank()); !seen || r > best {
			best, seen = r, true
		}
	}
	return best
}

// Export creates a handle in the writable source. Watchers of the chain
// never see handles exported through it.
func (c *Chain[T]) Export(instance T, attrs handle.Attributes, opts ...handle.Option) (*handle.Handle[T], error) {
	if c.writable == nil {
		return nil, fmt.Errorf("export through %s: %w", c.name, handle.ErrNotSupported)
	}

	c.sweep()

	h := handle.NewValue(c.writable.Sequence().Next(), instance, attrs, opts...)
	rec := &selfExport[T]{h: h}
	c.mu.Lock()
	c.exported[h.ID()] = rec
	c.mu.Unlock()

	if err := c.writable.Insert(h); err != nil {
		c.forget(h.ID())
		return nil, fmt.Errorf("export through %s: %w", c.name, err)
	}

	c.mu.Lock()
	rec.inserted = true
	c.mu.Unlock()
	return h, nil
}

// sweep forgets self exports the writable source no longer holds.
// Contains is called without c.mu, which dispatch takes under the source
// lock.
func (c *Chain[T]) sweep() {
	c.mu.Lock()
	var live []*handle.Handle[T]
	for _, rec := range c.exported {
		if rec.inserted {
			live = append(live, rec.h)
		}
	}
	c.mu.Unlock()

	for _, h := range live {
		if !c.writable.Contains(h) {
			c.forget(h.ID())
		}
	}
}

func (c *Chain[T]) isSelfExport(id handle.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.exported[id]
	return ok
}

func (c *Chain[T]) forget(id handle.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.exported, id)
}

// Watch subscribes w to every source. Handles exported through this chain
// are filtered out. The returned subscription cancels all of them.
func (c *Chain[T]) Watch(ctx context.Context, filter handle.Filter, w watch.Watcher[T]) (*watch.Subscription, error) {
	fw := &selfFilter[T]{chain: c, inner: w}

	subs := make([]*watch.Subscription, 0, len(c.sources))
	cancelAll := func() {
		for i, sub := range subs {
			c.sources[i].Unsubscribe(sub)
		}
	}
	for i, src := range c.sources {
		sub, err := src.Subscribe(ctx, filter, fw)
		if err != nil {
			cancelAll()
			return nil, fmt.Errorf("watch source %d of %s: %w", i, c.name, err)
		}
		subs = append(subs, sub)
	}

	log.Debug(log.CatChain, "watching", "chain", c.name, "sources", len(subs))
	return watch.NewSubscription(cancelAll), nil
}

// Subscribe implements watch.Publisher so chains can be nested.
func (c *Chain[T]) Subscribe(ctx context.Context, filter handle.Filter, w watch.Watcher[T]) (*watch.Subscription, error) {
	return c.Watch(ctx, filter, w)
}

// Unsubscribe cancels a subscription returned by Watch.
func (c *Chain[T]) Unsubscribe(sub *watch.Subscription) {
	if sub != nil {
		sub.Cancel()
	}
}

// selfFilter drops handles the chain exported itself.
type selfFilter[T any] struct {
	chain *Chain[T]
	inner watch.Watcher[T]
}

func (f *selfFilter[T]) Add(imp handle.Import[T]) handle.Export[T] {
	if id, ok := watch.IdentityOf(imp); ok && f.chain.isSelfExport(id) {
		return nil
	}
	return f.inner.Add(imp)
}

func (f *selfFilter[T]) Alive() bool {
	if l, ok := f.inner.(watch.Liveness); ok {
		return l.Alive()
	}
	return true
}

// Lookup returns a lazy merged iterator over the handles matching filter.
func (c *Chain[T]) Lookup(filter handle.Filter) *ChainIterator[T] {
	cursors := make([]*cursor[T], len(c.sources))
	for i, src := range c.sources {
		cursors[i] = &cursor[T]{src: src, it: src.Iterate(filter)}
	}
	return &ChainIterator[T]{chain: c, cursors: cursors}
}

// All returns the merged handles matching filter.
func (c *Chain[T]) All(filter handle.Filter) iter.Seq[*handle.Handle[T]] {
	return c.Lookup(filter).All()
}

// Imports returns the merged handles matching filter as imports.
func (c *Chain[T]) Imports(filter handle.Filter) iter.Seq[handle.Import[T]] {
	return func(yield func(handle.Import[T]) bool) {
		for h := range c.Lookup(filter).All() {
			if !yield(h) {
				return
			}
		}
	}
}

// cursor buffers the next handle of one source.
type cursor[T any] struct {
	src  Source[T]
	it   *rankedset.Iterator[T]
	head *handle.Handle[T]
	key  handle.Key
	done bool
}

func (cu *cursor[T]) fill() {
	if cu.head != nil || cu.done {
		return
	}
	h, ok := cu.it.Next()
	if !ok {
		cu.done = true
		return
	}
	cu.head, cu.key = h, cu.it.LastKey()
}

// ChainIterator is a resumable k-way merge over per-source iterators.
type ChainIterator[T any] struct {
	chain   *Chain[T]
	cursors []*cursor[T]
}

// Next returns the best remaining handle across all sources.
func (ci *ChainIterator[T]) Next() (*handle.Handle[T], bool) {
	for {
		best := -1
		var bestRank int
		for i, cu := range ci.cursors {
			cu.fill()
			if cu.head == nil {
				continue
			}
			rank := ci.chain.effectiveRank(i, cu.key.Rank)
			// Strict comparison keeps the lower source index on ties.
			if best < 0 || rank > bestRank {
				best, bestRank = i, rank
			}
		}
		if best < 0 {
			return nil, false
		}

		cu := ci.cursors[best]
		h := cu.head
		cu.head = nil
		// A buffered head can be withdrawn between steps.
		if cu.src.Contains(h) {
			return h, true
		}
	}
}

// All returns the remaining merged handles as a sequence.
func (ci *ChainIterator[T]) All() iter.Seq[*handle.Handle[T]] {
	return func(yield func(*handle.Handle[T]) bool) {
		for {
			h, ok := ci.Next()
			if !ok || !yield(h) {
				return
			}
		}
	}
}
