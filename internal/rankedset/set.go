// Package rankedset implements the rank ordered collection of handles that
// backs every registry.
//
// Entries are ordered by rank descending, then identity ascending. A single
// mutex guards the entries and the watcher registrations; events are
// delivered while it is held, so replay on subscribe and concurrent
// mutation never interleave. Watchers must not mutate the delivering set
// synchronously from a callback.
package rankedset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/log"
	"github.com/zjrosen/rankreg/internal/metrics"
	"github.com/zjrosen/rankreg/internal/watch"
)

// ErrDuplicate is returned by Insert when a handle with the same identity
// is already present.
var ErrDuplicate = errors.New("handle already present")

type entry[T any] struct {
	key handle.Key
	h   *handle.Handle[T]
}

// Set is a concurrent rank ordered collection of handles.
type Set[T any] struct {
	mu      sync.Mutex
	name    string
	seq     *handle.Sequence
	entries []entry[T]
	index   map[handle.Identity]handle.Key
	regs    []*watch.Registration[T]
	metrics metrics.Recorder
}

// Option configures a Set.
type Option func(*options)

type options struct {
	name    string
	seq     *handle.Sequence
	metrics metrics.Recorder
}

// WithName names the set in logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithSequence sets the identity source used by Export.
func WithSequence(seq *handle.Sequence) Option {
	return func(o *options) {
		o.seq = seq
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// New creates an empty set.
func New[T any](opts ...Option) *Set[T] {
	o := options{name: "default"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.seq == nil {
		o.seq = handle.NewSequence(handle.NextSpace())
	}
	if o.metrics == nil {
		o.metrics = metrics.Nop{}
	}

	return &Set[T]{
		name:    o.name,
		seq:     o.seq,
		index:   make(map[handle.Identity]handle.Key),
		metrics: o.metrics,
	}
}

// Name returns the set name.
func (s *Set[T]) Name() string {
	return s.name
}

// Sequence returns the identity source of the set.
func (s *Set[T]) Sequence() *handle.Sequence {
	return s.seq
}

// Export creates a handle for instance and inserts it.
func (s *Set[T]) Export(instance T, attrs handle.Attributes, opts ...handle.Option) *handle.Handle[T] {
	h := handle.NewValue(s.seq.Next(), instance, attrs, opts...)
	s.mustInsert(h)
	return h
}

// ExportImport creates a handle delegating to imp and inserts it.
func (s *Set[T]) ExportImport(imp handle.Import[T], attrs handle.Attributes, opts ...handle.Option) *handle.Handle[T] {
	h := handle.New(s.seq.Next(), imp, attrs, opts...)
	s.mustInsert(h)
	return h
}

func (s *Set[T]) mustInsert(h *handle.Handle[T]) {
	if err := s.Insert(h); err != nil {
		panic(fmt.Sprintf("rankedset: insert of fresh handle failed: %v", err))
	}
}

// Insert adds h at its rank position and notifies watchers.
func (s *Set[T]) Insert(h *handle.Handle[T]) error {
	if err := h.Attach(s); err != nil {
		return fmt.Errorf("insert into %s: %w", s.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := h.Key()
	if _, dup := s.index[key.ID]; dup {
		// A rejected handle must not keep reporting changes to this set.
		if _, same := s.keyOfLocked(h); !same {
			h.Detach(s)
		}
		return fmt.Errorf("insert %s into %s: %w", key.ID, s.name, ErrDuplicate)
	}

	i, _ := s.position(key)
	s.entries = slices.Insert(s.entries, i, entry[T]{key: key, h: h})
	s.index[key.ID] = key

	log.Debug(log.CatSet, "inserted", "set", s.name, "key", key, "size", len(s.entries))
	s.metrics.SetSize(s.name, len(s.entries))
	s.dispatch(watch.EventAdd, h)
	return nil
}

// Update moves h to the position of its current key and notifies watchers
// with a modify event. It returns false when h is not in the set.
func (s *Set[T]) Update(h *handle.Handle[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.keyOfLocked(h)
	if !ok {
		return false
	}

	s.removeAt(old)
	key := h.Key()
	i, _ := s.position(key)
	s.entries = slices.Insert(s.entries, i, entry[T]{key: key, h: h})
	s.index[key.ID] = key

	if old.Rank != key.Rank {
		log.Debug(log.CatSet, "reranked", "set", s.name, "from", old, "to", key)
	}
	s.dispatch(watch.EventModify, h)
	return true
}

// Remove takes h out of the set and notifies tracking watchers.
// It returns false when h was not present.
func (s *Set[T]) Remove(h *handle.Handle[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keyOfLocked(h)
	if !ok {
		return false
	}

	s.removeAt(key)
	delete(s.index, key.ID)
	h.Detach(s)

	log.Debug(log.CatSet, "removed", "set", s.name, "key", key, "size", len(s.entries))
	s.metrics.SetSize(s.name, len(s.entries))
	s.dispatch(watch.EventRemove, h)
	return true
}

// HandleModified implements handle.Owner.
func (s *Set[T]) HandleModified(h *handle.Handle[T]) {
	s.Update(h)
}

// HandleWithdrawn implements handle.Owner.
func (s *Set[T]) HandleWithdrawn(h *handle.Handle[T]) bool {
	return s.Remove(h)
}

// removeAt deletes the entry stored under key. Caller holds s.mu.
func (s *Set[T]) removeAt(key handle.Key) {
	i, found := s.position(key)
	if !found {
		panic(fmt.Sprintf("rankedset %s: indexed key %s not found in entries", s.name, key))
	}
	s.entries = slices.Delete(s.entries, i, i+1)
}

// position returns the index of key, or the index where it would be
// inserted, and whether it is present. Caller holds s.mu.
func (s *Set[T]) position(key handle.Key) (int, bool) {
	return slices.BinarySearchFunc(s.entries, key, func(e entry[T], k handle.Key) int {
		return e.key.Compare(k)
	})
}

// keyOfLocked returns the stored key of h. Another handle sharing its
// identity does not count. Requires s.mu.
func (s *Set[T]) keyOfLocked(h *handle.Handle[T]) (handle.Key, bool) {
	key, ok := s.index[h.ID()]
	if !ok {
		return handle.Key{}, false
	}
	i, found := s.position(key)
	if !found || s.entries[i].h != h {
		return handle.Key{}, false
	}
	return key, true
}

// Contains reports whether h is in the set.
func (s *Set[T]) Contains(h *handle.Handle[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keyOfLocked(h)
	return ok
}

// Len returns the number of handles.
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot returns the handles in rank order at the time of the call.
func (s *Set[T]) Snapshot() []*handle.Handle[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*handle.Handle[T], len(s.entries))
	for i, e := range s.entries {
		out[i] = e.h
	}
	return out
}

// MaxRank returns the highest rank in the set, or 0 when empty.
func (s *Set[T]) MaxRank() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return 0
	}
	return s.entries[0].key.Rank
}

// Subscribe registers w and replays every matching handle to it as an add,
// in rank order, before returning. The registration ends when ctx is done,
// when the subscription is cancelled or when w reports it is no longer
// alive.
func (s *Set[T]) Subscribe(ctx context.Context, filter handle.Filter, w watch.Watcher[T]) (*watch.Subscription, error) {
	if w == nil {
		return nil, errors.New("subscribe: nil watcher")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", s.name, err)
	}

	reg := watch.NewRegistration(ctx, filter, w, func() { s.metrics.WatcherFailure(s.name) })
	sub := reg.Subscription()
	sub.SetCancel(func() { s.unregister(sub) })

	s.mu.Lock()
	s.regs = append(s.regs, reg)
	for _, e := range s.entries {
		reg.DeliverAdd(e.key.ID, e.h)
	}
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, sub.Cancel)
	sub.SetCancel(func() {
		stop()
		s.unregister(sub)
	})

	log.Debug(log.CatWatch, "subscribed", "set", s.name, "subscription", sub.ID())
	return sub, nil
}

// Unsubscribe removes the registration behind sub.
func (s *Set[T]) Unsubscribe(sub *watch.Subscription) {
	if sub != nil {
		sub.Cancel()
	}
}

// unregister drops the registration for sub. When the lock is busy, for
// instance because a watcher cancels from inside a callback, the cancelled
// registration is left for the next dispatch to prune.
func (s *Set[T]) unregister(sub *watch.Subscription) {
	if !s.mu.TryLock() {
		return
	}
	defer s.mu.Unlock()

	s.regs = slices.DeleteFunc(s.regs, func(r *watch.Registration[T]) bool {
		return r.Subscription() == sub
	})
	log.Debug(log.CatWatch, "unsubscribed", "set", s.name, "subscription", sub.ID())
}

// Subscribers returns the number of live registrations.
func (s *Set[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs = watch.Prune(s.regs)
	return len(s.regs)
}

// dispatch delivers one event to every live registration. Caller holds s.mu.
func (s *Set[T]) dispatch(kind watch.EventKind, h *handle.Handle[T]) {
	s.regs = watch.Prune(s.regs)
	s.metrics.Event(s.name, kind.String())

	ev := watch.Event[T]{Kind: kind, Import: h}
	for _, reg := range s.regs {
		if reg.Alive() {
			reg.Deliver(h.ID(), ev)
		}
	}
}

var (
	_ handle.Owner[int]    = (*Set[int])(nil)
	_ watch.Publisher[int] = (*Set[int])(nil)
)
