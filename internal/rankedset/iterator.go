package rankedset

import (
	"iter"

	"github.com/zjrosen/rankreg/internal/handle"
)

// Iterator walks a set in rank order without holding the set lock between
// steps. It remembers only the key of the last yielded handle and relocates
// after it on every step.
//
// Consistency is relaxed: a handle whose rank changes during the walk may be
// skipped or seen twice, but a handle removed after being yielded is never
// yielded again and the walk always terminates.
type Iterator[T any] struct {
	set     *Set[T]
	filter  handle.Filter
	last    handle.Key // last key visited, used to relocate
	yielded handle.Key
	started bool
}

// Iterate returns a lazy iterator over the handles matching filter.
// A nil filter matches every handle.
func (s *Set[T]) Iterate(filter handle.Filter) *Iterator[T] {
	return &Iterator[T]{set: s, filter: filter}
}

// Next returns the next matching handle, or false when none remain.
func (it *Iterator[T]) Next() (*handle.Handle[T], bool) {
	s := it.set
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if it.started {
		i, found := s.position(it.last)
		if found {
			i++
		}
		start = i
	}

	for i := start; i < len(s.entries); i++ {
		e := s.entries[i]
		it.last = e.key
		it.started = true
		if handle.Match(it.filter, e.h.Attributes()) {
			it.yielded = e.key
			return e.h, true
		}
	}
	return nil, false
}

// LastKey returns the key of the last yielded handle as it was when yielded.
func (it *Iterator[T]) LastKey() handle.Key {
	return it.yielded
}

// Reset restarts the iterator from the highest ranked handle.
func (it *Iterator[T]) Reset() {
	it.last = handle.Key{}
	it.yielded = handle.Key{}
	it.started = false
}

// All returns the remaining handles as a range-over-func sequence.
func (it *Iterator[T]) All() iter.Seq[*handle.Handle[T]] {
	return func(yield func(*handle.Handle[T]) bool) {
		for {
			h, ok := it.Next()
			if !ok || !yield(h) {
				return
			}
		}
	}
}

// All returns the handles matching filter in rank order.
func (s *Set[T]) All(filter handle.Filter) iter.Seq[*handle.Handle[T]] {
	return s.Iterate(filter).All()
}

// First returns the best ranked handle matching filter.
func (s *Set[T]) First(filter handle.Filter) (*handle.Handle[T], bool) {
	return s.Iterate(filter).Next()
}

// Imports returns the handles matching filter as imports, in rank order.
func (s *Set[T]) Imports(filter handle.Filter) iter.Seq[handle.Import[T]] {
	return func(yield func(handle.Import[T]) bool) {
		for h := range s.All(filter) {
			if !yield(h) {
				return
			}
		}
	}
}
