package handle

import (
	"fmt"
	"sync"

	"github.com/zjrosen/rankreg/internal/log"
)

// Owner is notified when a handle it holds changes rank or is withdrawn.
// Ranked sets implement it; a handle has at most one owner.
type Owner[T any] interface {
	HandleModified(h *Handle[T])
	HandleWithdrawn(h *Handle[T]) bool
}

// Option configures a Handle at creation.
type Option func(*options)

type options struct {
	rank *int
}

// WithRank fixes the rank, ignoring the RankingKey attribute.
func WithRank(rank int) Option {
	return func(o *options) {
		o.rank = &rank
	}
}

// Handle is a reference counted, attribute bearing proxy to a producer
// supplied instance. It implements both Import and Export.
type Handle[T any] struct {
	mu           sync.Mutex
	id           Identity
	current      *Counting[T] // nil while unavailable
	attrs        Attributes   // producer level, nil defers to the delegate
	rankOverride *int
	rank         int
	owner        Owner[T]
}

// New creates a handle around delegate. A nil delegate starts unavailable.
func New[T any](id Identity, delegate Import[T], attrs Attributes, opts ...Option) *Handle[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	h := &Handle[T]{
		id:           id,
		attrs:        attrs.Clone(),
		rankOverride: o.rank,
	}
	if delegate != nil {
		h.current = NewCounting(delegate)
	}
	h.rerankLocked()
	return h
}

// NewValue creates a handle around a plain instance.
func NewValue[T any](id Identity, instance T, attrs Attributes, opts ...Option) *Handle[T] {
	if isNil(instance) {
		return New[T](id, nil, attrs, opts...)
	}
	return New(id, Value(instance), attrs, opts...)
}

// ID returns the stable identity.
func (h *Handle[T]) ID() Identity {
	return h.id
}

// Rank returns the current rank.
func (h *Handle[T]) Rank() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rank
}

// Key returns the current (rank, identity) sort key.
func (h *Handle[T]) Key() Key {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Key{Rank: h.rank, ID: h.id}
}

// Get acquires the current instance.
func (h *Handle[T]) Get() (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current == nil {
		var zero T
		return zero, fmt.Errorf("%w: handle %s", ErrUnavailable, h.id)
	}
	return h.current.Get()
}

// Unget releases one acquisition.
func (h *Handle[T]) Unget() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil {
		h.current.Unget()
	}
}

// Available reports whether an instance is present.
func (h *Handle[T]) Available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil && h.current.Available()
}

// Attributes returns the producer attributes, or the delegate's when the
// producer never set any.
func (h *Handle[T]) Attributes() Attributes {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attributesLocked()
}

func (h *Handle[T]) attributesLocked() Attributes {
	if h.attrs != nil {
		return h.attrs
	}
	if h.current != nil {
		return h.current.Attributes()
	}
	return nil
}

// RefCount returns the number of acquisitions outstanding against the
// current instance.
func (h *Handle[T]) RefCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return 0
	}
	return h.current.Count()
}

// Put swaps the instance. A nil instance is equivalent to Unput.
func (h *Handle[T]) Put(instance T) {
	if isNil(instance) {
		h.PutImport(nil)
		return
	}
	h.PutImport(Value(instance))
}

// Unput clears the instance.
func (h *Handle[T]) Unput() {
	h.PutImport(nil)
}

// PutImport swaps the delegate. Acquisitions still outstanding against the
// old delegate are released on it before it is discarded.
func (h *Handle[T]) PutImport(delegate Import[T]) {
	h.mu.Lock()
	drained := 0
	if h.current != nil {
		drained = h.current.Unwind()
	}
	if delegate == nil {
		h.current = nil
	} else {
		h.current = NewCounting(delegate)
	}
	changed := h.rerankLocked()
	owner := h.owner
	h.mu.Unlock()

	if drained > 0 {
		log.Debug(log.CatHandle, "drained acquisitions on swap", "id", h.id, "drained", drained)
	}
	if changed && owner != nil {
		owner.HandleModified(h)
	}
}

// SetAttributes replaces the metadata, recomputes the rank and notifies the
// owning set.
func (h *Handle[T]) SetAttributes(attrs Attributes) {
	if attrs == nil {
		attrs = Attributes{}
	}

	h.mu.Lock()
	h.attrs = attrs.Clone()
	h.rerankLocked()
	owner := h.owner
	h.mu.Unlock()

	if owner != nil {
		owner.HandleModified(h)
	}
}

// Withdraw removes the handle from its owning set.
// Returns false when the handle was not held by a set.
func (h *Handle[T]) Withdraw() bool {
	h.mu.Lock()
	owner := h.owner
	h.mu.Unlock()

	if owner == nil {
		return false
	}
	return owner.HandleWithdrawn(h)
}

// Attach binds the handle to an owner. It fails when another owner holds it.
func (h *Handle[T]) Attach(owner Owner[T]) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.owner != nil && h.owner != owner {
		return fmt.Errorf("handle %s already owned", h.id)
	}
	h.owner = owner
	return nil
}

// Detach unbinds the handle from owner if it is the current owner.
func (h *Handle[T]) Detach(owner Owner[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.owner == owner {
		h.owner = nil
	}
}

// rerankLocked recomputes the rank and reports whether it changed.
func (h *Handle[T]) rerankLocked() bool {
	old := h.rank
	if h.rankOverride != nil {
		h.rank = *h.rankOverride
	} else {
		h.rank = RankOf(h.attributesLocked())
	}
	return old != h.rank
}

func (h *Handle[T]) String() string {
	return fmt.Sprintf("handle(%s)", h.Key())
}

var _ Export[int] = (*Handle[int])(nil)
