package watch

import (
	"context"

	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/log"
)

// Registration is one subscribed watcher as seen by a source. It remembers
// which identities were delivered and the export returned for each, so that
// modify and remove notifications reach exactly the watchers tracking a
// handle.
//
// Registration is not safe for concurrent use; the owning source serializes
// delivery under its own lock.
type Registration[T any] struct {
	sub       *Subscription
	ctx       context.Context
	filter    handle.Filter
	watcher   Watcher[T]
	delivered map[handle.Identity]handle.Export[T] // nil value: delivered, untracked
	onFailure func()
}

// NewRegistration creates a registration. onFailure, when non-nil, is called
// after a watcher callback panics.
func NewRegistration[T any](ctx context.Context, filter handle.Filter, w Watcher[T], onFailure func()) *Registration[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Registration[T]{
		sub:       NewSubscription(nil),
		ctx:       ctx,
		filter:    filter,
		watcher:   w,
		delivered: make(map[handle.Identity]handle.Export[T]),
		onFailure: onFailure,
	}
}

// Subscription returns the registration's subscription.
func (r *Registration[T]) Subscription() *Subscription {
	return r.sub
}

// Context returns the registration context.
func (r *Registration[T]) Context() context.Context {
	return r.ctx
}

// Alive reports whether the registration should keep receiving events.
func (r *Registration[T]) Alive() bool {
	if r.ctx.Err() != nil || r.sub.Cancelled() {
		return false
	}
	if l, ok := r.watcher.(Liveness); ok {
		alive := true
		r.guard("alive", func() { alive = l.Alive() })
		return alive
	}
	return true
}

// Tracking returns how many delivered identities have a tracking export.
func (r *Registration[T]) Tracking() int {
	n := 0
	for _, exp := range r.delivered {
		if exp != nil {
			n++
		}
	}
	return n
}

// DeliverAdd offers imp to the watcher when it passes the filter.
func (r *Registration[T]) DeliverAdd(id handle.Identity, imp handle.Import[T]) {
	if _, seen := r.delivered[id]; seen {
		return
	}
	if !handle.Match(r.filter, imp.Attributes()) {
		return
	}

	var exp handle.Export[T]
	r.guard("add", func() { exp = r.watcher.Add(imp) })
	r.delivered[id] = exp
}

// DeliverModify forwards new attributes to the tracking export. A handle that
// stops matching the filter is removed from the watcher's view, and one that
// starts matching is added.
func (r *Registration[T]) DeliverModify(id handle.Identity, imp handle.Import[T]) {
	attrs := imp.Attributes()
	exp, seen := r.delivered[id]
	matches := handle.Match(r.filter, attrs)

	switch {
	case seen && matches:
		if exp != nil {
			r.guard("modify", func() { exp.SetAttributes(attrs) })
		}
	case seen:
		delete(r.delivered, id)
		if exp != nil {
			r.guard("remove", exp.Unput)
		}
	case matches:
		r.DeliverAdd(id, imp)
	}
}

// DeliverRemove tells the tracking export that the handle is gone.
func (r *Registration[T]) DeliverRemove(id handle.Identity) {
	exp, seen := r.delivered[id]
	if !seen {
		return
	}
	delete(r.delivered, id)
	if exp != nil {
		r.guard("remove", exp.Unput)
	}
}

// Deliver dispatches ev by kind.
func (r *Registration[T]) Deliver(id handle.Identity, ev Event[T]) {
	switch ev.Kind {
	case EventAdd:
		r.DeliverAdd(id, ev.Import)
	case EventModify:
		r.DeliverModify(id, ev.Import)
	case EventRemove:
		r.DeliverRemove(id)
	}
}

func (r *Registration[T]) guard(op string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Recovered(log.CatWatch, "watcher callback panicked", rec,
				"subscription", r.sub.ID(), "op", op)
			if r.onFailure != nil {
				r.onFailure()
			}
		}
	}()
	fn()
}

// Prune returns regs without the registrations that are no longer alive.
// The slice is filtered in place.
func Prune[T any](regs []*Registration[T]) []*Registration[T] {
	live := regs[:0]
	for _, reg := range regs {
		if reg.Alive() {
			live = append(live, reg)
			continue
		}
		log.Debug(log.CatWatch, "pruned registration", "subscription", reg.sub.ID())
	}
	clear(regs[len(live):])
	return live
}
