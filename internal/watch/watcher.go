// Package watch defines the watcher/mediator notification protocol shared by
// ranked sets, registry chains and external publishers.
//
// A Watcher receives Add for every qualifying handle. Returning a non-nil
// Export from Add means "track this handle": later modifications arrive as
// SetAttributes on that export and removal arrives as Unput. Returning nil
// declines tracking.
//
// A Mediator translates generic (qualifier, import) entries into calls on an
// arbitrary watcher type W, so the registry never needs to know W.
package watch

import (
	"context"

	"github.com/zjrosen/rankreg/internal/handle"
)

// Watcher is notified of handles entering a source.
type Watcher[T any] interface {
	Add(imp handle.Import[T]) handle.Export[T]
}

// WatcherFunc adapts a function to Watcher.
type WatcherFunc[T any] func(imp handle.Import[T]) handle.Export[T]

// Add calls f(imp).
func (f WatcherFunc[T]) Add(imp handle.Import[T]) handle.Export[T] {
	return f(imp)
}

// Liveness is implemented by watchers that can become unreachable without
// unsubscribing. A registration whose watcher reports false is dropped.
type Liveness interface {
	Alive() bool
}

// EventKind tags the variant of an Event.
type EventKind int

const (
	EventAdd EventKind = iota
	EventModify
	EventRemove
)

func (k EventKind) String() string {
	switch k {
	case EventAdd:
		return "add"
	case EventModify:
		return "modify"
	case EventRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is one notification about a handle.
type Event[T any] struct {
	Kind       EventKind
	Import     handle.Import[T]
	Attributes handle.Attributes
}

// Publisher is anything able to surface handles to watchers: a ranked set,
// a registry chain, a directory of descriptors, a remote directory adapter.
type Publisher[T any] interface {
	Subscribe(ctx context.Context, filter handle.Filter, w Watcher[T]) (*Subscription, error)
	Unsubscribe(sub *Subscription)
	MaxRank() int
}

// IdentityOf returns the identity of imp when it exposes one.
func IdentityOf[T any](imp handle.Import[T]) (handle.Identity, bool) {
	if idr, ok := imp.(interface{ ID() handle.Identity }); ok {
		return idr.ID(), true
	}
	return handle.Identity{}, false
}
