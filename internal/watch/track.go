package watch

import "github.com/zjrosen/rankreg/internal/handle"

// tracker is an Export that forwards registry notifications to callbacks
// while reading through to the tracked import.
type tracker[T any] struct {
	imp      handle.Import[T]
	onModify func(handle.Attributes)
	onRemove func()
}

// Track returns an Export for imp that calls onModify when the tracked
// handle's attributes change and onRemove when it leaves the source.
// Either callback may be nil.
func Track[T any](imp handle.Import[T], onModify func(handle.Attributes), onRemove func()) handle.Export[T] {
	return &tracker[T]{imp: imp, onModify: onModify, onRemove: onRemove}
}

func (t *tracker[T]) Get() (T, error) { return t.imp.Get() }
func (t *tracker[T]) Unget() { t.imp.Unget() }
func (t *tracker[T]) Available() bool { return t.imp.Available() }
func (t *tracker[T]) Attributes() handle.Attributes { return t.imp.Attributes() }
func (t *tracker[T]) Put(T) {}

func (t *tracker[T]) Unput() {
	if t.onRemove != nil {
		t.onRemove()
	}
}

func (t *tracker[T]) SetAttributes(attrs handle.Attributes) {
	if t.onModify != nil {
		t.onModify(attrs)
	}
}
