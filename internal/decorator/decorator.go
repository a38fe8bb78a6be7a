// Package decorator composes transformations over imports. A decorated
// import keeps the attribute and availability contract of the import it
// wraps and only changes what Get hands out.
package decorator

import (
	"iter"

	"github.com/zjrosen/rankreg/internal/handle"
)

// ImportDecorator wraps an import.
type ImportDecorator[T any] interface {
	Decorate(imp handle.Import[T]) handle.Import[T]
}

// Func adapts a function to ImportDecorator.
type Func[T any] func(imp handle.Import[T]) handle.Import[T]

// Decorate calls f(imp).
func (f Func[T]) Decorate(imp handle.Import[T]) handle.Import[T] {
	return f(imp)
}

// Chain composes decorators. They are applied right to left, so
// decorators[0] is the outermost wrapper and sees calls first.
func Chain[T any](decorators ...ImportDecorator[T]) ImportDecorator[T] {
	return Func[T](func(imp handle.Import[T]) handle.Import[T] {
		for i := len(decorators) - 1; i >= 0; i-- {
			imp = decorators[i].Decorate(imp)
		}
		return imp
	})
}

// Decorate wraps every import of seq with d.
func Decorate[T any](seq iter.Seq[handle.Import[T]], d ImportDecorator[T]) iter.Seq[handle.Import[T]] {
	return func(yield func(handle.Import[T]) bool) {
		for imp := range seq {
			if !yield(d.Decorate(imp)) {
				return
			}
		}
	}
}

// wrapped forwards everything but Get and Unget to the inner import.
type wrapped[T any] struct {
	inner handle.Import[T]
}

func (w wrapped[T]) Available() bool { return w.inner.Available() }

func (w wrapped[T]) Attributes() handle.Attributes { return w.inner.Attributes() }
