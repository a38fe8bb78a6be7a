package handle

import (
	"errors"
	"reflect"
)

var (
	// ErrUnavailable is returned by Get when the handle has no instance.
	ErrUnavailable = errors.New("service unavailable")
	// ErrNotSupported is returned by operations a source cannot perform.
	ErrNotSupported = errors.New("operation not supported")
)

// IsUnavailable reports whether err signals an unavailable handle.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Import is the consumer side of a handle.
type Import[T any] interface {
	// Get acquires the current instance. Every successful call must be
	// balanced by one Unget.
	Get() (T, error)

	// Unget releases one acquisition. Never fails.
	Unget()

	// Available reports whether Get would currently succeed.
	Available() bool

	// Attributes returns the metadata snapshot currently in effect.
	Attributes() Attributes
}

// Export is the producer side of a handle.
type Export[T any] interface {
	Import[T]

	// Put swaps the instance. A nil instance is equivalent to Unput.
	Put(instance T)

	// Unput clears the instance.
	Unput()

	// SetAttributes replaces the metadata.
	SetAttributes(attrs Attributes)
}

type valueImport[T any] struct {
	v T
}

// Value returns an Import over a plain value. Get always succeeds.
func Value[T any](v T) Import[T] {
	return valueImport[T]{v: v}
}

func (i valueImport[T]) Get() (T, error) { return i.v, nil }
func (i valueImport[T]) Unget() {}
func (i valueImport[T]) Available() bool { return true }
func (i valueImport[T]) Attributes() Attributes { return nil }

// isNil reports whether v is a nil interface or a nil pointer-like value.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
