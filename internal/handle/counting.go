package handle

import "sync"

// Counting wraps a delegate Import and tracks how many acquisitions made
// through it are still unresolved, so they can be unwound when the delegate
// is discarded.
type Counting[T any] struct {
	mu       sync.Mutex
	delegate Import[T]
	count    int
}

// NewCounting wraps delegate.
func NewCounting[T any](delegate Import[T]) *Counting[T] {
	return &Counting[T]{delegate: delegate}
}

// Get acquires from the delegate and counts the acquisition on success.
func (c *Counting[T]) Get() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, err := c.delegate.Get()
	if err != nil {
		return v, err
	}
	c.count++
	return v, nil
}

// Unget releases one counted acquisition. Surplus releases are ignored.
func (c *Counting[T]) Unget() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count <= 0 {
		return
	}
	c.count--
	c.delegate.Unget()
}

// Unwind issues one compensating Unget to the delegate for every outstanding
// acquisition and returns how many were drained.
func (c *Counting[T]) Unwind() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	drained := c.count
	for c.count > 0 {
		c.count--
		c.delegate.Unget()
	}
	return drained
}

// Count returns the number of outstanding acquisitions.
func (c *Counting[T]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Available delegates.
func (c *Counting[T]) Available() bool {
	return c.delegate.Available()
}

// Attributes delegates.
func (c *Counting[T]) Attributes() Attributes {
	return c.delegate.Attributes()
}

// Delegate returns the wrapped import.
func (c *Counting[T]) Delegate() Import[T] {
	return c.delegate
}
