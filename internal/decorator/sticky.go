package decorator

import (
	"sync"
	"time"

	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/log"
)

// StickyOption configures Sticky.
type StickyOption func(*stickyConfig)

type stickyConfig struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL expires a cached instance after d. Zero keeps it until reset.
func WithTTL(d time.Duration) StickyOption {
	return func(c *stickyConfig) {
		c.ttl = d
	}
}

// withClock replaces time.Now in tests.
func withClock(now func() time.Time) StickyOption {
	return func(c *stickyConfig) {
		c.now = now
	}
}

// Sticky returns a decorator that pins the first instance acquired through
// an import and keeps handing it out, even after the import becomes
// unavailable, until reset returns true or the entry expires. A nil reset
// never discards.
//
// A sticky import holds one acquisition on its delegate while pinned and
// treats Unget as a no-op. It is meant for a single consumer.
func Sticky[T any](reset func(handle.Import[T]) bool, opts ...StickyOption) ImportDecorator[T] {
	cfg := stickyConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return Func[T](func(imp handle.Import[T]) handle.Import[T] {
		return &StickyImport[T]{wrapped: wrapped[T]{inner: imp}, reset: reset, cfg: cfg}
	})
}

// stickyEntry is a pinned instance plus its liveness predicate.
type stickyEntry[T any] struct {
	instance T
	valid    func() bool
}

// StickyImport is the import produced by Sticky.
type StickyImport[T any] struct {
	wrapped[T]
	mu    sync.Mutex
	reset func(handle.Import[T]) bool
	cfg   stickyConfig
	entry *stickyEntry[T]
}

// Get returns the pinned instance, acquiring and pinning one if needed.
func (s *StickyImport[T]) Get() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != nil {
		if s.entry.valid() && (s.reset == nil || !s.reset(s.inner)) {
			return s.entry.instance, nil
		}
		s.dropLocked()
	}

	v, err := s.inner.Get()
	if err != nil {
		return v, err
	}
	s.entry = &stickyEntry[T]{instance: v, valid: s.validity()}
	return v, nil
}

func (s *StickyImport[T]) validity() func() bool {
	if s.cfg.ttl <= 0 {
		return func() bool { return true }
	}
	deadline := s.cfg.now().Add(s.cfg.ttl)
	return func() bool { return s.cfg.now().Before(deadline) }
}

// Unget is a no-op; the pinned acquisition is released by Release or reset.
func (s *StickyImport[T]) Unget() {}

// Available reports true while an instance is pinned.
func (s *StickyImport[T]) Available() bool {
	s.mu.Lock()
	pinned := s.entry != nil && s.entry.valid()
	s.mu.Unlock()
	return pinned || s.inner.Available()
}

// Pinned reports whether an instance is currently cached.
func (s *StickyImport[T]) Pinned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry != nil
}

// Release drops the pinned instance and its acquisition.
func (s *StickyImport[T]) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
}

func (s *StickyImport[T]) dropLocked() {
	if s.entry == nil {
		return
	}
	s.entry = nil
	s.inner.Unget()
	log.Debug(log.CatDecorator, "sticky instance released")
}
