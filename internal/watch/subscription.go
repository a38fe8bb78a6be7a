package watch

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription identifies one watcher registration. Cancel is idempotent.
type Subscription struct {
	id     string
	mu     sync.Mutex
	cancel func()
	done   bool
}

// NewSubscription creates a subscription whose Cancel runs cancel once.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{
		id:     uuid.New().String(),
		cancel: cancel,
	}
}

// ID returns the subscription id.
func (s *Subscription) ID() string {
	return s.id
}

// Cancel removes the registration.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Cancelled reports whether Cancel has been called.
func (s *Subscription) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// SetCancel replaces the cancel hook. Used by sources that can only build
// the hook after the subscription id exists.
func (s *Subscription) SetCancel(cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}
