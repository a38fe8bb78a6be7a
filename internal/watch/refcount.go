package watch

import (
	"fmt"
	"sync"

	"github.com/zjrosen/rankreg/internal/log"
)

// Opener is a resource a publisher opens while it has subscribers.
type Opener interface {
	Open() error
	Close() error
}

// OpenerFuncs adapts two functions to Opener.
type OpenerFuncs struct {
	OnOpen  func() error
	OnClose func() error
}

func (o OpenerFuncs) Open() error {
	if o.OnOpen == nil {
		return nil
	}
	return o.OnOpen()
}

func (o OpenerFuncs) Close() error {
	if o.OnClose == nil {
		return nil
	}
	return o.OnClose()
}

// Refcounted opens its Opener on the first Acquire and closes it on the
// matching last Release.
type Refcounted struct {
	mu     sync.Mutex
	opener Opener
	count  int
	name   string
}

// NewRefcounted wraps opener. name is used in log lines.
func NewRefcounted(name string, opener Opener) *Refcounted {
	return &Refcounted{name: name, opener: opener}
}

// Acquire registers a user, opening the resource if this is the first one.
// A failed open leaves the count unchanged.
func (r *Refcounted) Acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		if err := r.opener.Open(); err != nil {
			return fmt.Errorf("open %s: %w", r.name, err)
		}
		log.Debug(log.CatSource, "opened", "name", r.name)
	}
	r.count++
	return nil
}

// Release drops a user, closing the resource when none remain.
func (r *Refcounted) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return
	}
	r.count--
	if r.count > 0 {
		return
	}
	if err := r.opener.Close(); err != nil {
		log.ErrorErr(log.CatSource, "close failed", err, "name", r.name)
		return
	}
	log.Debug(log.CatSource, "closed", "name", r.name)
}

// Count returns the number of current users.
func (r *Refcounted) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
