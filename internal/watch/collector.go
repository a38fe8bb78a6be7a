package watch

import (
	"sync"

	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/pubsub"
)

// Record is one event seen by a Collector.
type Record[T any] struct {
	Kind       EventKind
	ID         handle.Identity
	Import     handle.Import[T]
	Attributes handle.Attributes
}

// Collector is a Watcher that records every event it sees. It tracks every
// handle it is offered.
type Collector[T any] struct {
	mu      sync.Mutex
	records []Record[T]
}

// NewCollector creates an empty collector.
func NewCollector[T any]() *Collector[T] {
	return &Collector[T]{}
}

func (c *Collector[T]) Add(imp handle.Import[T]) handle.Export[T] {
	id, _ := IdentityOf(imp)
	c.record(EventAdd, id, imp, imp.Attributes())
	return Track(imp,
		func(attrs handle.Attributes) { c.record(EventModify, id, imp, attrs) },
		func() { c.record(EventRemove, id, imp, nil) },
	)
}

func (c *Collector[T]) record(kind EventKind, id handle.Identity, imp handle.Import[T], attrs handle.Attributes) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, Record[T]{Kind: kind, ID: id, Import: imp, Attributes: attrs.Clone()})
}

// Records returns a copy of everything recorded so far.
func (c *Collector[T]) Records() []Record[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record[T], len(c.records))
	copy(out, c.records)
	return out
}

// Kinds returns the recorded event kinds in order.
func (c *Collector[T]) Kinds() []EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventKind, len(c.records))
	for i, r := range c.records {
		out[i] = r.Kind
	}
	return out
}

// Reset forgets recorded events.
func (c *Collector[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
}

// Broadcast is a Watcher that republishes events on a pubsub broker so
// channel based consumers can follow a source.
type Broadcast[T any] struct {
	broker *pubsub.Broker[Event[T]]
}

// NewBroadcast creates a broadcast over a fresh broker.
func NewBroadcast[T any]() *Broadcast[T] {
	return &Broadcast[T]{broker: pubsub.NewBroker[Event[T]]()}
}

// Broker returns the underlying broker for subscribing.
func (b *Broadcast[T]) Broker() *pubsub.Broker[Event[T]] {
	return b.broker
}

func (b *Broadcast[T]) Add(imp handle.Import[T]) handle.Export[T] {
	b.broker.Publish(pubsub.AddedEvent, Event[T]{Kind: EventAdd, Import: imp, Attributes: imp.Attributes()})
	return Track(imp,
		func(attrs handle.Attributes) {
			b.broker.Publish(pubsub.ModifiedEvent, Event[T]{Kind: EventModify, Import: imp, Attributes: attrs})
		},
		func() {
			b.broker.Publish(pubsub.RemovedEvent, Event[T]{Kind: EventRemove, Import: imp})
		},
	)
}

// Close shuts down the broker.
func (b *Broadcast[T]) Close() {
	b.broker.Close()
}
