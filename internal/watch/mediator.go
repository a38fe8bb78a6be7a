package watch

import (
	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/log"
)

// Entry pairs a qualifier extracted from a handle's attributes with the
// handle itself.
type Entry[Q comparable, T any] struct {
	Qualifier Q
	Import    handle.Import[T]
}

// Mediator translates entries into calls on an arbitrary watcher type W.
type Mediator[Q comparable, T any, W any] interface {
	Add(entry Entry[Q, T], w W) error
	Remove(entry Entry[Q, T], w W) error
}

// MediatorFuncs adapts a pair of functions to Mediator. A nil func is a no-op.
type MediatorFuncs[Q comparable, T any, W any] struct {
	OnAdd    func(entry Entry[Q, T], w W) error
	OnRemove func(entry Entry[Q, T], w W) error
}

func (m MediatorFuncs[Q, T, W]) Add(entry Entry[Q, T], w W) error {
	if m.OnAdd == nil {
		return nil
	}
	return m.OnAdd(entry, w)
}

func (m MediatorFuncs[Q, T, W]) Remove(entry Entry[Q, T], w W) error {
	if m.OnRemove == nil {
		return nil
	}
	return m.OnRemove(entry, w)
}

// Qualifier extracts a qualifier from attributes. ok=false skips the handle.
type Qualifier[Q comparable] func(attrs handle.Attributes) (q Q, ok bool)

// ByAttribute qualifies handles by the string value of key. Handles without
// the key are skipped.
func ByAttribute(key string) Qualifier[string] {
	return func(attrs handle.Attributes) (string, bool) {
		if _, ok := attrs[key]; !ok {
			return "", false
		}
		return attrs.String(key), true
	}
}

// Mediate builds a Watcher that forwards qualifying handles to mediator on
// behalf of w. If w implements Liveness the returned watcher does too.
func Mediate[Q comparable, T any, W any](qualify Qualifier[Q], mediator Mediator[Q, T, W], w W) Watcher[T] {
	mw := &mediated[Q, T, W]{qualify: qualify, mediator: mediator, target: w}
	if l, ok := any(w).(Liveness); ok {
		return &liveMediated[Q, T, W]{mediated: mw, liveness: l}
	}
	return mw
}

type mediated[Q comparable, T any, W any] struct {
	qualify  Qualifier[Q]
	mediator Mediator[Q, T, W]
	target   W
}

func (m *mediated[Q, T, W]) Add(imp handle.Import[T]) handle.Export[T] {
	q, ok := m.qualify(imp.Attributes())
	if !ok {
		return nil
	}

	entry := Entry[Q, T]{Qualifier: q, Import: imp}
	if err := m.mediator.Add(entry, m.target); err != nil {
		log.Warn(log.CatWatch, "mediator rejected add", "qualifier", q, "error", err)
		return nil
	}

	st := &mediatedState[Q, T]{entry: entry, active: true}
	return Track(imp,
		func(attrs handle.Attributes) { m.modify(st, attrs) },
		func() { m.remove(st) },
	)
}

// mediatedState is the live entry for one tracked handle.
type mediatedState[Q comparable, T any] struct {
	entry  Entry[Q, T]
	active bool
}

func (m *mediated[Q, T, W]) modify(st *mediatedState[Q, T], attrs handle.Attributes) {
	q, ok := m.qualify(attrs)
	if st.active && ok && q == st.entry.Qualifier {
		return
	}

	m.remove(st)
	if !ok {
		return
	}
	st.entry = Entry[Q, T]{Qualifier: q, Import: st.entry.Import}
	if err := m.mediator.Add(st.entry, m.target); err != nil {
		log.Warn(log.CatWatch, "mediator rejected add", "qualifier", q, "error", err)
		return
	}
	st.active = true
}

func (m *mediated[Q, T, W]) remove(st *mediatedState[Q, T]) {
	if !st.active {
		return
	}
	st.active = false
	if err := m.mediator.Remove(st.entry, m.target); err != nil {
		log.Warn(log.CatWatch, "mediator rejected remove", "qualifier", st.entry.Qualifier, "error", err)
	}
}

type liveMediated[Q comparable, T any, W any] struct {
	*mediated[Q, T, W]
	liveness Liveness
}

func (m *liveMediated[Q, T, W]) Alive() bool {
	return m.liveness.Alive()
}
