// Package testutil builds ranked sets and descriptor directories for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/rankedset"
	"github.com/zjrosen/rankreg/internal/source"
)

// Builder accumulates test services and exports them in declaration order,
// so identities follow that order.
type Builder struct {
	t        *testing.T
	services []serviceData
}

// NewBuilder creates an empty builder.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t}
}

// WithService adds a service with optional configuration.
func (b *Builder) WithService(name string, opts ...ServiceOption) *Builder {
	s := defaultService(name)
	for _, opt := range opts {
		opt(&s)
	}
	b.services = append(b.services, s)
	return b
}

// Build exports every service into set, whose instances are the endpoints.
// Returns the handles by service name.
func (b *Builder) Build(set *rankedset.Set[string]) map[string]*handle.Handle[string] {
	b.t.Helper()
	out := make(map[string]*handle.Handle[string], len(b.services))
	for _, s := range b.services {
		h := handle.NewValue(set.Sequence().Next(), s.endpoint, s.attributes())
		if s.unavailable {
			h = handle.New[string](h.ID(), nil, s.attributes())
		}
		require.NoError(b.t, set.Insert(h))
		out[s.name] = h
	}
	return out
}

// BuildSet exports every service into a fresh set named name.
func (b *Builder) BuildSet(name string) (*rankedset.Set[string], map[string]*handle.Handle[string]) {
	b.t.Helper()
	set := rankedset.New[string](rankedset.WithName(name))
	return set, b.Build(set)
}

// WriteDir writes one descriptor file per service into dir.
func (b *Builder) WriteDir(dir string) {
	b.t.Helper()
	for _, s := range b.services {
		attrs := map[string]any{}
		if s.region != "" {
			attrs["region"] = s.region
		}
		if len(s.tags) > 0 {
			attrs["tags"] = s.tags
		}
		for k, v := range s.attrs {
			attrs[k] = v
		}
		d := &source.Descriptor{
			Name:     s.name,
			Endpoint: s.endpoint,
			Version:  s.version,
			Ranking:  s.rank,
		}
		if len(attrs) > 0 {
			d.Attributes = attrs
		}
		data, err := d.Marshal()
		require.NoError(b.t, err)
		require.NoError(b.t, os.WriteFile(filepath.Join(dir, s.name+".yaml"), data, 0o644))
	}
}
