// Package presentation renders registry contents for the command line.
package presentation

import (
	"maps"
	"slices"
	"time"

	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/source"
	"github.com/zjrosen/rankreg/internal/watch"
)

// HandleDTO represents a published service for presentation
type HandleDTO struct {
	ID         string         `json:"id"`
	Rank       int            `json:"rank"`
	Name       string         `json:"name"`
	Endpoint   string         `json:"endpoint,omitempty"`
	Version    string         `json:"version,omitempty"`
	Source     string         `json:"source,omitempty"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EventDTO represents one watch event for presentation
type EventDTO struct {
	Kind   string    `json:"kind"`
	Time   time.Time `json:"time"`
	Handle HandleDTO `json:"handle"`
}

// wellKnown attributes are lifted into HandleDTO fields.
var wellKnown = []string{
	source.AttrName, source.AttrEndpoint, source.AttrVersion,
	source.AttrSource, source.AttrFile, handle.RankingKey,
}

// FromAttributes builds a DTO from an identity and attribute snapshot.
// Attributes not lifted into fields are kept, sorted by key on output.
func FromAttributes(id handle.Identity, attrs handle.Attributes, available bool) HandleDTO {
	dto := HandleDTO{
		ID:        id.String(),
		Rank:      handle.RankOf(attrs),
		Name:      attrs.String(source.AttrName),
		Endpoint:  attrs.String(source.AttrEndpoint),
		Version:   attrs.String(source.AttrVersion),
		Source:    attrs.String(source.AttrSource),
		Available: available,
	}
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		if slices.Contains(wellKnown, k) {
			continue
		}
		if dto.Attributes == nil {
			dto.Attributes = make(map[string]any)
		}
		dto.Attributes[k] = attrs[k]
	}
	return dto
}

// FromHandle converts a handle to a DTO.
func FromHandle[T any](h *handle.Handle[T]) HandleDTO {
	dto := FromAttributes(h.ID(), h.Attributes(), h.Available())
	dto.Rank = h.Rank()
	return dto
}

// FromEvent converts a watch event to a DTO.
func FromEvent[T any](ev watch.Event[T], at time.Time) EventDTO {
	id, _ := watch.IdentityOf(ev.Import)
	available := ev.Kind != watch.EventRemove && ev.Import != nil && ev.Import.Available()
	return EventDTO{
		Kind:   ev.Kind.String(),
		Time:   at,
		Handle: FromAttributes(id, ev.Attributes, available),
	}
}
