// Package flags provides feature flag support for optional lookup behaviour.
// Flags are read-only after initialization and provide safe defaults for unknown flags.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/rankreg/internal/log"
)

// Flag name constants for type-safe flag access.
const (
	// FlagStickyLookup pins the first successful acquisition of each looked
	// up handle instead of re-acquiring on every Get.
	FlagStickyLookup = "sticky-lookup"

	// FlagTracedLookup opens a span for every acquisition made through a lookup.
	FlagTracedLookup = "traced-lookup"

	// FlagCachedLookup routes lookups through the generation cache.
	FlagCachedLookup = "cached-lookup"
)

// Known lists every flag the binary understands.
var Known = []string{FlagStickyLookup, FlagTracedLookup, FlagCachedLookup}

// Registry holds feature flag state loaded from configuration.
// Flags are read-only after initialization.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map. The map is copied.
// If flags is nil, an empty registry is created (all flags disabled).
// Unknown names are kept but logged at warn.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	maps.Copy(r.flags, flags)

	for _, name := range slices.Sorted(maps.Keys(r.flags)) {
		if !slices.Contains(Known, name) {
			log.Warn(log.CatConfig, "Unknown feature flag in config", "flag", name)
		}
	}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags), "flags", r.All())
	return r
}

// Enabled returns true if the named flag is enabled.
// Returns false for unknown flags (safe default).
// Returns false when called on nil registry (nil-safe).
func (r *Registry) Enabled(name string) bool {
	if r == nil || r.flags == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "Unset flag accessed", "flag", name, "result", false)
		return false
	}
	return value
}

// All returns a copy of all flags (for debugging/logging).
// Returns an empty map if the registry is nil.
func (r *Registry) All() map[string]bool {
	if r == nil || r.flags == nil {
		return make(map[string]bool)
	}
	result := make(map[string]bool, len(r.flags))
	maps.Copy(result, r.flags)
	return result
}
