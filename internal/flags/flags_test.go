package flags

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/rankreg/internal/log"
)

func TestRegistry_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		registry *Registry
		flag     string
		expected bool
	}{
		{
			name:     "known flag set to true returns true",
			registry: New(map[string]bool{FlagStickyLookup: true}),
			flag:     FlagStickyLookup,
			expected: true,
		},
		{
			name:     "known flag set to false returns false",
			registry: New(map[string]bool{FlagTracedLookup: false}),
			flag:     FlagTracedLookup,
			expected: false,
		},
		{
			name:     "unknown flag returns false",
			registry: New(map[string]bool{FlagStickyLookup: true}),
			flag:     "unknown-flag",
			expected: false,
		},
		{
			name:     "nil registry returns false",
			registry: nil,
			flag:     "any-flag",
			expected: false,
		},
		{
			name:     "empty registry returns false",
			registry: New(map[string]bool{}),
			flag:     "any-flag",
			expected: false,
		},
		{
			name:     "nil flags map returns false",
			registry: New(nil),
			flag:     "any-flag",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.registry.Enabled(tt.flag)
			require.Equal(t, tt.expected, result)
		})
	}
}

func TestRegistry_Enabled_MultipleFlags(t *testing.T) {
	r := New(map[string]bool{
		FlagStickyLookup: true,
		FlagTracedLookup: false,
		FlagCachedLookup: true,
	})

	require.True(t, r.Enabled(FlagStickyLookup))
	require.False(t, r.Enabled(FlagTracedLookup))
	require.True(t, r.Enabled(FlagCachedLookup))
	require.False(t, r.Enabled("feature-d")) // unknown
}

func TestRegistry_All(t *testing.T) {
	tests := []struct {
		name     string
		registry *Registry
		expected map[string]bool
	}{
		{
			name:     "returns all flags",
			registry: New(map[string]bool{"a": true, "b": false}),
			expected: map[string]bool{"a": true, "b": false},
		},
		{
			name:     "returns empty map for nil registry",
			registry: nil,
			expected: map[string]bool{},
		},
		{
			name:     "returns empty map for empty registry",
			registry: New(map[string]bool{}),
			expected: map[string]bool{},
		},
		{
			name:     "returns empty map for nil flags",
			registry: New(nil),
			expected: map[string]bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.registry.All()
			require.Equal(t, tt.expected, result)
		})
	}
}

func TestRegistry_All_ReturnsDefensiveCopy(t *testing.T) {
	original := map[string]bool{FlagStickyLookup: true}
	r := New(original)

	// Get a copy via All()
	copy := r.All()

	// Mutate the copy
	copy[FlagStickyLookup] = false
	copy["new-flag"] = true

	// Verify the registry is unaffected
	require.True(t, r.Enabled(FlagStickyLookup), "registry should not be affected by copy mutation")
	require.False(t, r.Enabled("new-flag"), "registry should not have new flags from copy mutation")

	// Verify All() returns the original state
	freshCopy := r.All()
	require.Equal(t, map[string]bool{FlagStickyLookup: true}, freshCopy)
}

func TestNew_CopiesInput(t *testing.T) {
	input := map[string]bool{FlagStickyLookup: true}
	r := New(input)

	input[FlagStickyLookup] = false
	require.True(t, r.Enabled(FlagStickyLookup), "registry must not alias the config map")
}

func TestNew_WarnsOnUnknownFlag(t *testing.T) {
	var buf bytes.Buffer
	log.InitWriter(&buf, log.LevelWarn)
	t.Cleanup(func() { log.SetEnabled(false) })

	r := New(map[string]bool{"stickylookup": true, FlagCachedLookup: true})
	require.True(t, r.Enabled("stickylookup"), "unknown flags are still readable")
	require.Contains(t, buf.String(), "Unknown feature flag in config flag=stickylookup")
	require.NotContains(t, buf.String(), FlagCachedLookup)
}

func TestNew_WithNilFlags(t *testing.T) {
	r := New(nil)
	require.NotNil(t, r)
	require.False(t, r.Enabled("any"))
}

func TestNew_WithEmptyFlags(t *testing.T) {
	r := New(map[string]bool{})
	require.NotNil(t, r)
	require.False(t, r.Enabled("any"))
}
