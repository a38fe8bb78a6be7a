package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/rankreg/internal/handle"
)

func TestWithStandardServices_Order(t *testing.T) {
	set, _ := NewBuilder(t).WithStandardServices().BuildSet("standard")

	var got []string
	for h := range set.All(nil) {
		got = append(got, h.Attributes().String("name"))
	}
	require.Equal(t, []string{"db-primary", "cache", "db-replica", "legacy"}, got)
}

func TestWithTieBreakServices_Keys(t *testing.T) {
	set, handles := NewBuilder(t).WithTieBreakServices().BuildSet("ties")
	space := set.Sequence().Space()

	require.Equal(t, handle.Key{Rank: 10, ID: handle.Identity{Space: space, Seq: 1}}, handles["first"].Key())
	require.Equal(t, handle.Key{Rank: 10, ID: handle.Identity{Space: space, Seq: 2}}, handles["second"].Key())
	require.Equal(t, handle.Key{Rank: 5, ID: handle.Identity{Space: space, Seq: 3}}, handles["third"].Key())
}
