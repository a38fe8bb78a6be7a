package handle

import (
	"cmp"
	"fmt"
	"sync/atomic"
)

// Identity is the stable tie-break key of a handle, assigned at creation.
type Identity struct {
	Space uint32
	Seq   uint64
}

// Compare orders identities by space, then sequence.
func (id Identity) Compare(o Identity) int {
	if c := cmp.Compare(id.Space, o.Space); c != 0 {
		return c
	}
	return cmp.Compare(id.Seq, o.Seq)
}

func (id Identity) String() string {
	return fmt.Sprintf("%d/%d", id.Space, id.Seq)
}

var spaces atomic.Uint32

// NextSpace returns a fresh identity space.
func NextSpace() uint32 {
	return spaces.Add(1)
}

// Sequence hands out monotonically increasing identities within one space.
type Sequence struct {
	space uint32
	next  atomic.Uint64
}

// NewSequence creates a sequence for the given space.
func NewSequence(space uint32) *Sequence {
	return &Sequence{space: space}
}

// Next returns the next identity.
func (s *Sequence) Next() Identity {
	return Identity{Space: s.space, Seq: s.next.Add(1)}
}

// Space returns the identity space of the sequence.
func (s *Sequence) Space() uint32 {
	return s.space
}

// Key is the total order of a ranked set: rank descending, identity ascending.
type Key struct {
	Rank int
	ID   Identity
}

// Compare returns -1 when k sorts before o, +1 when after, 0 when equal.
func (k Key) Compare(o Key) int {
	if k.Rank != o.Rank {
		return cmp.Compare(o.Rank, k.Rank)
	}
	return k.ID.Compare(o.ID)
}

func (k Key) String() string {
	return fmt.Sprintf("(%d,%s)", k.Rank, k.ID)
}
