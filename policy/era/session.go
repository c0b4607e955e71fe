package era

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"

	"github.com/IvanBrykalov/policystack/policy"
)

// session tracks one bulk-unmap request while it is drained through
// InvalidateMapping. Guarded by the owning Shim's lock.
type session struct {
	id      uuid.UUID
	marked  *bitset.BitSet
	oblocks []policy.OBlock // indexed by cblock, valid where marked
	cursor  uint
	size    uint
}

func newSession(size int) *session {
	return &session{
		id:      uuid.New(),
		marked:  bitset.New(uint(size)),
		oblocks: make([]policy.OBlock, size),
		size:    uint(size),
	}
}

func (s *session) mark(cb policy.CBlock, ob policy.OBlock) {
	s.marked.Set(uint(cb))
	s.oblocks[cb] = ob
}

// next pops the first marked block at or after the cursor.
func (s *session) next() (policy.CBlock, policy.OBlock, bool) {
	i, ok := s.marked.NextSet(s.cursor)
	if !ok || i >= s.size {
		s.cursor = s.size
		return 0, 0, false
	}
	s.cursor = i + 1
	s.marked.Clear(i)
	return policy.CBlock(i), s.oblocks[i], true
}

// drained reports that every marked block has been consumed.
func (s *session) drained() bool { return s.marked.None() }

func (s *session) pending() uint { return s.marked.Count() }
