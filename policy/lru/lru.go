// Package lru implements the LRU terminal policy.
package lru

import (
	"encoding/binary"

	"github.com/IvanBrykalov/policystack/internal/residency"
	"github.com/IvanBrykalov/policystack/policy"
)

// Name is the registry name of the LRU terminal policy.
const Name = "lru"

// HintSize: little-endian uint32 hit count.
const HintSize = 4

// lru is a classic "move-to-front" Least-Recently-Used ordering.
// It delegates list manipulation to residency.Hooks provided by the table.
type lru struct {
	h residency.Hooks
}

type lruFactory struct{}

// Factory returns the ordering factory used by the LRU terminal.
func Factory() residency.Factory { return lruFactory{} }

// New implements residency.Factory by binding table hooks.
func (lruFactory) New(h residency.Hooks) residency.Ordering { return &lru{h: h} }

// HintSize implements residency.Factory.
func (lruFactory) HintSize() int { return HintSize }

// New constructs an LRU terminal policy.
func New(cacheSize policy.CBlock, _ policy.OBlock, _ uint32) (policy.Policy, error) {
	return residency.NewTerminal(cacheSize, Factory()), nil
}

// Type is the registry entry for the LRU terminal policy.
func Type() policy.Type {
	return policy.Type{
		Name:     Name,
		Version:  policy.Version{1, 0, 0},
		HintSize: HintSize,
		New:      New,
	}
}

// OnAdd places the new entry at MRU.
func (p *lru) OnAdd(n residency.Node) { p.h.PushFront(n) }

// OnGet promotes the entry to MRU.
func (p *lru) OnGet(n residency.Node) { p.h.MoveToFront(n) }

// OnRemove is a no-op for pure LRU (the table unlinks the node).
func (p *lru) OnRemove(_ residency.Node) {}

// OnLoad restores the hit count and places the entry at MRU, so mappings
// restored in LRU-to-MRU order keep their relative order.
func (p *lru) OnLoad(n residency.Node, hint []byte, hintValid bool) {
	if hintValid && len(hint) >= HintSize {
		n.Meta().Hits = binary.LittleEndian.Uint32(hint)
	}
	p.h.PushFront(n)
}

// Victim is the LRU entry.
func (p *lru) Victim() residency.Node { return p.h.Back() }

// Hint encodes the hit count.
func (p *lru) Hint(n residency.Node) []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, HintSize), n.Meta().Hits)
}
