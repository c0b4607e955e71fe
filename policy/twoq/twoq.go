// Package twoq implements the 2Q terminal policy.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/policystack/internal/residency"
	"github.com/IvanBrykalov/policystack/policy"
)

// Name is the registry name of the 2Q terminal policy.
const Name = "2q"

// HintSize: one byte, the resident queue class.
const HintSize = 1

const (
	classAm   = 0
	classA1in = 1
)

// twoQ implements the 2Q replacement strategy over cache slots.
//
// Resident queues:
//   - A1in (younger queue): its own list + index by Node; admits first-time blocks
//   - Am   (mature queue):  nodes not present in inIdx; ordering is driven by table hooks
//
// Ghost A1out: origin blocks only, tracks recently replaced A1in blocks to give
// them a second chance (bypass A1in on re-admission).
//
// Concurrency: all methods are called under the table lock.
type twoQ struct {
	h residency.Hooks

	capIn    int // A1in capacity
	capGhost int // A1out (ghost) capacity

	// A1in: MRU at Front() -> LRU at Back()
	inList *list.List
	// Fast membership check for "is node in A1in?"
	inIdx map[residency.Node]*list.Element // element.Value is residency.Node

	// A1out (ghosts): MRU at Front() -> LRU at Back()
	ghostList *list.List
	ghostIdx  map[policy.OBlock]*list.Element // element.Value is policy.OBlock
}

type twoQFactory struct {
	capIn    int
	capGhost int
}

// Factory returns a 2Q ordering factory.
// Common choices: capIn ≈ 25% of the cache size; capGhost ≈ 50% of it.
func Factory(capIn, capGhost int) residency.Factory {
	if capIn < 1 {
		capIn = 1
	}
	if capGhost < 1 {
		capGhost = 1
	}
	return twoQFactory{capIn: capIn, capGhost: capGhost}
}

func (f twoQFactory) New(h residency.Hooks) residency.Ordering {
	return &twoQ{
		h:         h,
		capIn:     f.capIn,
		capGhost:  f.capGhost,
		inList:    list.New(),
		inIdx:     make(map[residency.Node]*list.Element),
		ghostList: list.New(),
		ghostIdx:  make(map[policy.OBlock]*list.Element),
	}
}

func (twoQFactory) HintSize() int { return HintSize }

// New constructs a 2Q terminal policy with A1in at a quarter of the cache
// and ghosts at half of it.
func New(cacheSize policy.CBlock, _ policy.OBlock, _ uint32) (policy.Policy, error) {
	n := int(cacheSize)
	return residency.NewTerminal(cacheSize, Factory(n/4, n/2)), nil
}

// Type is the registry entry for the 2Q terminal policy.
func Type() policy.Type {
	return policy.Type{
		Name:     Name,
		Version:  policy.Version{1, 0, 0},
		HintSize: HintSize,
		New:      New,
	}
}

// OnAdd admission rules:
//   - If the block is in ghosts (A1out), bypass A1in and admit directly to Am (MRU).
//     Also remove the ghost entry.
//   - Otherwise admit into A1in (and MRU in the table list via hooks).
func (q *twoQ) OnAdd(n residency.Node) {
	ob := n.OBlock()
	if ge, ok := q.ghostIdx[ob]; ok {
		// Second chance: promote from ghosts directly into Am (skip A1in).
		q.ghostList.Remove(ge)
		delete(q.ghostIdx, ob)
		n.Meta().Class = classAm
		q.h.PushFront(n)
		return
	}
	q.h.PushFront(n)
	q.pushIn(n)
}

// OnGet: if the node was in A1in, remove it from A1in (promotion to Am),
// then move it to MRU in the table list.
func (q *twoQ) OnGet(n residency.Node) {
	if el, ok := q.inIdx[n]; ok {
		q.inList.Remove(el)
		delete(q.inIdx, n)
		n.Meta().Class = classAm
	}
	q.h.MoveToFront(n)
}

// OnRemove:
//   - If the node was in A1in, add its block to ghosts (A1out), respecting capGhost.
//   - Removals from Am do NOT populate ghosts.
func (q *twoQ) OnRemove(n residency.Node) {
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.inList.Remove(el)
	delete(q.inIdx, n)

	ob := n.OBlock()
	if old := q.ghostIdx[ob]; old != nil {
		q.ghostList.Remove(old)
	}
	q.ghostIdx[ob] = q.ghostList.PushFront(ob)

	// Enforce ghost capacity (drop LRU ghosts).
	for q.ghostList.Len() > q.capGhost {
		tail := q.ghostList.Back()
		if tail == nil {
			break
		}
		delete(q.ghostIdx, tail.Value.(policy.OBlock))
		q.ghostList.Remove(tail)
	}
}

// OnLoad restores the queue class recorded in the hint. Without a valid hint
// the block is treated as mature.
func (q *twoQ) OnLoad(n residency.Node, hint []byte, hintValid bool) {
	q.h.PushFront(n)
	if hintValid && len(hint) >= HintSize && hint[0] == classA1in {
		q.pushIn(n)
		return
	}
	n.Meta().Class = classAm
}

// Victim prefers the LRU of A1in while A1in is over capacity, otherwise the
// LRU of the whole table.
func (q *twoQ) Victim() residency.Node {
	if q.inList.Len() > q.capIn {
		if el := q.inList.Back(); el != nil {
			return el.Value.(residency.Node)
		}
	}
	return q.h.Back()
}

// Hint encodes the queue class.
func (q *twoQ) Hint(n residency.Node) []byte {
	if _, ok := q.inIdx[n]; ok {
		return []byte{classA1in}
	}
	return []byte{classAm}
}

func (q *twoQ) pushIn(n residency.Node) {
	n.Meta().Class = classA1in
	q.inIdx[n] = q.inList.PushFront(n)
}
