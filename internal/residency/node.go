package residency

import "github.com/IvanBrykalov/policystack/policy"

// Meta is per-entry state an ordering may read and update in place.
type Meta struct {
	// Hits counts accesses since admission (halved on every Tick).
	Hits uint32
	// Class is free for the ordering to tag entries (e.g. 2Q queue).
	Class uint8
}

// entry is an intrusive doubly linked list element owned by a Table.
// It maps one origin block to the cache slot holding it.
type entry struct {
	ob    policy.OBlock
	cb    policy.CBlock
	dirty bool
	meta  Meta

	// Intrusive list links: head is MRU, tail is LRU.
	prev *entry
	next *entry
}

// OBlock returns the origin block (part of the Node interface).
func (e *entry) OBlock() policy.OBlock { return e.ob }

// CBlock returns the cache slot (part of the Node interface).
func (e *entry) CBlock() policy.CBlock { return e.cb }

// Dirty reports the write-back state.
func (e *entry) Dirty() bool { return e.dirty }

// Meta returns a pointer to the ordering metadata.
// NOTE: callers must only touch it while holding the table lock.
func (e *entry) Meta() *Meta { return &e.meta }
