// Package residency implements the resident-mapping table shared by the
// terminal policies: which origin block lives in which cache slot, the
// MRU/LRU ordering of those slots and their dirty state.
//
// The replacement strategy is pluggable: an Ordering manipulates the table's
// intrusive list through Hooks and picks eviction victims.
package residency

import "github.com/IvanBrykalov/policystack/policy"

// Node is the read view of one resident mapping handed to an Ordering.
type Node interface {
	OBlock() policy.OBlock
	CBlock() policy.CBlock
	Dirty() bool
	Meta() *Meta
}

// Hooks expose O(1) list operations on the table's intrusive MRU/LRU list.
//
// Concurrency: all hook calls happen under the table lock.
// Hooks manage only the list; the table owns the oblock->entry map.
type Hooks interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node)
	// PushFront inserts the node at MRU (used on admission and load).
	PushFront(Node)
	// Remove detaches the node from the list.
	Remove(Node)
	// Back returns the current LRU node (or nil if empty).
	Back() Node
	// Len returns the number of resident nodes.
	Len() int
}

// Ordering is a table-local replacement strategy bound to table hooks.
// All methods are invoked under the table lock.
//
// Semantics:
//   - OnAdd places a newly admitted node (it must end up linked).
//   - OnGet promotes a node on a hit.
//   - OnRemove is a notification; the table unlinks the node afterwards
//     if the ordering left it linked.
//   - OnLoad places a node restored at startup; hint is the ordering's own
//     hint slice and is only meaningful when hintValid is set.
//   - Victim proposes the node to replace when the table is full.
//   - Hint returns a fresh copy of the ordering's hint for n.
type Ordering interface {
	OnAdd(Node)
	OnGet(Node)
	OnRemove(Node)
	OnLoad(n Node, hint []byte, hintValid bool)
	Victim() Node
	Hint(Node) []byte
}

// Factory creates orderings bound to a particular table's hooks.
type Factory interface {
	New(Hooks) Ordering
	// HintSize is the size of the slice produced by Ordering.Hint.
	HintSize() int
}
