package residency

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/IvanBrykalov/policystack/policy"
)

// Table tracks resident mappings for a cache of a fixed number of slots.
// It owns an oblock->entry map, a cblock->entry index, the set of used
// slots and an intrusive doubly linked list (head=MRU, tail=LRU) that the
// Ordering arranges through hooks.
//
// All methods are safe for concurrent use.
type Table struct {
	// ---- guarded by mu ----
	mu   sync.Mutex
	m    map[policy.OBlock]*entry
	byCB []*entry
	used *bitset.BitSet
	head *entry // MRU
	tail *entry // LRU
	len  int

	// miss counts for blocks waiting to cross the migration threshold
	pending   map[policy.OBlock]uint32
	threshold uint32

	capacity policy.CBlock
	o        Ordering
}

// NewTable builds a table with cacheSize slots ordered by f.
func NewTable(cacheSize policy.CBlock, f Factory) *Table {
	t := &Table{
		m:         make(map[policy.OBlock]*entry, cacheSize),
		byCB:      make([]*entry, cacheSize),
		used:      bitset.New(uint(cacheSize)),
		pending:   make(map[policy.OBlock]uint32),
		threshold: 1,
		capacity:  cacheSize,
	}
	t.o = f.New(tableHooks{t: t})
	return t
}

// Capacity returns the number of cache slots.
func (t *Table) Capacity() policy.CBlock { return t.capacity }

// Map resolves one access. See policy.Policy.Map.
func (t *Table) Map(ob policy.OBlock, req policy.Request) (policy.Result, error) {
	if req.CanBlock {
		t.mu.Lock()
	} else if !t.mu.TryLock() {
		return policy.Result{}, policy.ErrWouldBlock
	}
	defer t.mu.Unlock()

	if e, ok := t.m[ob]; ok {
		e.meta.Hits++
		t.o.OnGet(e)
		return policy.Result{Op: policy.OpHit, CBlock: e.cb}, nil
	}
	if !req.CanMigrate {
		return policy.Result{Op: policy.OpMiss}, nil
	}

	// Discarded blocks need no copy, so they skip the threshold.
	if !req.Discarded && t.threshold > 1 {
		c := t.pending[ob] + 1
		if c < t.threshold {
			if len(t.pending) >= len(t.byCB) {
				// bound the bookkeeping to one generation of misses
				clear(t.pending)
			}
			t.pending[ob] = c
			return policy.Result{Op: policy.OpMiss}, nil
		}
	}
	delete(t.pending, ob)

	if cb, ok := t.allocLocked(); ok {
		t.insertLocked(ob, cb)
		return policy.Result{Op: policy.OpNeedsMigration, CBlock: cb}, nil
	}

	v := t.o.Victim()
	if v == nil {
		return policy.Result{Op: policy.OpMiss}, nil
	}
	victim := v.(*entry)
	if victim.dirty {
		// must be written back before its slot can be reused
		return policy.Result{Op: policy.OpMiss}, nil
	}
	old, cb := victim.ob, victim.cb
	t.removeLocked(victim)
	t.insertLocked(ob, cb)
	return policy.Result{Op: policy.OpNeedsMigration, CBlock: cb, Replaces: true, OldOBlock: old}, nil
}

// Lookup reports where ob is cached without touching any state.
func (t *Table) Lookup(ob policy.OBlock) (policy.CBlock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.m[ob]; ok {
		return e.cb, true
	}
	return 0, false
}

// SetDirty marks ob as needing write-back. No-op when not resident.
func (t *Table) SetDirty(ob policy.OBlock) { t.setDirty(ob, true) }

// ClearDirty marks ob clean. No-op when not resident.
func (t *Table) ClearDirty(ob policy.OBlock) { t.setDirty(ob, false) }

func (t *Table) setDirty(ob policy.OBlock, dirty bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.m[ob]; ok {
		e.dirty = dirty
	}
}

// Load restores one mapping. hint is the ordering's slice.
func (t *Table) Load(ob policy.OBlock, cb policy.CBlock, hint []byte, hintValid bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cb >= t.capacity {
		return errors.Wrapf(policy.ErrInvalidArgument, "cblock %d out of range [0,%d)", cb, t.capacity)
	}
	if t.byCB[cb] != nil {
		return errors.Wrapf(policy.ErrInvalidArgument, "cblock %d already mapped", cb)
	}
	if _, ok := t.m[ob]; ok {
		return errors.Wrapf(policy.ErrInvalidArgument, "oblock %d already mapped", ob)
	}
	e := t.indexLocked(ob, cb)
	t.o.OnLoad(e, hint, hintValid)
	return nil
}

// Walk calls fn for every resident mapping from MRU to LRU, passing the
// ordering's hint. It stops at the first error. fn runs under the table
// lock and must not call back into the table.
func (t *Table) Walk(fn policy.WalkFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for e := t.head; e != nil; e = e.next {
		if err := fn(e.cb, e.ob, t.o.Hint(e)); err != nil {
			return err
		}
	}
	return nil
}

// Remove drops the mapping for ob and frees its slot.
func (t *Table) Remove(ob policy.OBlock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.m[ob]; ok {
		t.removeLocked(e)
	}
}

// Force renames a resident mapping from oldOB to newOB keeping its slot.
// No-op when oldOB is not resident or newOB already is.
func (t *Table) Force(oldOB, newOB policy.OBlock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[oldOB]
	if !ok {
		return
	}
	if _, taken := t.m[newOB]; taken {
		return
	}
	delete(t.m, oldOB)
	e.ob = newOB
	t.m[newOB] = e
}

// Writeback returns the least recently used dirty block and marks it clean.
func (t *Table) Writeback() (policy.OBlock, policy.CBlock, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for e := t.tail; e != nil; e = e.prev {
		if e.dirty {
			e.dirty = false
			return e.ob, e.cb, nil
		}
	}
	return 0, 0, policy.ErrNoData
}

// Len returns the number of resident mappings.
func (t *Table) Len() policy.CBlock {
	t.mu.Lock()
	defer t.mu.Unlock()
	return policy.CBlock(t.len)
}

// Tick ages hit counters.
func (t *Table) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for e := t.head; e != nil; e = e.next {
		e.meta.Hits >>= 1
	}
}

// Threshold returns the number of misses needed before a block is promoted.
func (t *Table) Threshold() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.threshold
}

// SetThreshold sets the migration threshold (minimum 1).
func (t *Table) SetThreshold(n uint32) {
	if n < 1 {
		n = 1
	}
	t.mu.Lock()
	t.threshold = n
	clear(t.pending)
	t.mu.Unlock()
}

// -------------------- internals (mu held) --------------------

func (t *Table) allocLocked() (policy.CBlock, bool) {
	i, ok := t.used.NextClear(0)
	if !ok || i >= uint(t.capacity) {
		return 0, false
	}
	return policy.CBlock(i), true
}

// indexLocked records a new entry in the map, slot index and used set.
func (t *Table) indexLocked(ob policy.OBlock, cb policy.CBlock) *entry {
	e := &entry{ob: ob, cb: cb}
	t.m[ob] = e
	t.byCB[cb] = e
	t.used.Set(uint(cb))
	return e
}

func (t *Table) insertLocked(ob policy.OBlock, cb policy.CBlock) {
	e := t.indexLocked(ob, cb)
	t.o.OnAdd(e)
}

func (t *Table) removeLocked(e *entry) {
	t.o.OnRemove(e)
	if e.prev != nil || e.next != nil || t.head == e {
		t.unlink(e)
	}
	delete(t.m, e.ob)
	t.byCB[e.cb] = nil
	t.used.Clear(uint(e.cb))
}

// pushFront inserts e at MRU in O(1).
func (t *Table) pushFront(e *entry) {
	e.prev = nil
	e.next = t.head
	if t.head != nil {
		t.head.prev = e
	}
	t.head = e
	if t.tail == nil {
		t.tail = e
	}
	t.len++
}

// moveToFront promotes e to MRU in O(1).
func (t *Table) moveToFront(e *entry) {
	if e == t.head {
		return
	}
	// detach
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if t.tail == e {
		t.tail = e.prev
	}
	// insert at head
	e.prev = nil
	e.next = t.head
	if t.head != nil {
		t.head.prev = e
	}
	t.head = e
	if t.tail == nil {
		t.tail = e
	}
}

// unlink removes e from the list in O(1).
func (t *Table) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if t.head == e {
		t.head = e.next
	}
	if t.tail == e {
		t.tail = e.prev
	}
	e.prev, e.next = nil, nil
	t.len--
}

// -------------------- ordering hooks --------------------

// tableHooks adapts the table's list operations to Hooks.
type tableHooks struct{ t *Table }

func (h tableHooks) MoveToFront(n Node) { h.t.moveToFront(n.(*entry)) }
func (h tableHooks) PushFront(n Node)   { h.t.pushFront(n.(*entry)) }
func (h tableHooks) Remove(n Node)      { h.t.unlink(n.(*entry)) }
func (h tableHooks) Back() Node {
	if h.t.tail == nil {
		// avoid a typed-nil Node
		return nil
	}
	return h.t.tail
}
func (h tableHooks) Len() int { return h.t.len }
