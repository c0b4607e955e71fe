package residency

import (
	"bytes"
	"errors"
	"testing"

	"github.com/IvanBrykalov/policystack/policy"
)

// --- test doubles ---

// fifo admits at MRU, never promotes and evicts the table LRU.
// Its hint is the class byte.
type fifo struct{ h Hooks }

type fifoFactory struct{}

func (fifoFactory) New(h Hooks) Ordering { return &fifo{h: h} }
func (fifoFactory) HintSize() int        { return 1 }

func (f *fifo) OnAdd(n Node) { f.h.PushFront(n) }
func (f *fifo) OnGet(Node)   {}
func (f *fifo) OnRemove(Node) {}
func (f *fifo) OnLoad(n Node, hint []byte, ok bool) {
	if ok && len(hint) > 0 {
		n.Meta().Class = hint[0]
	}
	f.h.PushFront(n)
}
func (f *fifo) Victim() Node       { return f.h.Back() }
func (f *fifo) Hint(n Node) []byte { return []byte{n.Meta().Class} }

var migrate = policy.Request{CanBlock: true, CanMigrate: true}

func mustMap(t *testing.T, tb *Table, ob policy.OBlock, req policy.Request) policy.Result {
	t.Helper()
	r, err := tb.Map(ob, req)
	if err != nil {
		t.Fatalf("Map(%d): %v", ob, err)
	}
	return r
}

// --- tests ---

func TestTable_AllocatesFreeSlotsThenReplaces(t *testing.T) {
	t.Parallel()

	tb := NewTable(3, fifoFactory{})
	for i, ob := range []policy.OBlock{100, 101, 102} {
		r := mustMap(t, tb, ob, migrate)
		if r.Op != policy.OpNeedsMigration || r.Replaces || r.CBlock != policy.CBlock(i) {
			t.Fatalf("Map(%d): want migration into free slot %d, got %+v", ob, i, r)
		}
	}
	if tb.Len() != 3 {
		t.Fatalf("Len: got %d want 3", tb.Len())
	}

	r := mustMap(t, tb, 103, migrate)
	if r.Op != policy.OpNeedsMigration || !r.Replaces || r.OldOBlock != 100 || r.CBlock != 0 {
		t.Fatalf("expected 100 replaced in slot 0, got %+v", r)
	}
	if cb, ok := tb.Lookup(103); !ok || cb != 0 {
		t.Fatalf("Lookup(103): got %d,%v", cb, ok)
	}
	if tb.Len() != 3 {
		t.Fatalf("Len after replacement: got %d want 3", tb.Len())
	}
}

func TestTable_HitAndMissWithoutMigration(t *testing.T) {
	t.Parallel()

	tb := NewTable(2, fifoFactory{})
	if r := mustMap(t, tb, 1, policy.Request{CanBlock: true}); r.Op != policy.OpMiss {
		t.Fatalf("no migration allowed: want miss, got %v", r.Op)
	}
	mustMap(t, tb, 1, migrate)
	if r := mustMap(t, tb, 1, policy.Request{CanBlock: true}); r.Op != policy.OpHit || r.CBlock != 0 {
		t.Fatalf("want hit in slot 0, got %+v", r)
	}
}

func TestTable_DirtyVictimIsNotReplaced(t *testing.T) {
	t.Parallel()

	tb := NewTable(1, fifoFactory{})
	mustMap(t, tb, 1, migrate)
	tb.SetDirty(1)

	if r := mustMap(t, tb, 2, migrate); r.Op != policy.OpMiss {
		t.Fatalf("dirty victim: want miss, got %+v", r)
	}
	ob, cb, err := tb.Writeback()
	if err != nil || ob != 1 || cb != 0 {
		t.Fatalf("Writeback: got %d,%d,%v", ob, cb, err)
	}
	if _, _, err := tb.Writeback(); !errors.Is(err, policy.ErrNoData) {
		t.Fatalf("second Writeback: want ErrNoData, got %v", err)
	}
	if r := mustMap(t, tb, 2, migrate); !r.Replaces || r.OldOBlock != 1 {
		t.Fatalf("clean victim must be replaced, got %+v", r)
	}
}

func TestTable_MigrationThreshold(t *testing.T) {
	t.Parallel()

	tb := NewTable(4, fifoFactory{})
	tb.SetThreshold(3)

	for i := 0; i < 2; i++ {
		if r := mustMap(t, tb, 7, migrate); r.Op != policy.OpMiss {
			t.Fatalf("miss %d below threshold: got %v", i, r.Op)
		}
	}
	if r := mustMap(t, tb, 7, migrate); r.Op != policy.OpNeedsMigration {
		t.Fatalf("third miss must migrate, got %v", r.Op)
	}

	discarded := migrate
	discarded.Discarded = true
	if r := mustMap(t, tb, 8, discarded); r.Op != policy.OpNeedsMigration {
		t.Fatalf("discarded block skips the threshold, got %v", r.Op)
	}
}

func TestTable_WouldBlock(t *testing.T) {
	t.Parallel()

	tb := NewTable(2, fifoFactory{})
	tb.mu.Lock()
	_, err := tb.Map(1, policy.Request{CanMigrate: true})
	tb.mu.Unlock()
	if !errors.Is(err, policy.ErrWouldBlock) {
		t.Fatalf("want ErrWouldBlock, got %v", err)
	}
}

func TestTable_LoadValidation(t *testing.T) {
	t.Parallel()

	tb := NewTable(2, fifoFactory{})
	if err := tb.Load(1, 0, nil, false); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cases := []struct {
		name string
		ob   policy.OBlock
		cb   policy.CBlock
	}{
		{"cblock out of range", 2, 5},
		{"cblock taken", 2, 0},
		{"oblock mapped", 1, 1},
	}
	for _, c := range cases {
		if err := tb.Load(c.ob, c.cb, nil, false); !errors.Is(err, policy.ErrInvalidArgument) {
			t.Fatalf("%s: want ErrInvalidArgument, got %v", c.name, err)
		}
	}
}

func TestTable_LoadWalkRoundTrip(t *testing.T) {
	t.Parallel()

	tb := NewTable(4, fifoFactory{})
	// restored LRU to MRU
	for i, ob := range []policy.OBlock{10, 11, 12} {
		if err := tb.Load(ob, policy.CBlock(i), []byte{byte(i + 1)}, true); err != nil {
			t.Fatalf("Load(%d): %v", ob, err)
		}
	}

	var obs []policy.OBlock
	var hints []byte
	err := tb.Walk(func(cb policy.CBlock, ob policy.OBlock, hint []byte) error {
		obs = append(obs, ob)
		hints = append(hints, hint...)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(obs) != 3 || obs[0] != 12 || obs[2] != 10 {
		t.Fatalf("walk must go MRU to LRU, got %v", obs)
	}
	if !bytes.Equal(hints, []byte{3, 2, 1}) {
		t.Fatalf("hints: got %v", hints)
	}

	// the next free slot is 3
	if r := mustMap(t, tb, 13, migrate); r.CBlock != 3 || r.Replaces {
		t.Fatalf("want free slot 3, got %+v", r)
	}
}

func TestTable_WalkStopsOnError(t *testing.T) {
	t.Parallel()

	tb := NewTable(4, fifoFactory{})
	for _, ob := range []policy.OBlock{1, 2, 3} {
		mustMap(t, tb, ob, migrate)
	}
	stop := errors.New("stop")
	calls := 0
	err := tb.Walk(func(policy.CBlock, policy.OBlock, []byte) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("walk must stop at first error: calls=%d err=%v", calls, err)
	}
}

func TestTable_RemoveFreesSlot(t *testing.T) {
	t.Parallel()

	tb := NewTable(2, fifoFactory{})
	mustMap(t, tb, 1, migrate)
	mustMap(t, tb, 2, migrate)
	tb.Remove(1)
	tb.Remove(42) // not resident

	if tb.Len() != 1 {
		t.Fatalf("Len: got %d want 1", tb.Len())
	}
	if r := mustMap(t, tb, 3, migrate); r.CBlock != 0 || r.Replaces {
		t.Fatalf("freed slot 0 must be reused, got %+v", r)
	}
}

func TestTable_ForceKeepsSlot(t *testing.T) {
	t.Parallel()

	tb := NewTable(2, fifoFactory{})
	mustMap(t, tb, 1, migrate)
	mustMap(t, tb, 2, migrate)

	tb.Force(1, 9)
	if _, ok := tb.Lookup(1); ok {
		t.Fatal("old oblock must be gone")
	}
	if cb, ok := tb.Lookup(9); !ok || cb != 0 {
		t.Fatalf("Lookup(9): got %d,%v", cb, ok)
	}

	tb.Force(9, 2) // target already resident
	if cb, _ := tb.Lookup(9); cb != 0 {
		t.Fatal("force onto a resident oblock must be ignored")
	}
}

func TestTable_TickHalvesHits(t *testing.T) {
	t.Parallel()

	tb := NewTable(1, fifoFactory{})
	mustMap(t, tb, 1, migrate)
	for i := 0; i < 4; i++ {
		mustMap(t, tb, 1, migrate)
	}
	tb.Tick()
	if hits := tb.byCB[0].meta.Hits; hits != 2 {
		t.Fatalf("hits after tick: got %d want 2", hits)
	}
}
