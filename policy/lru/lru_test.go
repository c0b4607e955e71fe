package lru

import (
	"bytes"
	"testing"

	"github.com/IvanBrykalov/policystack/internal/residency"
	"github.com/IvanBrykalov/policystack/policy"
)

// --- test doubles ---

type testNode struct {
	ob   policy.OBlock
	cb   policy.CBlock
	meta residency.Meta
}

func (n *testNode) OBlock() policy.OBlock { return n.ob }
func (n *testNode) CBlock() policy.CBlock { return n.cb }
func (n *testNode) Dirty() bool           { return false }
func (n *testNode) Meta() *residency.Meta { return &n.meta }

type mockHooks struct {
	pushFrontCnt   int
	moveToFrontCnt int
	removeCnt      int

	lastPush residency.Node
	lastMove residency.Node
	lastRem  residency.Node

	lenVal  int
	backVal residency.Node
}

func (h *mockHooks) MoveToFront(n residency.Node) { h.moveToFrontCnt++; h.lastMove = n }
func (h *mockHooks) PushFront(n residency.Node)   { h.pushFrontCnt++; h.lastPush = n }
func (h *mockHooks) Remove(n residency.Node)      { h.removeCnt++; h.lastRem = n }
func (h *mockHooks) Back() residency.Node         { return h.backVal }
func (h *mockHooks) Len() int                     { return h.lenVal }

// --- tests ---

// OnAdd should push the node to MRU.
func TestLRU_OnAdd_PushFront(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := Factory().New(h)

	n := &testNode{ob: 1, cb: 0}
	p.OnAdd(n)

	if h.pushFrontCnt != 1 || h.lastPush != n {
		t.Fatalf("OnAdd must call PushFront exactly once with the node")
	}
	if h.moveToFrontCnt != 0 || h.removeCnt != 0 {
		t.Fatalf("OnAdd must not call MoveToFront/Remove")
	}
}

// OnGet should promote the node to MRU.
func TestLRU_OnGet_MoveToFront(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := Factory().New(h)

	n := &testNode{ob: 2, cb: 1}
	p.OnGet(n)

	if h.moveToFrontCnt != 1 || h.lastMove != n {
		t.Fatalf("OnGet must call MoveToFront exactly once with the node")
	}
	if h.pushFrontCnt != 0 || h.removeCnt != 0 {
		t.Fatalf("OnGet must not call PushFront/Remove")
	}
}

// OnRemove is a no-op for pure LRU.
func TestLRU_OnRemove_NoOp(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := Factory().New(h)

	p.OnRemove(&testNode{ob: 4})

	if h.pushFrontCnt != 0 || h.moveToFrontCnt != 0 || h.removeCnt != 0 {
		t.Fatalf("OnRemove for LRU must be no-op (no hooks should be called)")
	}
}

// Victim is whatever the table reports as LRU.
func TestLRU_Victim_IsBack(t *testing.T) {
	t.Parallel()

	back := &testNode{ob: 9, cb: 3}
	h := &mockHooks{backVal: back}
	p := Factory().New(h)

	if v := p.Victim(); v != back {
		t.Fatalf("Victim must return Back(), got %v", v)
	}
}

// The hit count survives a hint round trip.
func TestLRU_HintRoundTrip(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := Factory().New(h)

	src := &testNode{ob: 5, cb: 2}
	src.meta.Hits = 0x01020304
	hint := p.Hint(src)
	if len(hint) != HintSize {
		t.Fatalf("hint size: got %d want %d", len(hint), HintSize)
	}
	if !bytes.Equal(hint, []byte{4, 3, 2, 1}) {
		t.Fatalf("hint must be little-endian hits, got %v", hint)
	}

	dst := &testNode{ob: 5, cb: 2}
	p.OnLoad(dst, hint, true)
	if dst.meta.Hits != src.meta.Hits {
		t.Fatalf("OnLoad hits: got %d want %d", dst.meta.Hits, src.meta.Hits)
	}
	if h.pushFrontCnt != 1 || h.lastPush != dst {
		t.Fatalf("OnLoad must push the node to MRU")
	}
}

// An invalid hint is ignored but the node is still linked.
func TestLRU_OnLoad_InvalidHint(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := Factory().New(h)

	n := &testNode{ob: 6}
	p.OnLoad(n, []byte{0xff, 0xff, 0xff, 0xff}, false)
	if n.meta.Hits != 0 {
		t.Fatalf("invalid hint must not be decoded, hits=%d", n.meta.Hits)
	}
	if h.pushFrontCnt != 1 {
		t.Fatalf("OnLoad must link the node even without a hint")
	}
}

// End to end through a real table: the least recently used block is replaced.
func TestLRU_Terminal_ReplacesLRU(t *testing.T) {
	t.Parallel()

	p, err := New(2, 100, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := policy.Request{CanBlock: true, CanMigrate: true}

	for _, ob := range []policy.OBlock{10, 11} {
		r, err := p.Map(ob, req)
		if err != nil || r.Op != policy.OpNeedsMigration {
			t.Fatalf("Map(%d): %+v %v", ob, r, err)
		}
	}
	// touch 10 so 11 becomes LRU
	if r, _ := p.Map(10, req); r.Op != policy.OpHit {
		t.Fatalf("Map(10) must hit, got %v", r.Op)
	}

	r, err := p.Map(12, req)
	if err != nil {
		t.Fatalf("Map(12): %v", err)
	}
	if r.Op != policy.OpNeedsMigration || !r.Replaces || r.OldOBlock != 11 {
		t.Fatalf("expected 11 to be replaced, got %+v", r)
	}
	if _, ok := p.Lookup(11); ok {
		t.Fatalf("11 must no longer be resident")
	}
}
