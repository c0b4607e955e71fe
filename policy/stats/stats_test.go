package stats

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/IvanBrykalov/policystack/policy"
	"github.com/IvanBrykalov/policystack/policy/lru"
)

// --- test doubles ---

type countingMetrics struct {
	mu                                    sync.Mutex
	hits, misses, migrations, replaced    int
	wouldBlock, residency, residencyCalls int
}

func (m *countingMetrics) Hit()  { m.mu.Lock(); m.hits++; m.mu.Unlock() }
func (m *countingMetrics) Miss() { m.mu.Lock(); m.misses++; m.mu.Unlock() }
func (m *countingMetrics) Migrate(r bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.migrations++
	if r {
		m.replaced++
	}
}
func (m *countingMetrics) WouldBlock() { m.mu.Lock(); m.wouldBlock++; m.mu.Unlock() }
func (m *countingMetrics) Residency(n int) {
	m.mu.Lock()
	m.residency = n
	m.residencyCalls++
	m.mu.Unlock()
}

// blockingTerminal wraps a real terminal and reports ErrWouldBlock for
// non-blocking requests.
type blockingTerminal struct{ policy.Policy }

func (b blockingTerminal) Map(ob policy.OBlock, req policy.Request) (policy.Result, error) {
	if !req.CanBlock {
		return policy.Result{}, policy.ErrWouldBlock
	}
	return b.Policy.Map(ob, req)
}

func newStack(t *testing.T, cacheSize policy.CBlock, m Metrics) (*Shim, policy.Policy) {
	t.Helper()
	term, err := lru.New(cacheSize, 1024, 8)
	if err != nil {
		t.Fatalf("lru.New: %v", err)
	}
	s := NewShim(m)
	s.SetChild(term)
	return s, term
}

// --- tests ---

func TestStats_CountsOutcomes(t *testing.T) {
	t.Parallel()

	m := &countingMetrics{}
	s, _ := newStack(t, 2, m)
	req := policy.Request{CanBlock: true, CanMigrate: true}

	_, _ = s.Map(1, req)                            // migrate
	_, _ = s.Map(2, req)                            // migrate
	_, _ = s.Map(1, req)                            // hit
	_, _ = s.Map(3, req)                            // migrate, replaces 2
	_, _ = s.Map(4, policy.Request{CanBlock: true}) // miss

	snap := s.Snapshot()
	if snap.Hits != 1 || snap.Misses != 1 || snap.Migrations != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if m.hits != 1 || m.misses != 1 || m.migrations != 3 || m.replaced != 1 {
		t.Fatalf("metrics not forwarded: %+v", m)
	}
}

func TestStats_WouldBlockIsCounted(t *testing.T) {
	t.Parallel()

	m := &countingMetrics{}
	s, term := newStack(t, 2, m)
	s.SetChild(blockingTerminal{term})

	_, err := s.Map(1, policy.Request{CanMigrate: true})
	if !errors.Is(err, policy.ErrWouldBlock) {
		t.Fatalf("want ErrWouldBlock, got %v", err)
	}
	if s.Snapshot().WouldBlock != 1 || m.wouldBlock != 1 {
		t.Fatalf("would-block not recorded")
	}
}

func TestStats_TickSamplesResidency(t *testing.T) {
	t.Parallel()

	m := &countingMetrics{}
	s, _ := newStack(t, 4, m)
	req := policy.Request{CanBlock: true, CanMigrate: true}
	_, _ = s.Map(1, req)
	_, _ = s.Map(2, req)

	s.Tick()
	if m.residencyCalls != 1 || m.residency != 2 {
		t.Fatalf("residency sample: calls=%d value=%d", m.residencyCalls, m.residency)
	}
}

func TestStats_EmitAndReset(t *testing.T) {
	t.Parallel()

	s, _ := newStack(t, 2, nil)
	_, _ = s.Map(1, policy.Request{CanBlock: true, CanMigrate: true})

	var buf bytes.Buffer
	if err := s.EmitConfigValues(&buf); err != nil {
		t.Fatalf("EmitConfigValues: %v", err)
	}
	want := "hits 0 misses 0 migrations 1 migration_threshold 1 "
	if buf.String() != want {
		t.Fatalf("emit:\n got %q\nwant %q", buf.String(), want)
	}

	if err := s.SetConfigValue(KeyReset, "yes"); !errors.Is(err, policy.ErrInvalidArgument) {
		t.Fatalf("bad reset value: want ErrInvalidArgument, got %v", err)
	}
	if err := s.SetConfigValue(KeyReset, "1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.Snapshot() != (Snapshot{}) {
		t.Fatalf("counters must be zero after reset, got %+v", s.Snapshot())
	}

	// unknown keys reach the terminal
	if err := s.SetConfigValue("migration_threshold", "2"); err != nil {
		t.Fatalf("forwarded key: %v", err)
	}
}

func TestStats_Hintless(t *testing.T) {
	t.Parallel()

	if Type().HintSize != 0 || NewShim(nil).HintSize() != 0 {
		t.Fatal("stats shim must own no hint bytes")
	}
	if !Type().Shim {
		t.Fatal("stats must register as a shim")
	}
}
