package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAdapter_ExportsCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := New(reg, "policystack", "cache", prometheus.Labels{"stack": "era+lru"})

	a.Hit()
	a.Hit()
	a.Miss()
	a.Migrate(false)
	a.Migrate(true)
	a.Migrate(true)
	a.WouldBlock()
	a.Residency(42)

	if got := testutil.ToFloat64(a.hits); got != 2 {
		t.Fatalf("hits: got %v want 2", got)
	}
	if got := testutil.ToFloat64(a.misses); got != 1 {
		t.Fatalf("misses: got %v want 1", got)
	}
	if got := testutil.ToFloat64(a.migrations.WithLabelValues("true")); got != 2 {
		t.Fatalf("replacing migrations: got %v want 2", got)
	}
	if got := testutil.ToFloat64(a.wouldBlock); got != 1 {
		t.Fatalf("would block: got %v want 1", got)
	}
	if got := testutil.ToFloat64(a.resident); got != 42 {
		t.Fatalf("resident: got %v want 42", got)
	}

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	// hits, misses, two migration series, would block, resident
	if n != 6 {
		t.Fatalf("series: got %d want 6", n)
	}
}
