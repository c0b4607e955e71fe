// Package stats implements a hintless shim that counts access outcomes of the
// stack below it and forwards them to a Metrics sink.
package stats

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/IvanBrykalov/policystack/internal/util"
	"github.com/IvanBrykalov/policystack/policy"
	"github.com/IvanBrykalov/policystack/policy/shim"
)

// Name is the registry name of the stats shim.
const Name = "stats"

// KeyReset zeroes the counters when set to "1".
const KeyReset = "reset_stats"

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Hits       uint64
	Misses     uint64
	Migrations uint64
	WouldBlock uint64
}

// Shim counts Map outcomes. It owns no hint bytes.
type Shim struct {
	*shim.Base

	// hot counters on separate cache lines
	hits       util.PaddedAtomicUint64
	misses     util.PaddedAtomicUint64
	migrations util.PaddedAtomicUint64
	wouldBlock util.PaddedAtomicUint64

	m atomic.Pointer[metricsBox]
}

// metricsBox lets an interface value live behind an atomic.Pointer.
type metricsBox struct{ Metrics }

// NewShim returns a stats shim reporting to m (nil => NoopMetrics).
func NewShim(m Metrics) *Shim {
	s := &Shim{Base: shim.New(0, nil)}
	s.SetMetrics(m)
	return s
}

// New is the registry constructor; metrics can be attached later with
// SetMetrics.
func New(policy.CBlock, policy.OBlock, uint32) (policy.Policy, error) {
	return NewShim(nil), nil
}

// Type is the registry entry for the stats shim.
func Type() policy.Type {
	return policy.Type{
		Name:    Name,
		Version: policy.Version{1, 0, 0},
		Shim:    true,
		New:     New,
	}
}

// SetMetrics swaps the sink. Safe to call while traffic flows.
func (s *Shim) SetMetrics(m Metrics) {
	if m == nil {
		m = NoopMetrics{}
	}
	s.m.Store(&metricsBox{m})
}

func (s *Shim) metrics() Metrics { return s.m.Load().Metrics }

// Snapshot returns the current counters.
func (s *Shim) Snapshot() Snapshot {
	return Snapshot{
		Hits:       s.hits.Load(),
		Misses:     s.misses.Load(),
		Migrations: s.migrations.Load(),
		WouldBlock: s.wouldBlock.Load(),
	}
}

// Map forwards to the child and records the outcome.
func (s *Shim) Map(ob policy.OBlock, req policy.Request) (policy.Result, error) {
	r, err := s.Child().Map(ob, req)
	if err != nil {
		if errors.Is(err, policy.ErrWouldBlock) {
			s.wouldBlock.Add(1)
			s.metrics().WouldBlock()
		}
		return r, err
	}
	switch r.Op {
	case policy.OpHit:
		s.hits.Add(1)
		s.metrics().Hit()
	case policy.OpMiss:
		s.misses.Add(1)
		s.metrics().Miss()
	case policy.OpNeedsMigration:
		s.migrations.Add(1)
		s.metrics().Migrate(r.Replaces)
	}
	return r, nil
}

// Tick samples residency before ticking the child.
func (s *Shim) Tick() {
	s.metrics().Residency(int(s.Child().Residency()))
	s.Child().Tick()
}

// SetConfigValue handles reset_stats and forwards every other key.
func (s *Shim) SetConfigValue(key, value string) error {
	if key != KeyReset {
		return s.Child().SetConfigValue(key, value)
	}
	if value != "1" {
		return errors.Wrapf(policy.ErrInvalidArgument, "%s %q", key, value)
	}
	s.hits.Store(0)
	s.misses.Store(0)
	s.migrations.Store(0)
	s.wouldBlock.Store(0)
	return nil
}

// EmitConfigValues writes the counters followed by the child's values.
func (s *Shim) EmitConfigValues(w io.Writer) error {
	snap := s.Snapshot()
	if _, err := fmt.Fprintf(w, "hits %d misses %d migrations %d ", snap.Hits, snap.Misses, snap.Migrations); err != nil {
		return err
	}
	return s.Child().EmitConfigValues(w)
}
