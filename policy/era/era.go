// Package era implements the era shim: it stamps every cache block with the
// epoch of its last write hit and can bulk-invalidate blocks by comparing
// their stamp against a given era.
//
// Administrative messages (SetConfigValue):
//
//	increment_era_counter <current>                 bump the counter if <current> matches
//	unmap_blocks_from_later_eras <era>              stamp >  era
//	unmap_blocks_from_this_era_and_later <era>      stamp >= era
//	unmap_blocks_from_this_era_and_earlier <era>    stamp <= era
//	unmap_blocks_from_earlier_eras <era>            stamp <  era
//
// Blocks selected by an unmap message are handed out one at a time by
// InvalidateMapping until the session is drained. Only one session may be
// open at a time.
//
// Each block's era is persisted as a 4-byte little-endian hint slice.
package era

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/IvanBrykalov/policystack/internal/logger"
	"github.com/IvanBrykalov/policystack/policy"
	"github.com/IvanBrykalov/policystack/policy/shim"
)

const (
	// Name is the registry name of the era shim.
	Name = "era"
	// HintSize is the number of hint bytes the shim owns.
	HintSize = 4
	// MaxEra is the reserved maximum; the counter never moves past it.
	MaxEra = math.MaxUint32
)

// Config keys.
const (
	KeyIncrement           = "increment_era_counter"
	KeyUnmapLater          = "unmap_blocks_from_later_eras"
	KeyUnmapThisAndLater   = "unmap_blocks_from_this_era_and_later"
	KeyUnmapThisAndEarlier = "unmap_blocks_from_this_era_and_earlier"
	KeyUnmapEarlier        = "unmap_blocks_from_earlier_eras"
)

var unmapMatchers = map[string]func(stamp, era uint32) bool{
	KeyUnmapLater:          func(s, e uint32) bool { return s > e },
	KeyUnmapThisAndLater:   func(s, e uint32) bool { return s >= e },
	KeyUnmapThisAndEarlier: func(s, e uint32) bool { return s <= e },
	KeyUnmapEarlier:        func(s, e uint32) bool { return s < e },
}

// Shim is the era layer. Its lock guards the counter, the per-block eras and
// the invalidation session; the child is called with the lock held, so the
// child must never call back into this shim.
type Shim struct {
	*shim.Base

	mu      sync.Mutex
	counter uint32
	cbToEra []uint32
	session *session
}

// NewShim returns an era shim for a cache of cacheSize blocks.
// The counter starts at 1.
func NewShim(cacheSize policy.CBlock) *Shim {
	s := &Shim{
		counter: 1,
		cbToEra: make([]uint32, cacheSize),
	}
	s.Base = shim.New(HintSize, s.hint)
	return s
}

// New is the registry constructor.
func New(cacheSize policy.CBlock, _ policy.OBlock, _ uint32) (policy.Policy, error) {
	return NewShim(cacheSize), nil
}

// Type is the registry entry for the era shim.
func Type() policy.Type {
	return policy.Type{
		Name:     Name,
		Version:  policy.Version{1, 0, 0},
		HintSize: HintSize,
		Shim:     true,
		New:      New,
	}
}

// Era returns the live era counter.
func (s *Shim) Era() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// EraOf returns the era stamped on cb.
func (s *Shim) EraOf(cb policy.CBlock) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(cb) >= len(s.cbToEra) {
		return 0, false
	}
	return s.cbToEra[cb], true
}

// Map delegates to the child and stamps write hits with the current era.
// With req.CanBlock unset a contended lock yields ErrWouldBlock.
func (s *Shim) Map(ob policy.OBlock, req policy.Request) (policy.Result, error) {
	if req.CanBlock {
		s.mu.Lock()
	} else if !s.mu.TryLock() {
		return policy.Result{}, policy.ErrWouldBlock
	}
	defer s.mu.Unlock()

	r, err := s.Child().Map(ob, req)
	if err != nil {
		return r, err
	}
	if req.Write && r.Op == policy.OpHit && int(r.CBlock) < len(s.cbToEra) {
		s.cbToEra[r.CBlock] = s.counter
	}
	return r, nil
}

// LoadMapping restores the era stamped on cb and forwards the rest of the
// hint to the child. A recovered era at or above the counter moves the
// counter up to it, so eras already on disk are never reissued as older.
func (s *Shim) LoadMapping(ob policy.OBlock, cb policy.CBlock, hint []byte, hintValid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hintValid && len(hint) < HintSize {
		return errors.Wrapf(policy.ErrInvalidArgument, "era hint for cblock %d: %d bytes", cb, len(hint))
	}
	if err := s.ForwardLoad(ob, cb, hint, hintValid); err != nil {
		return err
	}
	if !hintValid || int(cb) >= len(s.cbToEra) {
		return nil
	}
	recovered := binary.LittleEndian.Uint32(hint)
	s.cbToEra[cb] = recovered
	if recovered >= s.counter {
		s.counter = recovered
	}
	return nil
}

// WalkHints holds the lock while the hint walk reads per-block eras.
func (s *Shim) WalkHints(buf []byte, up policy.WalkFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Base.WalkHints(buf, up)
}

// hint encodes cb's era. Called with s.mu held.
func (s *Shim) hint(cb policy.CBlock, _ policy.OBlock) []byte {
	var e uint32
	if int(cb) < len(s.cbToEra) {
		e = s.cbToEra[cb]
	}
	return binary.LittleEndian.AppendUint32(make([]byte, 0, HintSize), e)
}

// ForceMapping stamps the block currently holding oldOB before the remap.
func (s *Shim) ForceMapping(oldOB, newOB policy.OBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.Child().Lookup(oldOB); ok && int(cb) < len(s.cbToEra) {
		s.cbToEra[cb] = s.counter
	}
	s.Child().ForceMapping(oldOB, newOB)
}

// InvalidateMapping hands out the next block of the open unmap session and
// removes its mapping from the child. ErrNoData when no session is open.
func (s *Shim) InvalidateMapping() (policy.OBlock, policy.CBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return 0, 0, policy.ErrNoData
	}
	cb, ob, ok := s.session.next()
	if !ok {
		s.session = nil
		return 0, 0, policy.ErrNoData
	}
	// The block may have been replaced since the session was opened.
	if cur, resident := s.Child().Lookup(ob); resident && cur == cb {
		s.Child().RemoveMapping(ob)
	}
	if s.session.drained() {
		logger.Debug("era unmap session drained", "session", s.session.id.String())
		s.session = nil
	}
	return ob, cb, nil
}

// SetConfigValue handles the era messages and forwards every other key.
func (s *Shim) SetConfigValue(key, value string) error {
	if key == KeyIncrement {
		return s.increment(value)
	}
	if match, ok := unmapMatchers[key]; ok {
		return s.unmap(key, value, match)
	}
	return s.Child().SetConfigValue(key, value)
}

// EmitConfigValues writes "era_counter <n> " followed by the child's values.
func (s *Shim) EmitConfigValues(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "era_counter %d ", s.Era()); err != nil {
		return err
	}
	return s.Child().EmitConfigValues(w)
}

// Destroy drops the shim's own state; the child is left to the stack owner.
func (s *Shim) Destroy() {
	s.mu.Lock()
	s.cbToEra = nil
	s.session = nil
	s.mu.Unlock()
	s.Base.Destroy()
}

// increment bumps the counter when value names the live era.
func (s *Shim) increment(value string) error {
	expected, err := parseEra(KeyIncrement, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counter >= MaxEra {
		return errors.Wrapf(policy.ErrOverflow, "era counter at %d", s.counter)
	}
	if expected != s.counter {
		return errors.Wrapf(policy.ErrCancelled, "expected era %d, live era %d", expected, s.counter)
	}
	s.counter++
	logger.Info("era counter incremented", "era", s.counter)
	return nil
}

// unmap opens a session selecting every resident block whose era matches.
func (s *Shim) unmap(key, value string, match func(stamp, era uint32) bool) error {
	threshold, err := parseEra(key, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return errors.Wrapf(policy.ErrBusy, "%s: session %s still has %d blocks",
			key, s.session.id, s.session.pending())
	}

	sess := newSession(len(s.cbToEra))
	err = s.Child().WalkMappings(func(cb policy.CBlock, ob policy.OBlock, _ []byte) error {
		if int(cb) < len(s.cbToEra) && match(s.cbToEra[cb], threshold) {
			sess.mark(cb, ob)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, key)
	}
	if sess.drained() {
		logger.Debug("era unmap selected no blocks", "key", key, "era", threshold)
		return nil
	}
	s.session = sess
	logger.Info("era unmap session opened",
		"session", sess.id.String(), "key", key, "era", threshold, "blocks", sess.pending())
	return nil
}

func parseEra(key, value string) (uint32, error) {
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(policy.ErrInvalidArgument, "%s %q", key, value)
	}
	return uint32(n), nil
}
