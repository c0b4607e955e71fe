// Package shim provides Base, a policy layer that forwards every call to its
// child unchanged. Concrete shims embed *Base and override only the methods
// whose behavior they change.
package shim

import (
	"io"

	"github.com/IvanBrykalov/policystack/policy"
)

// Base is the default-delegating shim.
//
// A shim that owns hint bytes passes its size and hint producer to New;
// Base then takes care of both directions of the hint protocol (WalkHints
// on persistence, hint suffix forwarding in LoadMapping).
type Base struct {
	child    policy.Policy
	hintSize int
	hint     policy.HintFunc
}

// New returns a Base owning hintSize hint bytes produced by hint.
// hint may be nil only when hintSize is zero.
func New(hintSize int, hint policy.HintFunc) *Base {
	if hintSize < 0 {
		hintSize = 0
	}
	return &Base{hintSize: hintSize, hint: hint}
}

// Child returns the wrapped policy.
func (b *Base) Child() policy.Policy { return b.child }

// SetChild installs the wrapped policy.
func (b *Base) SetChild(p policy.Policy) { b.child = p }

// HintSize returns the number of hint bytes this layer owns.
func (b *Base) HintSize() int { return b.hintSize }

// ---- forwarding implementation of policy.Policy ----

func (b *Base) Map(ob policy.OBlock, req policy.Request) (policy.Result, error) {
	return b.child.Map(ob, req)
}

func (b *Base) Lookup(ob policy.OBlock) (policy.CBlock, bool) { return b.child.Lookup(ob) }

func (b *Base) SetDirty(ob policy.OBlock) { b.child.SetDirty(ob) }

func (b *Base) ClearDirty(ob policy.OBlock) { b.child.ClearDirty(ob) }

// LoadMapping forwards the hint suffix that belongs to the layers below.
// Shims that decode their own bytes override this and call ForwardLoad.
func (b *Base) LoadMapping(ob policy.OBlock, cb policy.CBlock, hint []byte, hintValid bool) error {
	return b.ForwardLoad(ob, cb, hint, hintValid)
}

// ForwardLoad hands hint[HintSize():] to the child.
func (b *Base) ForwardLoad(ob policy.OBlock, cb policy.CBlock, hint []byte, hintValid bool) error {
	return b.child.LoadMapping(ob, cb, b.Suffix(hint), hintValid)
}

// Suffix returns the part of hint owned by the layers below this one.
func (b *Base) Suffix(hint []byte) []byte {
	if len(hint) <= b.hintSize {
		return nil
	}
	return hint[b.hintSize:]
}

// WalkMappings forwards fn unchanged. Per-layer hints are only assembled
// when the walk starts at a stack root (see WalkHints).
func (b *Base) WalkMappings(fn policy.WalkFunc) error { return b.child.WalkMappings(fn) }

func (b *Base) RemoveMapping(ob policy.OBlock) { b.child.RemoveMapping(ob) }

func (b *Base) ForceMapping(oldOB, newOB policy.OBlock) { b.child.ForceMapping(oldOB, newOB) }

func (b *Base) InvalidateMapping() (policy.OBlock, policy.CBlock, error) {
	return b.child.InvalidateMapping()
}

func (b *Base) WritebackWork() (policy.OBlock, policy.CBlock, error) {
	return b.child.WritebackWork()
}

func (b *Base) Residency() policy.CBlock { return b.child.Residency() }

func (b *Base) Tick() { b.child.Tick() }

func (b *Base) SetConfigValue(key, value string) error { return b.child.SetConfigValue(key, value) }

func (b *Base) EmitConfigValues(w io.Writer) error { return b.child.EmitConfigValues(w) }

// Destroy drops the reference to the child without destroying it;
// the stack owner releases the chain.
func (b *Base) Destroy() { b.child = nil }

var _ policy.Layer = (*Base)(nil)
