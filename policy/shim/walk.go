package shim

import "github.com/IvanBrykalov/policystack/policy"

// Relay returns the propagation step used at every level of a hint walk.
//
// When the layer below reports a mapping, its hint is copied to suffix[0:]
// (suffix already starts past every byte owned by this layer and the layers
// above it), this layer's own hint is computed with own, and the call moves
// one level up through up. A nil suffix skips the copy; a nil own reports
// no hint.
func Relay(suffix []byte, own policy.HintFunc, up policy.WalkFunc) policy.WalkFunc {
	return func(cb policy.CBlock, ob policy.OBlock, hint []byte) error {
		if suffix != nil {
			copy(suffix, hint)
		}
		var mine []byte
		if own != nil {
			mine = own(cb, ob)
		}
		return up(cb, ob, mine)
	}
}

// WalkHints walks the child's mappings. buf is the region owned by this layer
// and every layer below it; the child's region starts HintSize() bytes in.
// This layer's own hint is handed to up for every mapping.
func (b *Base) WalkHints(buf []byte, up policy.WalkFunc) error {
	var next []byte
	if len(buf) >= b.hintSize {
		next = buf[b.hintSize:]
	}
	var own policy.HintFunc
	if b.hintSize > 0 {
		own = b.hint
	}
	relay := Relay(next, own, up)
	if l, ok := b.child.(policy.Layer); ok {
		return l.WalkHints(next, relay)
	}
	return b.child.WalkMappings(relay)
}
