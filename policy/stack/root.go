package stack

import (
	"io"

	"github.com/pkg/errors"

	"github.com/IvanBrykalov/policystack/internal/logger"
	"github.com/IvanBrykalov/policystack/policy"
)

// Root exposes a chain of layers as one policy. It owns the chain: Destroy
// releases every layer, outermost first, terminal last.
//
// Root is where hint blobs are assembled (WalkMappings) and handed down for
// disassembly (LoadMapping).
type Root struct {
	top  policy.Layer
	desc Description
}

// Name is the segment names joined by the delimiter.
func (r *Root) Name() string { return r.desc.Name }

// Version is the element-wise sum of the segment versions.
func (r *Root) Version() policy.Version { return r.desc.Version }

// HintSize is the sum of the segment hint sizes.
func (r *Root) HintSize() int { return r.desc.HintSize }

// Description returns name, version and hint size together.
func (r *Root) Description() Description { return r.desc }

func (r *Root) Map(ob policy.OBlock, req policy.Request) (policy.Result, error) {
	return r.top.Map(ob, req)
}

func (r *Root) Lookup(ob policy.OBlock) (policy.CBlock, bool) { return r.top.Lookup(ob) }

func (r *Root) SetDirty(ob policy.OBlock) { r.top.SetDirty(ob) }

func (r *Root) ClearDirty(ob policy.OBlock) { r.top.ClearDirty(ob) }

// LoadMapping hands the whole blob to the outermost layer; every layer takes
// its slice from the front and forwards the rest.
func (r *Root) LoadMapping(ob policy.OBlock, cb policy.CBlock, hint []byte, hintValid bool) error {
	if hintValid && len(hint) < r.desc.HintSize {
		return errors.Wrapf(policy.ErrInvalidArgument, "hint for cblock %d: %d bytes, stack %q needs %d",
			cb, len(hint), r.desc.Name, r.desc.HintSize)
	}
	return r.top.LoadMapping(ob, cb, hint, hintValid)
}

// WalkMappings calls fn with the assembled hint blob of every resident
// mapping. The blob is allocated once per call and reused between mappings;
// fn must copy it to keep it.
func (r *Root) WalkMappings(fn policy.WalkFunc) error {
	buf := make([]byte, r.desc.HintSize)
	return r.top.WalkHints(buf, func(cb policy.CBlock, ob policy.OBlock, hint []byte) error {
		copy(buf, hint)
		return fn(cb, ob, buf)
	})
}

func (r *Root) RemoveMapping(ob policy.OBlock) { r.top.RemoveMapping(ob) }

func (r *Root) ForceMapping(oldOB, newOB policy.OBlock) { r.top.ForceMapping(oldOB, newOB) }

func (r *Root) InvalidateMapping() (policy.OBlock, policy.CBlock, error) {
	return r.top.InvalidateMapping()
}

func (r *Root) WritebackWork() (policy.OBlock, policy.CBlock, error) {
	return r.top.WritebackWork()
}

func (r *Root) Residency() policy.CBlock { return r.top.Residency() }

func (r *Root) Tick() { r.top.Tick() }

func (r *Root) SetConfigValue(key, value string) error { return r.top.SetConfigValue(key, value) }

func (r *Root) EmitConfigValues(w io.Writer) error { return r.top.EmitConfigValues(w) }

// Destroy releases the root and then every layer of the chain.
// Each child is read before its parent is destroyed.
func (r *Root) Destroy() {
	var p policy.Policy = r.top
	r.top = nil
	for p != nil {
		var next policy.Policy
		if l, ok := p.(policy.Layer); ok {
			next = l.Child()
		}
		p.Destroy()
		p = next
	}
	logger.Debug("policy stack destroyed", "name", r.desc.Name)
}

var _ policy.Policy = (*Root)(nil)
