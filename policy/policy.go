// Package policy defines the contract every block-cache decision policy
// implements, whether it is a terminal policy that owns residency decisions
// or a shim layered on top of one.
//
// Policies are composed into stacks (see package stack). Each layer may own
// a fixed-size slice of a per-cache-block hint blob that is persisted next
// to the mapping and handed back on restart.
package policy

import "io"

// OBlock addresses one fixed-size block on the origin (backing) device.
type OBlock uint64

// CBlock indexes one slot of the cache, in [0, cacheSize).
type CBlock uint32

// Op is the outcome of a Map call.
type Op int

const (
	// OpMiss: the block is not resident and will not be promoted now.
	OpMiss Op = iota
	// OpHit: the block is resident at Result.CBlock.
	OpHit
	// OpNeedsMigration: the block should be copied into Result.CBlock.
	// If Result.Replaces is set, Result.OldOBlock currently occupies that slot.
	OpNeedsMigration
)

func (o Op) String() string {
	switch o {
	case OpMiss:
		return "miss"
	case OpHit:
		return "hit"
	case OpNeedsMigration:
		return "needs_migration"
	default:
		return "unknown"
	}
}

// Request describes a single origin-block access passed to Map.
type Request struct {
	// CanBlock is false when the caller cannot wait on locks; a policy that
	// would have to wait returns ErrWouldBlock instead.
	CanBlock bool
	// CanMigrate allows the policy to answer OpNeedsMigration.
	CanMigrate bool
	// Discarded marks an origin block whose content is known to be discarded,
	// so promoting it costs no copy.
	Discarded bool
	// Write is set for write accesses.
	Write bool
}

// Result is returned by Map.
type Result struct {
	Op        Op
	CBlock    CBlock
	Replaces  bool
	OldOBlock OBlock
}

// WalkFunc is called once per resident mapping during WalkMappings.
// hint is only valid for the duration of the call.
type WalkFunc func(cb CBlock, ob OBlock, hint []byte) error

// HintFunc produces a layer's own hint for one resident mapping.
type HintFunc func(cb CBlock, ob OBlock) []byte

// Policy is the cache-policy contract.
//
// Semantics:
//   - Map resolves one access. It must not block when req.CanBlock is false.
//   - Lookup is a pure, non-blocking query.
//   - SetDirty/ClearDirty are no-ops for non-resident blocks.
//   - LoadMapping restores one mapping at startup; hint is ignored when
//     hintValid is false.
//   - WalkMappings visits every resident mapping once with a fresh hint.
//   - InvalidateMapping and WritebackWork return ErrNoData when nothing is
//     pending.
//   - Destroy releases the policy's own state. Shims never destroy their
//     child; the stack owner does.
type Policy interface {
	Map(ob OBlock, req Request) (Result, error)
	Lookup(ob OBlock) (CBlock, bool)
	SetDirty(ob OBlock)
	ClearDirty(ob OBlock)
	LoadMapping(ob OBlock, cb CBlock, hint []byte, hintValid bool) error
	WalkMappings(fn WalkFunc) error
	RemoveMapping(ob OBlock)
	ForceMapping(oldOB, newOB OBlock)
	InvalidateMapping() (OBlock, CBlock, error)
	WritebackWork() (OBlock, CBlock, error)
	Residency() CBlock
	Tick()
	SetConfigValue(key, value string) error
	EmitConfigValues(w io.Writer) error
	Destroy()
}

// Layer is a policy that wraps a child policy (a shim).
type Layer interface {
	Policy

	// Child returns the wrapped policy (nil before SetChild).
	Child() Policy
	// SetChild installs the wrapped policy. Ownership stays with the stack.
	SetChild(Policy)
	// HintSize is the number of hint bytes this layer owns.
	HintSize() int
	// WalkHints walks every resident mapping, writing the hints of this
	// layer's descendants into buf[HintSize():] and handing this layer's
	// own hint to up. buf covers this layer and every layer below it.
	WalkHints(buf []byte, up WalkFunc) error
}

// Version is a 3-component policy version.
type Version [3]uint32

// Add returns the element-wise sum of v and o.
func (v Version) Add(o Version) Version {
	return Version{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Constructor builds one policy instance for a cache of cacheSize blocks in
// front of an origin of originSize blocks of blockSize sectors each.
type Constructor func(cacheSize CBlock, originSize OBlock, blockSize uint32) (Policy, error)

// Type is a registry entry describing one policy kind.
type Type struct {
	Name     string
	Version  Version
	HintSize int
	// Shim reports that instances implement Layer and may sit above another policy.
	Shim bool
	New  Constructor
}
