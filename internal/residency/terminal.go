package residency

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/IvanBrykalov/policystack/policy"
)

// KeyMigrationThreshold is the config key for the number of misses an origin
// block needs before it is promoted.
const KeyMigrationThreshold = "migration_threshold"

// Terminal exposes a Table as a terminal policy.Policy.
type Terminal struct {
	t *Table
}

// NewTerminal returns a terminal policy with cacheSize slots ordered by f.
func NewTerminal(cacheSize policy.CBlock, f Factory) *Terminal {
	return &Terminal{t: NewTable(cacheSize, f)}
}

// Table exposes the underlying table (tests, inspection).
func (p *Terminal) Table() *Table { return p.t }

func (p *Terminal) Map(ob policy.OBlock, req policy.Request) (policy.Result, error) {
	return p.t.Map(ob, req)
}

func (p *Terminal) Lookup(ob policy.OBlock) (policy.CBlock, bool) { return p.t.Lookup(ob) }

func (p *Terminal) SetDirty(ob policy.OBlock) { p.t.SetDirty(ob) }

func (p *Terminal) ClearDirty(ob policy.OBlock) { p.t.ClearDirty(ob) }

func (p *Terminal) LoadMapping(ob policy.OBlock, cb policy.CBlock, hint []byte, hintValid bool) error {
	return p.t.Load(ob, cb, hint, hintValid)
}

func (p *Terminal) WalkMappings(fn policy.WalkFunc) error { return p.t.Walk(fn) }

func (p *Terminal) RemoveMapping(ob policy.OBlock) { p.t.Remove(ob) }

func (p *Terminal) ForceMapping(oldOB, newOB policy.OBlock) { p.t.Force(oldOB, newOB) }

// InvalidateMapping always reports ErrNoData: terminals keep no invalidation queue.
func (p *Terminal) InvalidateMapping() (policy.OBlock, policy.CBlock, error) {
	return 0, 0, policy.ErrNoData
}

func (p *Terminal) WritebackWork() (policy.OBlock, policy.CBlock, error) { return p.t.Writeback() }

func (p *Terminal) Residency() policy.CBlock { return p.t.Len() }

func (p *Terminal) Tick() { p.t.Tick() }

// SetConfigValue recognizes migration_threshold (decimal, >= 1).
func (p *Terminal) SetConfigValue(key, value string) error {
	switch key {
	case KeyMigrationThreshold:
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil || n < 1 {
			return errors.Wrapf(policy.ErrInvalidArgument, "%s %q", key, value)
		}
		p.t.SetThreshold(uint32(n))
		return nil
	default:
		return errors.Wrapf(policy.ErrInvalidArgument, "unknown config key %q", key)
	}
}

// EmitConfigValues writes "migration_threshold <n> ".
func (p *Terminal) EmitConfigValues(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s %d ", KeyMigrationThreshold, p.t.Threshold())
	return err
}

// Destroy is a no-op; the table is garbage collected with the policy.
func (p *Terminal) Destroy() {}

// Compile-time check: Terminal implements policy.Policy.
var _ policy.Policy = (*Terminal)(nil)
