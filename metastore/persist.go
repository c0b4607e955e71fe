package metastore

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/IvanBrykalov/policystack/internal/logger"
	"github.com/IvanBrykalov/policystack/policy"
)

// Save walks p and replaces the contents of s with its mappings.
// h describes p; every walked hint must be h.HintSize bytes.
func Save(s Store, h Header, p policy.Policy) (int, error) {
	var ms []Mapping
	err := p.WalkMappings(func(cb policy.CBlock, ob policy.OBlock, hint []byte) error {
		if len(hint) != h.HintSize {
			return errors.Wrapf(policy.ErrInvalidArgument, "cblock %d: hint is %d bytes, %q declares %d",
				cb, len(hint), h.Name, h.HintSize)
		}
		ms = append(ms, Mapping{
			CBlock: cb,
			OBlock: ob,
			Rank:   uint32(len(ms)),
			Hint:   append([]byte(nil), hint...),
		})
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "metastore: walk mappings")
	}
	if err := s.Replace(h, ms); err != nil {
		return 0, err
	}
	logger.Info("metadata saved", "stack", h.Name, "mappings", len(ms))
	return len(ms), nil
}

// Restore loads the mappings saved for want into p, least recent first.
// A store written by a different stack is rejected with ErrInvalidArgument.
// On a LoadMapping failure p keeps the mappings restored so far and their
// count is returned with the error.
func Restore(s Store, want Header, p policy.Policy) (int, error) {
	got, ms, err := s.Load()
	if err != nil {
		return 0, err
	}
	if got != want {
		return 0, errors.Wrapf(policy.ErrInvalidArgument,
			"metadata written by %q v%v (hint %d, %d blocks), cache runs %q v%v (hint %d, %d blocks)",
			got.Name, got.Version, got.HintSize, got.CacheBlocks,
			want.Name, want.Version, want.HintSize, want.CacheBlocks)
	}

	sort.Slice(ms, func(i, j int) bool { return ms[i].Rank > ms[j].Rank })
	for i, m := range ms {
		if err := p.LoadMapping(m.OBlock, m.CBlock, m.Hint, len(m.Hint) == want.HintSize); err != nil {
			return i, errors.Wrapf(err, "metastore: restore cblock %d", m.CBlock)
		}
	}
	logger.Info("metadata restored", "stack", want.Name, "mappings", len(ms))
	return len(ms), nil
}
