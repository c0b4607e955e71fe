// Package metastore persists a policy stack's resident mappings and hint
// blobs so a restarted cache can restore them through LoadMapping.
//
// Record layout (Badger):
//
//	Key      Value
//	=====================================================================
//	h        Header (JSON)
//	m/<cb>   oblock (8 bytes BE) | rank (4 bytes BE, 0 = MRU) | hint blob
//
// cb is the cache block as 4 big-endian bytes. The header is written last
// and removed first, so a store without a header holds no usable mappings.
package metastore

import (
	"github.com/pkg/errors"

	"github.com/IvanBrykalov/policystack/policy"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("metastore: no saved metadata")

// Header identifies the stack that produced the saved hints.
type Header struct {
	Name        string         `json:"name"`
	Version     policy.Version `json:"version"`
	HintSize    int            `json:"hint_size"`
	CacheBlocks policy.CBlock  `json:"cache_blocks"`
}

// Mapping is one saved resident block.
type Mapping struct {
	CBlock policy.CBlock
	OBlock policy.OBlock
	// Rank is the position in the walk that produced it (0 = most recent).
	Rank uint32
	Hint []byte
}

// Store is a hint-blob store.
type Store interface {
	// Replace discards everything stored and writes h with ms.
	Replace(h Header, ms []Mapping) error
	// Load returns the saved header and mappings, or ErrNotFound.
	Load() (Header, []Mapping, error)
	Close() error
}
