package metastore

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/IvanBrykalov/policystack/policy"
)

const (
	prefixMapping = "m/"
	keyHeader     = "h"

	// oblock + rank
	valueFixedSize = 8 + 4
)

// keyMapping generates the key for a mapping: "m/<cb BE>"
func keyMapping(cb policy.CBlock) []byte {
	return binary.BigEndian.AppendUint32([]byte(prefixMapping), uint32(cb))
}

func decodeKey(key []byte) (policy.CBlock, error) {
	if len(key) != len(prefixMapping)+4 {
		return 0, errors.Errorf("metastore: malformed mapping key %x", key)
	}
	return policy.CBlock(binary.BigEndian.Uint32(key[len(prefixMapping):])), nil
}

func encodeValue(m Mapping) []byte {
	b := make([]byte, 0, valueFixedSize+len(m.Hint))
	b = binary.BigEndian.AppendUint64(b, uint64(m.OBlock))
	b = binary.BigEndian.AppendUint32(b, m.Rank)
	return append(b, m.Hint...)
}

func decodeValue(cb policy.CBlock, val []byte) (Mapping, error) {
	if len(val) < valueFixedSize {
		return Mapping{}, errors.Errorf("metastore: short value for cblock %d (%d bytes)", cb, len(val))
	}
	return Mapping{
		CBlock: cb,
		OBlock: policy.OBlock(binary.BigEndian.Uint64(val)),
		Rank:   binary.BigEndian.Uint32(val[8:]),
		Hint:   append([]byte(nil), val[valueFixedSize:]...),
	}, nil
}
