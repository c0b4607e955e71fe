// Package util contains cache-line padding for hot counters.
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is 64 bytes, right for the common amd64 and arm64 parts.
const CacheLineSize = 64

// PaddedAtomicUint64 is an atomic counter alone on its cache line, so workers
// bumping neighbouring counters do not false-share.
type PaddedAtomicUint64 struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// must be exactly one cache line
var _ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicUint64{}))]byte
