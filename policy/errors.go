package policy

import "github.com/pkg/errors"

// Error taxonomy shared by every policy and by the stack builder.
// Callers match with errors.Is; returned errors may carry extra context.
var (
	// ErrWouldBlock: the operation needs a lock and the caller said it
	// cannot block. Not fatal; retry with blocking allowed.
	ErrWouldBlock = errors.New("policy: would block")

	// ErrNoData: no invalidation or writeback work is pending.
	ErrNoData = errors.New("policy: no data")

	// ErrNotAShim: a non-terminal stack segment cannot wrap a child.
	ErrNotAShim = errors.New("policy: not a shim")

	// ErrBusy: a bulk invalidation is already in progress.
	ErrBusy = errors.New("policy: busy")

	// ErrCancelled: optimistic-concurrency mismatch; re-read and retry.
	ErrCancelled = errors.New("policy: cancelled")

	// ErrOverflow: a counter reached its reserved maximum.
	ErrOverflow = errors.New("policy: overflow")

	// ErrInvalidArgument: malformed text, unknown names, out-of-range indices.
	ErrInvalidArgument = errors.New("policy: invalid argument")

	// ErrOutOfMemory: allocation failure while creating sessions or buffers.
	ErrOutOfMemory = errors.New("policy: out of memory")
)
