package metastore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/policystack/internal/logger"
	"github.com/IvanBrykalov/policystack/internal/singleflight"
	"github.com/IvanBrykalov/policystack/policy"
)

// Checkpointer saves a running policy into a Store. Concurrent checkpoints
// share a single walk and write.
type Checkpointer struct {
	store  Store
	header Header
	p      policy.Policy

	sf    singleflight.Group[string, int]
	saves atomic.Uint64
}

// NewCheckpointer returns a Checkpointer saving p, described by h, into s.
func NewCheckpointer(s Store, h Header, p policy.Policy) *Checkpointer {
	return &Checkpointer{store: s, header: h, p: p}
}

// Checkpoint saves the current mappings and returns how many were written.
// A caller arriving while a save runs waits for that save instead of
// starting another.
func (c *Checkpointer) Checkpoint(ctx context.Context) (int, error) {
	n, _, err := c.sf.Do(ctx, c.header.Name, func() (int, error) {
		n, err := Save(c.store, c.header, c.p)
		if err == nil {
			c.saves.Add(1)
		}
		return n, err
	})
	return n, err
}

// Saves returns the number of completed saves.
func (c *Checkpointer) Saves() uint64 { return c.saves.Load() }

// Run checkpoints every interval until ctx is done. A failed checkpoint is
// logged and retried on the next tick.
func (c *Checkpointer) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := c.Checkpoint(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("checkpoint failed", "stack", c.header.Name, "error", err)
			}
		}
	}
}
