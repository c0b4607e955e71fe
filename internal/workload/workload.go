// Package workload drives a policy stack with a synthetic Zipf-distributed
// block access stream, the way a cache target would: workers map blocks and
// mark writes dirty, a cleaner drains write-back work, a ticker ages the
// policy and, when the stack carries an era layer, a driver bumps the era
// and invalidates blocks that fell too far behind.
package workload

import (
	"context"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/policystack/internal/logger"
	"github.com/IvanBrykalov/policystack/internal/util"
	"github.com/IvanBrykalov/policystack/policy"
	"github.com/IvanBrykalov/policystack/policy/era"
	"github.com/IvanBrykalov/policystack/policy/stack"
)

// Options shape the workload.
type Options struct {
	Workers      int
	Duration     time.Duration
	OriginBlocks policy.OBlock
	// WriteRatio is the fraction of accesses that are writes, in [0,1].
	WriteRatio float64
	ZipfS      float64
	ZipfV      float64
	// EraInterval bumps the era counter periodically (0 disables).
	EraInterval time.Duration
	// UnmapLag invalidates blocks stamped more than UnmapLag eras ago after
	// each bump (0 disables).
	UnmapLag     uint32
	TickInterval time.Duration
	Seed         int64
}

// Report summarizes one run. Ops == Hits + Misses + Migrations.
type Report struct {
	Ops         uint64
	Reads       uint64
	Writes      uint64
	Hits        uint64
	Misses      uint64
	Migrations  uint64
	Replaced    uint64
	WouldBlock  uint64
	Writebacks  uint64
	Eras        uint64
	Invalidated uint64
	Elapsed     time.Duration
}

// HitRate returns hits as a percentage of all ops.
func (r Report) HitRate() float64 {
	if r.Ops == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.Ops) * 100
}

type counters struct {
	ops, reads, writes                util.PaddedAtomicUint64
	hits, misses, migrations, replace util.PaddedAtomicUint64
	wouldBlock, writebacks            util.PaddedAtomicUint64
	eras, invalidated                 atomic.Uint64
}

func (o Options) validate() error {
	switch {
	case o.Workers < 1:
		return errors.Wrapf(policy.ErrInvalidArgument, "workers %d", o.Workers)
	case o.OriginBlocks == 0:
		return errors.Wrap(policy.ErrInvalidArgument, "origin has no blocks")
	case o.ZipfS <= 1 || o.ZipfV < 1:
		return errors.Wrapf(policy.ErrInvalidArgument, "zipf s=%v v=%v", o.ZipfS, o.ZipfV)
	case o.WriteRatio < 0 || o.WriteRatio > 1:
		return errors.Wrapf(policy.ErrInvalidArgument, "write ratio %v", o.WriteRatio)
	}
	return nil
}

// Run drives p until opt.Duration elapses or ctx is cancelled. Cancellation
// is not an error; any policy error other than ErrWouldBlock, ErrBusy or
// ErrNoData stops the run and is returned with the partial report.
func Run(ctx context.Context, p policy.Policy, opt Options) (Report, error) {
	if err := opt.validate(); err != nil {
		return Report{}, err
	}
	if opt.Seed == 0 {
		opt.Seed = time.Now().UnixNano()
	}
	if opt.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opt.Duration)
		defer cancel()
	}

	var c counters
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < opt.Workers; w++ {
		id := w
		g.Go(func() error { return worker(gctx, p, opt, id, &c) })
	}
	g.Go(func() error { return cleaner(gctx, p, &c) })
	if opt.TickInterval > 0 {
		g.Go(func() error {
			return every(gctx, opt.TickInterval, func() error { p.Tick(); return nil })
		})
	}
	if e := findEra(p); e != nil && opt.EraInterval > 0 {
		g.Go(func() error {
			return every(gctx, opt.EraInterval, func() error { return bumpEra(p, e, opt.UnmapLag, &c) })
		})
	}

	err := g.Wait()
	rep := Report{
		Ops:         c.ops.Load(),
		Reads:       c.reads.Load(),
		Writes:      c.writes.Load(),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Migrations:  c.migrations.Load(),
		Replaced:    c.replace.Load(),
		WouldBlock:  c.wouldBlock.Load(),
		Writebacks:  c.writebacks.Load(),
		Eras:        c.eras.Load(),
		Invalidated: c.invalidated.Load(),
		Elapsed:     time.Since(start),
	}
	logger.Info("workload finished",
		"ops", rep.Ops, "hit_rate", rep.HitRate(), "eras", rep.Eras, "elapsed", rep.Elapsed)
	return rep, err
}

func worker(ctx context.Context, p policy.Policy, opt Options, id int, c *counters) error {
	// rand.Rand is not goroutine-safe: one generator per worker.
	r := rand.New(rand.NewSource(opt.Seed + int64(id)*9973))
	z := rand.NewZipf(r, opt.ZipfS, opt.ZipfV, uint64(opt.OriginBlocks-1))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		ob := policy.OBlock(z.Uint64())
		write := r.Float64() < opt.WriteRatio
		req := policy.Request{CanMigrate: true, Write: write}

		// try without blocking first, like an I/O submission path would
		res, err := p.Map(ob, req)
		if errors.Is(err, policy.ErrWouldBlock) {
			c.wouldBlock.Add(1)
			req.CanBlock = true
			res, err = p.Map(ob, req)
		}
		if err != nil {
			return errors.Wrapf(err, "worker %d: map oblock %d", id, ob)
		}

		c.ops.Add(1)
		if write {
			c.writes.Add(1)
		} else {
			c.reads.Add(1)
		}
		switch res.Op {
		case policy.OpHit:
			c.hits.Add(1)
		case policy.OpNeedsMigration:
			c.migrations.Add(1)
			if res.Replaces {
				c.replace.Add(1)
			}
		default:
			c.misses.Add(1)
		}
		if write && res.Op != policy.OpMiss {
			p.SetDirty(ob)
		}
	}
}

// cleaner drains write-back work so dirty blocks become evictable again.
func cleaner(ctx context.Context, p policy.Policy, c *counters) error {
	t := time.NewTicker(time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		for {
			ob, _, err := p.WritebackWork()
			if errors.Is(err, policy.ErrNoData) {
				break
			}
			if err != nil {
				return errors.Wrap(err, "writeback")
			}
			p.ClearDirty(ob)
			c.writebacks.Add(1)
		}
	}
}

// bumpEra increments the era and, when lag is set, invalidates every block
// stamped before era-lag.
func bumpEra(p policy.Policy, e *era.Shim, lag uint32, c *counters) error {
	cur := e.Era()
	err := p.SetConfigValue(era.KeyIncrement, strconv.FormatUint(uint64(cur), 10))
	switch {
	case errors.Is(err, policy.ErrCancelled):
		// someone else moved it; try again next interval
		return nil
	case errors.Is(err, policy.ErrOverflow):
		logger.Warn("era counter exhausted", "era", cur)
		return nil
	case err != nil:
		return errors.Wrap(err, "increment era")
	}
	c.eras.Add(1)

	next := cur + 1
	if lag == 0 || next <= lag {
		return nil
	}
	err = p.SetConfigValue(era.KeyUnmapEarlier, strconv.FormatUint(uint64(next-lag), 10))
	if err != nil && !errors.Is(err, policy.ErrBusy) {
		return errors.Wrap(err, "unmap earlier eras")
	}
	for {
		_, _, err := p.InvalidateMapping()
		if errors.Is(err, policy.ErrNoData) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "invalidate")
		}
		c.invalidated.Add(1)
	}
}

func every(ctx context.Context, d time.Duration, fn func() error) error {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := fn(); err != nil {
				return err
			}
		}
	}
}

func findEra(p policy.Policy) *era.Shim {
	for _, l := range stack.Layers(p) {
		if e, ok := l.(*era.Shim); ok {
			return e
		}
	}
	return nil
}
