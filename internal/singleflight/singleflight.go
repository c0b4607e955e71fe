// Package singleflight coalesces concurrent calls that would do the same work.
package singleflight

import (
	"context"
	"sync"
)

// Group coalesces concurrent calls for the same key K: the first caller
// runs fn, later callers wait for its result.
//
// Publishing (val, err) happens-before close(c.done), so followers observe
// the final values after <-done. Cancelling a follower's ctx unblocks only
// that follower; the leader's fn keeps running.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed when val/err are published
	dups int
	val  V
	err  error
}

// Do runs fn once for key. shared reports whether the result was handed to
// more than one caller. A follower whose ctx is cancelled returns ctx.Err().
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, shared bool, err error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, true, c.err
		case <-ctx.Done():
			var zero V
			return zero, false, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()
	close(c.done)

	g.mu.Lock()
	delete(g.m, key)
	shared = c.dups > 0
	g.mu.Unlock()

	return c.val, shared, c.err
}

// InFlight reports whether a call for key is running.
func (g *Group[K, V]) InFlight(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}
