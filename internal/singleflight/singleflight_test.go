package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// One hundred goroutines call Do on the same key concurrently.
// fn should run at most a handful of times and every caller gets its value.
func TestDo_Coalesces(t *testing.T) {
	var g Group[string, int]
	var calls int64
	release := make(chan struct{})

	const goroutines = 100
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)
	var sharedN int64
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, shared, err := g.Do(context.Background(), "save", func() (int, error) {
				atomic.AddInt64(&calls, 1)
				<-release
				return 42, nil
			})
			if err != nil || v != 42 {
				t.Errorf("Do = %d, %v", v, err)
			}
			if shared {
				atomic.AddInt64(&sharedN, 1)
			}
		}()
	}
	close(start)

	// let followers pile up behind the leader
	deadline := time.Now().Add(time.Second)
	for !g.InFlight("save") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got >= goroutines {
		t.Fatalf("fn ran %d times for %d callers", got, goroutines)
	}
	if atomic.LoadInt64(&sharedN) == 0 {
		t.Fatal("no caller saw a shared result")
	}
	if g.InFlight("save") {
		t.Fatal("key still in flight after all calls returned")
	}
}

func TestDo_ErrorAndFollowerCancel(t *testing.T) {
	var g Group[int, string]
	boom := errors.New("boom")
	release := make(chan struct{})
	leaderDone := make(chan error, 1)

	go func() {
		_, _, err := g.Do(context.Background(), 1, func() (string, error) {
			<-release
			return "", boom
		})
		leaderDone <- err
	}()
	for !g.InFlight(1) {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := g.Do(ctx, 1, func() (string, error) { return "unused", nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("follower err = %v, want context.Canceled", err)
	}

	close(release)
	if err := <-leaderDone; !errors.Is(err, boom) {
		t.Fatalf("leader err = %v", err)
	}

	// a fresh call runs fn again
	v, shared, err := g.Do(context.Background(), 1, func() (string, error) { return "ok", nil })
	if err != nil || v != "ok" || shared {
		t.Fatalf("Do = %q shared=%v err=%v", v, shared, err)
	}
}
