package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestLocalLockerExcludes(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			lease, err := l.Obtain(ctx, "voucher:1", time.Second)
			if err != nil {
				return err
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			return lease.Release(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("obtain: %v", err)
	}
	if maxInside.Load() != 1 {
		t.Fatalf("%d holders at once, want 1", maxInside.Load())
	}
	if len(l.slots) != 0 {
		t.Fatalf("%d slots left behind", len(l.slots))
	}
}

func TestLocalLockerTimesOut(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	lease, err := l.Obtain(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("obtain: %v", err)
	}
	if _, err := l.Obtain(ctx, "k", 10*time.Millisecond); !errors.Is(err, ErrNotObtained) {
		t.Fatalf("err = %v, want ErrNotObtained", err)
	}
	if other, err := l.Obtain(ctx, "other", 10*time.Millisecond); err != nil {
		t.Fatalf("independent key: %v", err)
	} else {
		_ = other.Release(ctx)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := l.Obtain(cancelled, "k", time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	// a second release must not hand out a second token
	_ = lease.Release(ctx)

	var wg sync.WaitGroup
	var got atomic.Int32
	first, err := l.Obtain(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("obtain after release: %v", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := l.Obtain(ctx, "k", 20*time.Millisecond); err == nil {
			got.Add(1)
		}
	}()
	wg.Wait()
	if got.Load() != 0 {
		t.Fatal("double release produced a second holder")
	}
	_ = first.Release(ctx)
}
