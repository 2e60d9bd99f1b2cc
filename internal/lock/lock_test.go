package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dstadnik/truefalse/internal/store"
)

func testOptions() Options {
	return Options{
		Expiry:         200 * time.Millisecond,
		RetryDelay:     5 * time.Millisecond,
		AcquireTimeout: time.Second,
	}
}

func TestWithLock_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewRealClock()
	locker := New(store.NewMemory(clock), clock, testOptions())

	var inside, max int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "room", func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > max {
					max = inside
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if max != 1 {
		t.Errorf("max concurrent holders = %d, want 1", max)
	}
}

func TestWithLock_TimeoutWhileHeld(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewRealClock()
	st := store.NewMemory(clock)

	opts := testOptions()
	opts.AcquireTimeout = 30 * time.Millisecond
	locker := New(st, clock, opts)

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		locker.WithLock(ctx, "room", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := locker.WithLock(ctx, "room", func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("err = %v, want ErrLockTimeout", err)
	}
	close(release)
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewRealClock()
	locker := New(store.NewMemory(clock), clock, testOptions())

	boom := errors.New("boom")
	if err := locker.WithLock(ctx, "room", func(ctx context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want fn's error", err)
	}

	// The lease must be free again straight away.
	var ran bool
	err := locker.WithLock(ctx, "room", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Errorf("second acquisition = %v (ran=%v), want immediate success", err, ran)
	}
}

func TestWithLock_CrashedHolderExpires(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewRealClock()
	st := store.NewMemory(clock)

	opts := testOptions()
	opts.Expiry = 20 * time.Millisecond
	locker := New(st, clock, opts)

	// Simulate a holder that died without releasing.
	if ok, _ := st.SetNX(ctx, "lock:room", "dead-holder", opts.Expiry); !ok {
		t.Fatal("seeding the stale lease failed")
	}

	start := time.Now()
	err := locker.WithLock(ctx, "room", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("WithLock after lease expiry: %v", err)
	}
	if elapsed := time.Since(start); elapsed > opts.AcquireTimeout {
		t.Errorf("acquisition took %v, should finish once the stale lease expires", elapsed)
	}
}

func TestWithLock_StaleReleaseKeepsLiveLease(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewRealClock()
	st := store.NewMemory(clock)

	opts := testOptions()
	opts.Expiry = 50 * time.Millisecond
	opts.AcquireTimeout = 2 * time.Second
	locker := New(st, clock, opts)

	firstHolds := make(chan struct{})
	secondHolds := make(chan struct{})
	secondRelease := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- locker.WithLock(ctx, "room", func(ctx context.Context) error {
			// Outlive the lease so the second caller acquires legitimately.
			close(firstHolds)
			<-secondHolds
			return nil
		})
	}()
	// Pin the acquisition order: the second caller must not race the first
	// for the initial lease.
	<-firstHolds
	secondDone := make(chan error, 1)
	go func() {
		secondDone <- locker.WithLock(ctx, "room", func(ctx context.Context) error {
			close(secondHolds)
			<-secondRelease
			return nil
		})
	}()

	if err := <-firstDone; err != nil {
		t.Fatalf("first holder: %v", err)
	}

	// The first holder's deferred release has run. It must not have freed
	// the second holder's lease.
	ok, err := st.SetNX(ctx, "lock:room", "intruder", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("a stale holder's release freed a lease it no longer owned")
	}
	close(secondRelease)
	if err := <-secondDone; err != nil {
		t.Fatalf("second holder: %v", err)
	}
}

func TestWithLock_ContextCancelled(t *testing.T) {
	clock := clockwork.NewRealClock()
	st := store.NewMemory(clock)
	locker := New(st, clock, testOptions())

	// Hold the lease so the second caller has to retry.
	st.SetNX(context.Background(), "lock:room", "holder", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := locker.WithLock(ctx, "room", func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
