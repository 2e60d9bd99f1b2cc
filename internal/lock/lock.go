// Package lock implements a lease-based distributed mutex over the shared
// state store. Only one caller across the whole fleet holds a given resource
// at a time; the lease TTL bounds how long a crashed holder can block others.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrLockTimeout reports that the lease could not be acquired inside the
// acquisition window.
var ErrLockTimeout = errors.New("lock: acquisition timed out")

// LeaseStore is the slice of the state store the locker needs.
type LeaseStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DelIfEquals(ctx context.Context, key, value string) (bool, error)
}

// Options tune the acquisition loop. The defaults match the production
// values; tests shrink them.
type Options struct {
	// Expiry is the lease TTL once acquired.
	Expiry time.Duration
	// RetryDelay is the fixed backoff between acquisition attempts.
	RetryDelay time.Duration
	// AcquireTimeout is the total wall-clock window for acquisition.
	AcquireTimeout time.Duration
}

// DefaultOptions returns the production lock parameters.
func DefaultOptions() Options {
	return Options{
		Expiry:         time.Second,
		RetryDelay:     50 * time.Millisecond,
		AcquireTimeout: 2 * time.Second,
	}
}

// Locker acquires per-resource leases on the shared store.
type Locker struct {
	store LeaseStore
	clock clockwork.Clock
	opts  Options
}

// New returns a Locker with the given options.
func New(store LeaseStore, clock clockwork.Clock, opts Options) *Locker {
	return &Locker{store: store, clock: clock, opts: opts}
}

// WithLock runs fn while holding the lease for resource. The lease is
// released afterwards even if fn fails; if the release is missed the TTL
// expires it. Returns ErrLockTimeout when the lease cannot be acquired
// within the acquisition window, fn's error otherwise.
func (l *Locker) WithLock(ctx context.Context, resource string, fn func(ctx context.Context) error) error {
	key := "lock:" + resource
	token := uuid.NewString()
	deadline := l.clock.Now().Add(l.opts.AcquireTimeout)

	for {
		acquired, err := l.store.SetNX(ctx, key, token, l.opts.Expiry)
		if err != nil {
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if acquired {
			defer func() {
				// Release only our own token. If fn outlived the lease the
				// key may already belong to the next holder.
				released, err := l.store.DelIfEquals(context.WithoutCancel(ctx), key, token)
				if err != nil {
					// The lease TTL will clean it up.
					log.Warn().Err(err).Str("resource", resource).Msg("failed to release lock")
					return
				}
				if !released {
					log.Warn().Str("resource", resource).Msg("lease expired before release, skipping")
				}
			}()
			return fn(ctx)
		}
		if !l.clock.Now().Add(l.opts.RetryDelay).Before(deadline) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, resource)
		}
		select {
		case <-l.clock.After(l.opts.RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
