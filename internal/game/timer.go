package game

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RoundTimer is a single-use cancellable countdown. Each round constructs a
// fresh timer; they are never reused.
type RoundTimer struct {
	clock    clockwork.Clock
	cancelCh chan struct{}
	once     sync.Once
}

// NewRoundTimer returns an unstarted timer on the given clock.
func NewRoundTimer(clock clockwork.Clock) *RoundTimer {
	return &RoundTimer{
		clock:    clock,
		cancelCh: make(chan struct{}),
	}
}

// Start blocks until d elapses, Cancel is called, or ctx ends. Cancellation
// is not an error; only a dead context is.
func (t *RoundTimer) Start(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := t.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-t.cancelCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel releases a waiting Start early. It is idempotent and a no-op when
// the timer already fired or was never started.
func (t *RoundTimer) Cancel() {
	t.once.Do(func() {
		close(t.cancelCh)
	})
}
