// Package pool provides pooled timers for the receive deadlines and backoff
// waits that run on every S-Bus exchange.
package pool

import (
	"context"
	"sync"
	"time"
)

var timers sync.Pool

// AcquireTimer returns a timer armed for d, reusing a pooled one when possible.
// Release it with ReleaseTimer once it is no longer selected on.
func AcquireTimer(d time.Duration) *time.Timer {
	v := timers.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t := v.(*time.Timer) //nolint:forcetypeassert
	if t.Reset(d) {
		// still active: drop a pending tick so the caller sees only the new deadline
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// ReleaseTimer stops t and returns it to the pool. t must not be used afterwards.
func ReleaseTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timers.Put(t)
}

// Sleep waits for d or until ctx is done, whichever comes first. It returns
// ctx.Err() when the wait was cut short. A non-positive d returns immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := AcquireTimer(d)
	defer ReleaseTimer(t)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
