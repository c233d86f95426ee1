// Package guard provides the read/write lock that serializes writes to the
// sync database against foreground reads.
//
// Waiters are served in arrival order: once a writer is queued, readers that
// arrive later wait behind it, so a steady stream of readers cannot starve a
// writer. Every acquisition is bounded by a timeout.
package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultTimeout is used when a zero timeout is passed.
const DefaultTimeout = 5 * time.Second

// maxReaders bounds concurrent readers; a writer takes all of it.
const maxReaders = 1 << 16

type Guard struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// New returns a Guard whose zero-timeout acquisitions wait at most timeout.
// A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{sem: semaphore.NewWeighted(maxReaders), timeout: timeout}
}

// Lock acquires exclusive access. The returned release func is safe to call
// more than once.
func (g *Guard) Lock(ctx context.Context, timeout time.Duration) (func(), error) {
	return g.acquire(ctx, ModeWrite, maxReaders, timeout)
}

// RLock acquires shared access.
func (g *Guard) RLock(ctx context.Context, timeout time.Duration) (func(), error) {
	return g.acquire(ctx, ModeRead, 1, timeout)
}

// DefaultTimeout reports the timeout applied to zero-timeout acquisitions.
func (g *Guard) DefaultTimeout() time.Duration {
	return g.timeout
}

func (g *Guard) acquire(ctx context.Context, mode Mode, weight int64, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = g.timeout
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := g.sem.Acquire(wctx, weight); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &LockTimeoutError{Mode: mode, Timeout: timeout}
		}
		return nil, err
	}

	var once sync.Once
	return func() { once.Do(func() { g.sem.Release(weight) }) }, nil
}
