package lock

import (
	"container/list"
	"context"
	"time"
)

// Cond is a condition variable bound to a Mutex.
//
// Unlike sync.Cond, a wait can be abandoned through its context or after a
// timeout. The pattern is the usual one:
//
//	m.Lock()
//	defer m.Unlock()
//	for !condition {
//	    if err := c.Wait(ctx); err != nil {
//	        return err
//	    }
//	}
//
// Signal and Broadcast must be called with the Mutex held.
type Cond struct {
	m *Mutex

	waiters list.List // of chan struct{}; guarded by m
}

// NewCond returns a Cond bound to m.
func NewCond(m *Mutex) *Cond {
	return &Cond{m: m}
}

// Wait releases the Mutex, parks until signalled or until ctx is done, then
// re-acquires the Mutex before returning. The Mutex is held on return in both
// cases, so a deferred Unlock in the caller stays correct.
func (c *Cond) Wait(ctx context.Context) error {
	_, err := c.wait(ctx, nil)
	return err
}

// WaitTimeout is Wait with an upper bound d on the time spent parked. It
// reports whether the wake-up came from Signal or Broadcast. A non-positive d
// returns immediately without releasing the Mutex.
func (c *Cond) WaitTimeout(ctx context.Context, d time.Duration) (bool, error) {
	if d <= 0 {
		return false, ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	return c.wait(ctx, timer.C)
}

// Signal wakes the longest waiting goroutine, if any.
func (c *Cond) Signal() {
	front := c.waiters.Front()
	if front == nil {
		return
	}
	close(c.waiters.Remove(front).(chan struct{}))
}

// Broadcast wakes all waiting goroutines.
func (c *Cond) Broadcast() {
	for c.waiters.Len() > 0 {
		c.Signal()
	}
}

// Waiting returns the number of parked goroutines. The Mutex must be held.
func (c *Cond) Waiting() int {
	return c.waiters.Len()
}

func (c *Cond) wait(ctx context.Context, timeout <-chan time.Time) (signalled bool, err error) {
	ch := make(chan struct{})
	elem := c.waiters.PushBack(ch)
	c.m.Unlock()

	select {
	case <-ch:
		signalled = true
	case <-ctx.Done():
		err = ctx.Err()
	case <-timeout:
	}

	c.m.Lock()

	if !signalled {
		select {
		case <-ch:
			// A Signal landed while we were leaving; hand it on so that it is
			// not lost.
			c.Signal()
		default:
			c.waiters.Remove(elem)
		}
	}

	return signalled, err
}
