// Package lock provides the mutual-exclusion and condition-variable primitives
// used by the blocking stack.
//
// sync.Mutex cannot be told to admit waiters in arrival order, and sync.Cond
// cannot be abandoned once a goroutine is parked in Wait. Both gaps matter for
// a blocking container: callers need a fairness switch and every wait must be
// cancellable through a context.Context. The types here close those gaps with
// an explicit FIFO queue of waiters.
package lock

import (
	"container/list"
	"context"
	"sync"
)

// Mutex is a mutual-exclusion lock with an optional fairness guarantee.
//
// In fair mode Unlock hands ownership directly to the goroutine that has been
// waiting longest, and newcomers queue behind existing waiters. In unfair mode
// Unlock releases the lock and wakes the oldest waiter, which then has to
// re-contend: a goroutine that arrives in between may take the lock first.
//
// The zero value is an unlocked, unfair Mutex.
type Mutex struct {
	fair bool

	mu      sync.Mutex // guards locked and waiters
	locked  bool
	waiters list.List // of *waiter, oldest first
}

type waiter struct {
	ready chan struct{}

	// granted is set before ready is closed when ownership is handed over
	// (fair mode only).
	granted bool
}

// NewMutex returns an unlocked Mutex. fair selects FIFO hand-off.
func NewMutex(fair bool) *Mutex {
	return &Mutex{fair: fair}
}

// Fair reports whether the Mutex hands ownership over in FIFO order.
func (m *Mutex) Fair() bool {
	return m.fair
}

// Lock acquires m, blocking until it is available.
func (m *Mutex) Lock() {
	_ = m.LockContext(context.Background())
}

// LockContext acquires m, or gives up and returns ctx.Err() when ctx is done
// first. On error the caller does not hold the lock.
func (m *Mutex) LockContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()

	requeue := false
	for {
		if !m.locked && (!m.fair || m.waiters.Len() == 0) {
			m.locked = true
			m.mu.Unlock()
			return nil
		}

		w := &waiter{ready: make(chan struct{})}

		// A woken unfair waiter that lost the race keeps its place at the front.
		var elem *list.Element
		if requeue {
			elem = m.waiters.PushFront(w)
		} else {
			elem = m.waiters.PushBack(w)
		}
		m.mu.Unlock()

		select {
		case <-w.ready:
		case <-ctx.Done():
			m.mu.Lock()
			select {
			case <-w.ready:
				// Woken at the same time as the cancellation: whatever we were
				// given has to be passed on.
				if w.granted {
					m.releaseLocked()
				} else if !m.locked {
					m.wakeLocked()
				}
			default:
				m.waiters.Remove(elem)
			}
			m.mu.Unlock()
			return ctx.Err()
		}

		if w.granted {
			return nil
		}

		m.mu.Lock()
		requeue = true
	}
}

// TryLock acquires m only if it is free and, in fair mode, nobody is queued.
func (m *Mutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked || (m.fair && m.waiters.Len() > 0) {
		return false
	}
	m.locked = true
	return true
}

// Unlock releases m. It is a run-time error if m is not locked.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.locked {
		panic("lock: unlock of unlocked mutex")
	}
	m.releaseLocked()
}

// Waiting returns the number of goroutines queued on m.
func (m *Mutex) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters.Len()
}

// releaseLocked gives up ownership. m.mu must be held.
func (m *Mutex) releaseLocked() {
	if !m.fair {
		m.locked = false
		m.wakeLocked()
		return
	}

	front := m.waiters.Front()
	if front == nil {
		m.locked = false
		return
	}

	w := m.waiters.Remove(front).(*waiter)
	w.granted = true // m.locked stays set: ownership moves to w
	close(w.ready)
}

// wakeLocked wakes the oldest waiter without granting it the lock.
func (m *Mutex) wakeLocked() {
	front := m.waiters.Front()
	if front == nil {
		return
	}
	w := m.waiters.Remove(front).(*waiter)
	close(w.ready)
}
