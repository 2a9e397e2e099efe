package stack

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marcodamonte/blockingstack/internal/lock"
)

type waitCounter struct {
	NopObserver
	offerWaits atomic.Int64
}

func (w *waitCounter) Waited(op Op, _ time.Duration) {
	if op == OpOffer {
		w.offerWaits.Add(1)
	}
}

// churn takes the top element and puts a new one back inside a single
// critical section, so a woken offerer always finds the stack full again.
func (s *Stack[E]) churn(e E) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(false)
	s.insert(e, false)
}

// parkRaw parks a goroutine directly on c, outside any stack operation, and
// waits until it is queued. The returned func releases it.
func parkRaw(t *testing.T, m *lock.Mutex, c *lock.Cond) (release func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Lock()
		defer m.Unlock()
		_ = c.Wait(ctx)
	}()

	require.Eventually(t, func() bool {
		m.Lock()
		defer m.Unlock()
		return c.Waiting() == 1
	}, time.Second, time.Millisecond)

	return func() {
		cancel()
		<-done
	}
}

func waiting(m *lock.Mutex, c *lock.Cond) int {
	m.Lock()
	defer m.Unlock()
	return c.Waiting()
}

// ── Deadline across wake-ups ─────────────────────────────────────────────────

// TestOfferTimeoutKeepsDeadlineAcrossWakeups wakes a timed offer repeatedly
// while the stack stays full. The offer must give up once the original
// deadline passes, not a full timeout after the last wake-up.
func TestOfferTimeoutKeepsDeadlineAcrossWakeups(t *testing.T) {
	t.Parallel()

	obs := &waitCounter{}
	s := MustNew[int](1, WithObserver(obs))
	require.NoError(t, s.Push(0))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for i := 1; ; i++ {
			select {
			case <-stop:
				return
			case <-tick.C:
				s.churn(i)
			}
		}
	}()

	// Keep churning well past the deadline: an offer that restarted its
	// timeout on every wake-up would only return after the churn stops.
	time.AfterFunc(300*time.Millisecond, func() { close(stop) })

	start := time.Now()
	ok, err := s.OfferTimeout(context.Background(), -1, 100*time.Millisecond)
	elapsed := time.Since(start)
	wg.Wait()

	require.NoError(t, err)
	require.False(t, ok)
	require.GreaterOrEqual(t, obs.offerWaits.Load(), int64(2), "offer was never woken while full")
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	require.Less(t, elapsed, 250*time.Millisecond)

	top, _ := s.Peek()
	require.NotEqual(t, -1, top)
}

// ── Signalling off the boundary ──────────────────────────────────────────────

// TestOfferOffBoundaryDoesNotSignal checks that a 1→2 Offer, made without
// waiting, leaves a goroutine parked on notEmpty alone.
func TestOfferOffBoundaryDoesNotSignal(t *testing.T) {
	t.Parallel()

	s := MustNew[int](3)
	require.NoError(t, s.Push(1))

	release := parkRaw(t, s.mu, s.notEmpty)
	defer release()

	ok, err := s.Offer(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, waiting(s.mu, s.notEmpty), "1→2 offer signalled notEmpty")

	// 2→3 does not signal notFull either: nobody waited.
	releaseFull := parkRaw(t, s.mu, s.notFull)
	defer releaseFull()

	require.NoError(t, s.Push(3))
	require.Equal(t, 1, waiting(s.mu, s.notFull))
	require.Equal(t, 1, waiting(s.mu, s.notEmpty))
}

// TestRemoveOffBoundaryDoesNotSignal checks that a 2→1 TryPop on a stack of
// capacity 3 signals neither condition.
func TestRemoveOffBoundaryDoesNotSignal(t *testing.T) {
	t.Parallel()

	s := MustNew[int](3)
	require.NoError(t, s.Push(1))
	require.NoError(t, s.Push(2))

	releaseFull := parkRaw(t, s.mu, s.notFull)
	defer releaseFull()
	releaseEmpty := parkRaw(t, s.mu, s.notEmpty)
	defer releaseEmpty()

	v, ok := s.TryPop()
	require.True(t, ok)
	require.Equal(t, 2, v)

	require.Equal(t, 1, waiting(s.mu, s.notFull), "2→1 pop signalled notFull")
	require.Equal(t, 1, waiting(s.mu, s.notEmpty), "2→1 pop signalled notEmpty")
}

// TestBoundaryTransitionsSignalOnce pins the two boundary signals: 0→1 wakes
// one notEmpty waiter and capacity→capacity-1 wakes one notFull waiter.
func TestBoundaryTransitionsSignalOnce(t *testing.T) {
	t.Parallel()

	s := MustNew[int](1)

	releaseA := parkRaw(t, s.mu, s.notEmpty)
	defer releaseA()

	require.NoError(t, s.Push(1))
	require.Zero(t, waiting(s.mu, s.notEmpty))

	releaseB := parkRaw(t, s.mu, s.notFull)
	defer releaseB()

	_, ok := s.TryPop()
	require.True(t, ok)
	require.Zero(t, waiting(s.mu, s.notFull))
}
