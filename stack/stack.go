// Package stack provides Stack, a bounded, goroutine-safe LIFO container with
// blocking, non-blocking and timed insertion, blocking removal and
// non-blocking peek.
//
// All state lives in a fixed-size slice guarded by a single lock. Two
// condition variables bound to that lock, notEmpty and notFull, park callers
// that have to wait for an element or for room. Every blocking call takes a
// context.Context and gives up when it is done.
//
// Typical use:
//
//	s, _ := stack.New[string](8, stack.WithFairness(true))
//
//	ok, err := s.OfferTimeout(ctx, "job-1", 50*time.Millisecond)
//	// ok == false, err == nil: still full after 50 ms
//
//	v, err := s.Pop(ctx) // blocks until something is pushed or ctx is done
package stack

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/marcodamonte/blockingstack/internal/lock"
)

// Stack is a bounded blocking LIFO stack. Create it with New; the zero value
// is not usable.
type Stack[E any] struct {
	capacity int

	// slots[:head] hold live elements in push order, slots[head-1] is the top.
	// slots[head:] are always the zero value of E.
	slots []E
	head  int

	mu       *lock.Mutex
	notEmpty *lock.Cond
	notFull  *lock.Cond

	observer Observer
}

// New creates a Stack holding at most capacity elements.
// It returns ErrInvalidArgument if capacity < 1.
func New[E any](capacity int, opts ...Option) (*Stack[E], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidArgument, capacity)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	mu := lock.NewMutex(o.fair)

	return &Stack[E]{
		capacity: capacity,
		slots:    make([]E, capacity),
		mu:       mu,
		notEmpty: lock.NewCond(mu),
		notFull:  lock.NewCond(mu),
		observer: o.observer,
	}, nil
}

// MustNew is like New but panics on error.
func MustNew[E any](capacity int, opts ...Option) *Stack[E] {
	s, err := New[E](capacity, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// ── Insertion ────────────────────────────────────────────────────────────────

// Offer inserts e if there is room, without waiting.
// It reports false if the stack was full. A nil e is rejected with
// ErrInvalidArgument.
func (s *Stack[E]) Offer(e E) (bool, error) {
	if err := checkElement(e); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.head == s.capacity {
		s.observer.Offered(false)
		return false, nil
	}

	s.insert(e, false)
	return true, nil
}

// OfferTimeout inserts e, waiting up to timeout for room if the stack is full.
//
// It reports false, with a nil error, if the stack was still full when the
// timeout expired. If ctx is done first, either while acquiring the lock or
// while waiting, it returns an error matching both ErrCancelled and ctx.Err();
// nothing is inserted in that case.
func (s *Stack[E]) OfferTimeout(ctx context.Context, e E, timeout time.Duration) (bool, error) {
	if err := checkElement(e); err != nil {
		return false, err
	}

	deadline := time.Now().Add(timeout)

	if err := s.mu.LockContext(ctx); err != nil {
		s.observer.Cancelled(OpOffer)
		return false, cancelled("offer", err)
	}
	defer s.mu.Unlock()

	waited := false
	for s.head == s.capacity {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.observer.TimedOut(OpOffer)
			s.observer.Offered(false)
			return false, nil
		}

		start := time.Now()
		_, err := s.notFull.WaitTimeout(ctx, remaining)
		s.observer.Waited(OpOffer, time.Since(start))
		waited = true

		if err != nil {
			s.observer.Cancelled(OpOffer)
			return false, cancelled("offer", err)
		}
	}

	s.insert(e, waited)
	return true, nil
}

// Push inserts e or fails with ErrCapacityExceeded if the stack is full.
// It never waits for room; use OfferTimeout for that.
func (s *Stack[E]) Push(e E) error {
	ok, err := s.Offer(e)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("push: %w (capacity %d)", ErrCapacityExceeded, s.capacity)
	}
	return nil
}

// ── Removal ──────────────────────────────────────────────────────────────────

// Pop removes and returns the top element, waiting as long as it takes for
// one to be pushed. If ctx is done first it returns the zero value and an
// error matching both ErrCancelled and ctx.Err().
func (s *Stack[E]) Pop(ctx context.Context) (E, error) {
	var zero E

	if err := s.mu.LockContext(ctx); err != nil {
		s.observer.Cancelled(OpPop)
		return zero, cancelled("pop", err)
	}
	defer s.mu.Unlock()

	waited := false
	for s.head == 0 {
		start := time.Now()
		err := s.notEmpty.Wait(ctx)
		s.observer.Waited(OpPop, time.Since(start))
		waited = true

		if err != nil {
			s.observer.Cancelled(OpPop)
			return zero, cancelled("pop", err)
		}
	}

	return s.remove(waited), nil
}

// TryPop removes and returns the top element if there is one, without
// waiting.
func (s *Stack[E]) TryPop() (E, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.head == 0 {
		var zero E
		return zero, false
	}
	return s.remove(false), true
}

// Peek returns the top element without removing it. It reports false if the
// stack is empty.
func (s *Stack[E]) Peek() (E, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.head == 0 {
		var zero E
		return zero, false
	}
	return s.slots[s.head-1], true
}

// ── Snapshots ────────────────────────────────────────────────────────────────

// Len returns the number of elements currently held.
func (s *Stack[E]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

// Cap returns the fixed capacity.
func (s *Stack[E]) Cap() int {
	return s.capacity
}

// IsEmpty reports whether the stack holds no element.
func (s *Stack[E]) IsEmpty() bool {
	return s.Len() == 0
}

// IsFull reports whether the stack holds Cap() elements.
func (s *Stack[E]) IsFull() bool {
	return s.Len() == s.capacity
}

// Fair reports whether the stack's lock admits waiters in arrival order.
func (s *Stack[E]) Fair() bool {
	return s.mu.Fair()
}

// ── Critical sections (s.mu held) ────────────────────────────────────────────

// insert stores e on top. notEmpty is signalled on the 0→1 transition. A
// caller that had to wait passes the wake-up on to the next blocked offerer
// while room is left, since it may have consumed the only signal.
func (s *Stack[E]) insert(e E, waited bool) {
	s.slots[s.head] = e
	s.head++

	if s.head == 1 {
		s.notEmpty.Signal()
	}
	if waited && s.head < s.capacity {
		s.notFull.Signal()
	}

	s.observer.Offered(true)
	s.observer.Depth(s.head)
}

// remove takes the top element and clears its slot. notFull is signalled on
// the capacity→capacity-1 transition; waited mirrors insert.
func (s *Stack[E]) remove(waited bool) E {
	var zero E

	wasFull := s.head == s.capacity
	s.head--
	e := s.slots[s.head]
	s.slots[s.head] = zero

	if wasFull {
		s.notFull.Signal()
	}
	if waited && s.head > 0 {
		s.notEmpty.Signal()
	}

	s.observer.Popped()
	s.observer.Depth(s.head)
	return e
}

// checkElement rejects the "no value" element: nil for every E whose values
// can be nil.
func checkElement[E any](e E) error {
	if isNil(any(e)) {
		return fmt.Errorf("%w: nil element", ErrInvalidArgument)
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map,
		reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}
