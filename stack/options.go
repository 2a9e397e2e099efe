package stack

import "time"

// Op identifies the kind of blocking call reported to an Observer.
type Op int

const (
	OpOffer Op = iota
	OpPop
)

func (o Op) String() string {
	switch o {
	case OpOffer:
		return "offer"
	case OpPop:
		return "pop"
	}
	return "unknown"
}

// Observer receives a callback for every state change and every wait of a
// Stack. Implementations must be safe for concurrent use and must not call
// back into the Stack: most callbacks run with the stack lock held.
type Observer interface {
	// Offered reports the outcome of Offer, OfferTimeout and Push.
	Offered(accepted bool)

	// Popped reports a successful Pop or TryPop.
	Popped()

	// Waited reports time spent parked on a condition variable.
	Waited(op Op, d time.Duration)

	// TimedOut reports an OfferTimeout that gave up.
	TimedOut(op Op)

	// Cancelled reports a blocking call abandoned because of its context.
	Cancelled(op Op)

	// Depth reports the number of elements after a change.
	Depth(n int)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) Offered(bool)             {}
func (NopObserver) Popped()                  {}
func (NopObserver) Waited(Op, time.Duration) {}
func (NopObserver) TimedOut(Op)              {}
func (NopObserver) Cancelled(Op)             {}
func (NopObserver) Depth(int)                {}

// Option configures a Stack at construction.
type Option func(*options)

type options struct {
	fair     bool
	observer Observer
}

func defaultOptions() options {
	return options{observer: NopObserver{}}
}

// WithFairness selects a fair lock: blocked callers acquire it in the order
// they asked for it. The default is unfair, which lets a newly arriving
// goroutine go first and gives better throughput under contention.
func WithFairness(fair bool) Option {
	return func(o *options) {
		o.fair = fair
	}
}

// WithObserver installs o. A nil o restores the no-op observer.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		if o == nil {
			o = NopObserver{}
		}
		opts.observer = o
	}
}
