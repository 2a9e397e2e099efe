// Package stress drives a Stack with concurrent producers and consumers and
// checks that every produced value is consumed exactly once.
package stress

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/marcodamonte/blockingstack/internal/logger"
	"github.com/marcodamonte/blockingstack/stack"
)

// Config describes one run.
type Config struct {
	Producers   int
	Consumers   int
	PerProducer int
	Capacity    int
	Fair        bool

	// UseOfferTimeout makes producers wait for room with OfferTimeout
	// instead of spinning on Push.
	UseOfferTimeout bool
	OfferTimeout    time.Duration

	// Observer, if set, is installed on the stack under test.
	Observer stack.Observer

	// Progress, if set, is called once per consumed element.
	Progress func()
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Producers <= 0 {
		out.Producers = 1
	}
	if out.Consumers <= 0 {
		out.Consumers = 1
	}
	if out.PerProducer <= 0 {
		out.PerProducer = 1
	}
	if out.Capacity <= 0 {
		out.Capacity = 1
	}
	if out.OfferTimeout <= 0 {
		out.OfferTimeout = 10 * time.Millisecond
	}
	return out
}

// Report summarizes a run. A run is clean when Duplicates and Missing are
// both zero and MaxDepth never exceeded the capacity.
type Report struct {
	ID       xid.ID
	Fair     bool
	Elapsed  time.Duration
	Produced int64
	Consumed int64

	// Retries counts inserts that found the stack full and had to try again.
	Retries int64

	Duplicates int
	Missing    int
	MaxDepth   int
	Capacity   int
}

// Clean reports whether the run saw every value exactly once within bounds.
func (r Report) Clean() bool {
	return r.Duplicates == 0 && r.Missing == 0 && r.MaxDepth <= r.Capacity
}

// Throughput returns consumed elements per second.
func (r Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Consumed) / r.Elapsed.Seconds()
}

// ErrBoundsViolated is returned when a sampled length left [0, capacity].
var ErrBoundsViolated = errors.New("stack length left its bounds")

// Run executes one stress run. It returns early with ctx's error if ctx is
// done before every value was consumed; the partial report is still returned.
func Run(ctx context.Context, cfg Config, log logger.Logger) (Report, error) {
	cfg = cfg.withDefaults()

	opts := []stack.Option{stack.WithFairness(cfg.Fair)}
	if cfg.Observer != nil {
		opts = append(opts, stack.WithObserver(cfg.Observer))
	}
	s, err := stack.New[int](cfg.Capacity, opts...)
	if err != nil {
		return Report{}, err
	}

	total := cfg.Producers * cfg.PerProducer
	rep := Report{ID: xid.New(), Fair: cfg.Fair, Capacity: cfg.Capacity}

	log.Infof("[stress %s] %d producers x %d, %d consumers, capacity %d, fair=%v",
		rep.ID, cfg.Producers, cfg.PerProducer, cfg.Consumers, cfg.Capacity, cfg.Fair)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		produced, consumed, retries int64
		maxDepth                    int64
		seen                        = make([]int32, total)
		prodWg, consWg              sync.WaitGroup
		firstErr                    error
		errOnce                     sync.Once
	)

	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	sample := func() {
		n := int64(s.Len())
		if n < 0 || n > int64(cfg.Capacity) {
			fail(fmt.Errorf("%w: len %d, capacity %d", ErrBoundsViolated, n, cfg.Capacity))
		}
		for {
			cur := atomic.LoadInt64(&maxDepth)
			if n <= cur || atomic.CompareAndSwapInt64(&maxDepth, cur, n) {
				return
			}
		}
	}

	start := time.Now()

	for p := 0; p < cfg.Producers; p++ {
		prodWg.Add(1)
		go func(p int) {
			defer prodWg.Done()

			for i := 0; i < cfg.PerProducer; i++ {
				v := p*cfg.PerProducer + i
				if err := produce(ctx, s, v, &cfg, &retries); err != nil {
					fail(err)
					return
				}
				atomic.AddInt64(&produced, 1)
				sample()
			}
			log.Debugf("[stress %s] producer %d done", rep.ID, p)
		}(p)
	}

	for c := 0; c < cfg.Consumers; c++ {
		consWg.Add(1)
		go func(c int) {
			defer consWg.Done()

			for atomic.AddInt64(&consumed, 1) <= int64(total) {
				v, err := s.Pop(ctx)
				if err != nil {
					atomic.AddInt64(&consumed, -1)
					fail(err)
					return
				}
				if v >= 0 && v < total {
					atomic.AddInt32(&seen[v], 1)
				}
				sample()
				if cfg.Progress != nil {
					cfg.Progress()
				}
			}
			// Overshot the claim counter; give the slot back.
			atomic.AddInt64(&consumed, -1)
			log.Debugf("[stress %s] consumer %d done", rep.ID, c)
		}(c)
	}

	prodWg.Wait()
	consWg.Wait()

	rep.Elapsed = time.Since(start)
	rep.Produced = atomic.LoadInt64(&produced)
	rep.Consumed = atomic.LoadInt64(&consumed)
	rep.Retries = atomic.LoadInt64(&retries)
	rep.MaxDepth = int(atomic.LoadInt64(&maxDepth))

	for _, n := range seen {
		switch {
		case n == 0:
			rep.Missing++
		case n > 1:
			rep.Duplicates += int(n) - 1
		}
	}

	if firstErr != nil {
		log.Warningf("[stress %s] aborted after %s: %v", rep.ID, rep.Elapsed, firstErr)
		return rep, firstErr
	}

	log.Infof("[stress %s] done in %s: %d consumed, %d retries, max depth %d",
		rep.ID, rep.Elapsed, rep.Consumed, rep.Retries, rep.MaxDepth)

	return rep, nil
}

// produce inserts v, retrying while the stack is full.
func produce(ctx context.Context, s *stack.Stack[int], v int, cfg *Config, retries *int64) error {
	for {
		if cfg.UseOfferTimeout {
			ok, err := s.OfferTimeout(ctx, v, cfg.OfferTimeout)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		} else {
			err := s.Push(v)
			if err == nil {
				return nil
			}
			if !errors.Is(err, stack.ErrCapacityExceeded) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			runtime.Gosched()
		}
		atomic.AddInt64(retries, 1)
	}
}
