// Package workerpool provides a fixed-size worker pool whose pending jobs wait
// on a bounded blocking stack: the most recently submitted job runs first.
//
// LIFO scheduling keeps latency low for fresh work when the pool falls behind
// a burst, at the price of older jobs waiting longer. The pool offers graceful
// shutdown, context-based cancellation and basic observability via atomic
// counters and leveled logging.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcodamonte/blockingstack/internal/logger"
	"github.com/marcodamonte/blockingstack/stack"
)

// Job is the unit of work submitted to the pool. The function receives the
// pool's context so it can respect cancellation.
type Job func(ctx context.Context) error

// Config holds pool construction parameters.
type Config struct {
	// Workers is the number of goroutines that consume jobs concurrently.
	Workers int

	// QueueSize is the capacity of the pending-job stack. Defaults to 1.
	QueueSize int

	// SubmitTimeout bounds how long Submit waits for room on a full stack
	// before giving up with ErrQueueFull. Zero means fail immediately.
	SubmitTimeout time.Duration

	// ShutdownTimeout is the maximum time Shutdown waits for in-flight jobs
	// to finish before forcefully cancelling them. Defaults to 30 s.
	ShutdownTimeout time.Duration

	// Fair selects a fair lock for the pending-job stack.
	Fair bool

	// Logger is used for lifecycle output. If nil, a simple logger on stderr
	// is used.
	Logger logger.Logger

	// Observer, if set, receives the pending-job stack's callbacks.
	Observer stack.Observer
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 1
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = 30 * time.Second
	}
	if out.Logger == nil {
		out.Logger = logger.NewSimpleLogger("workerpool", os.Stderr)
	}
	return out
}

// Metrics exposes live pool counters. All fields are updated atomically and
// safe to read from any goroutine.
type Metrics struct {
	Submitted int64 // total jobs ever pushed on the stack
	Started   int64 // jobs a worker picked up
	Succeeded int64 // jobs that returned nil
	Failed    int64 // jobs that returned a non-nil error
	Dropped   int64 // jobs rejected: pool closed, stack full or submit cancelled
}

// Pool is a fixed-size worker pool.
//
// Lifecycle:
//
//	pool := workerpool.New(cfg)
//	pool.Submit(ctx, job) // waits up to SubmitTimeout for room
//	pool.Shutdown()       // stop accepting, drain, cancel stragglers
type Pool struct {
	cfg     Config
	jobs    *stack.Stack[Job]
	wg      sync.WaitGroup // tracks live worker goroutines
	metrics Metrics

	// stopPopping wakes idle workers parked in Pop once Shutdown begins; they
	// then drain whatever is left without blocking.
	popCtx      context.Context
	stopPopping context.CancelFunc

	// cancelWorkers stops in-flight jobs when ShutdownTimeout elapses.
	workerCtx     context.Context
	cancelWorkers context.CancelFunc

	// once ensures Shutdown is idempotent.
	once sync.Once

	// closeMu orders Submit against Shutdown: no job lands on the stack once
	// the workers may have finished draining it.
	closeMu sync.RWMutex
	closed  bool
}

// New creates a Pool and starts N worker goroutines. Workers run until
// Shutdown is called.
func New(cfg Config) *Pool {
	cfg = cfg.withDefaults()

	opts := []stack.Option{stack.WithFairness(cfg.Fair)}
	if cfg.Observer != nil {
		opts = append(opts, stack.WithObserver(cfg.Observer))
	}

	popCtx, stopPopping := context.WithCancel(context.Background())
	workerCtx, cancelWorkers := context.WithCancel(context.Background())

	p := &Pool{
		cfg:           cfg,
		jobs:          stack.MustNew[Job](cfg.QueueSize, opts...),
		popCtx:        popCtx,
		stopPopping:   stopPopping,
		workerCtx:     workerCtx,
		cancelWorkers: cancelWorkers,
	}

	p.cfg.Logger.Infof("[pool] starting %d workers (stack=%d, fair=%v, shutdownTimeout=%s)",
		cfg.Workers, cfg.QueueSize, cfg.Fair, cfg.ShutdownTimeout)

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}

	return p
}

// Submit pushes a job on the pending stack. It returns ErrPoolClosed if the
// pool is shutting down, and ErrQueueFull if the stack stayed full for
// SubmitTimeout. If ctx is done while waiting for room the returned error
// wraps ctx.Err().
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if job == nil {
		return fmt.Errorf("submit: %w", stack.ErrInvalidArgument)
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		atomic.AddInt64(&p.metrics.Dropped, 1)
		return ErrPoolClosed
	}

	ok, err := p.jobs.OfferTimeout(ctx, job, p.cfg.SubmitTimeout)
	switch {
	case err != nil:
		// Caller cancelled while waiting for room.
		atomic.AddInt64(&p.metrics.Dropped, 1)
		return fmt.Errorf("submit cancelled: %w", err)
	case !ok:
		atomic.AddInt64(&p.metrics.Dropped, 1)
		return ErrQueueFull
	}

	atomic.AddInt64(&p.metrics.Submitted, 1)
	return nil
}

// Pending returns the number of jobs waiting on the stack.
func (p *Pool) Pending() int {
	return p.jobs.Len()
}

// Shutdown stops the pool gracefully:
//  1. Marks the pool as closed so no new jobs are accepted.
//  2. Wakes idle workers; every worker drains the remaining stack and exits.
//  3. Waits up to ShutdownTimeout for workers to finish.
//  4. If the timeout elapses, cancels all worker contexts and waits for
//     workers to exit (they must respect ctx cancellation).
//
// Shutdown is safe to call more than once; subsequent calls are no-ops.
// It returns ErrShutdownTimeout if a forced cancellation was required.
func (p *Pool) Shutdown() error {
	var shutdownErr error

	p.once.Do(func() {
		defer p.cancelWorkers()

		p.cfg.Logger.Infof("[pool] shutdown initiated (%d pending)", p.jobs.Len())

		// 1. Stop accepting new jobs. Waits for submitters already
		// blocked on a full stack (at most SubmitTimeout).
		p.closeMu.Lock()
		p.closed = true
		p.closeMu.Unlock()

		// 2. Workers blocked in Pop return and switch to draining.
		p.stopPopping()

		// 3. Wait up to ShutdownTimeout for a clean drain.
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.cfg.Logger.Infof("[pool] shutdown complete (all workers exited cleanly)")

		case <-time.After(p.cfg.ShutdownTimeout):
			// 4. Timeout: force-cancel in-flight jobs.
			p.cfg.Logger.Warningf("[pool] shutdown timeout (%s) elapsed, cancelling workers",
				p.cfg.ShutdownTimeout)
			p.cancelWorkers()
			<-done // wait for workers to ack cancellation
			p.cfg.Logger.Infof("[pool] shutdown complete (forced)")
			shutdownErr = ErrShutdownTimeout
		}
	})

	return shutdownErr
}

// Metrics returns a snapshot of pool counters. Values are consistent within
// each field but may not be mutually consistent across fields (no global lock).
func (p *Pool) Metrics() Metrics {
	return Metrics{
		Submitted: atomic.LoadInt64(&p.metrics.Submitted),
		Started:   atomic.LoadInt64(&p.metrics.Started),
		Succeeded: atomic.LoadInt64(&p.metrics.Succeeded),
		Failed:    atomic.LoadInt64(&p.metrics.Failed),
		Dropped:   atomic.LoadInt64(&p.metrics.Dropped),
	}
}

// runWorker is the goroutine body for one worker.
func (p *Pool) runWorker(id int) {
	defer p.wg.Done()
	p.cfg.Logger.Debugf("[worker %d] started", id)

	for {
		job, err := p.jobs.Pop(p.popCtx)
		if err != nil {
			break
		}
		p.run(id, job)
	}

	// Shutdown began: finish what is left without blocking.
	for {
		job, ok := p.jobs.TryPop()
		if !ok {
			break
		}
		p.run(id, job)
	}

	p.cfg.Logger.Debugf("[worker %d] exited", id)
}

func (p *Pool) run(id int, job Job) {
	// Check whether a force-cancel happened before we even start.
	if p.workerCtx.Err() != nil {
		p.cfg.Logger.Debugf("[worker %d] skipping job: context already cancelled", id)
		atomic.AddInt64(&p.metrics.Failed, 1)
		return
	}

	atomic.AddInt64(&p.metrics.Started, 1)

	if err := job(p.workerCtx); err != nil {
		atomic.AddInt64(&p.metrics.Failed, 1)
		p.cfg.Logger.Warningf("[worker %d] job failed: %v", id, err)
	} else {
		atomic.AddInt64(&p.metrics.Succeeded, 1)
	}
}

// Sentinel errors returned by the pool.
var (
	ErrPoolClosed      = errors.New("worker pool is closed")
	ErrQueueFull       = errors.New("worker pool stack is full")
	ErrShutdownTimeout = errors.New("shutdown timeout elapsed; workers were force-cancelled")
)
