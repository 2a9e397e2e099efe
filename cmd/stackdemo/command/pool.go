package command

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marcodamonte/blockingstack/workerpool"
)

func (cl *Commandline) poolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Process simulated orders on a worker pool backed by the stack",
		Long: `Process simulated orders on a worker pool whose pending jobs wait on a
bounded blocking stack. The newest order is picked up first. Interrupt with
Ctrl+C to trigger a graceful shutdown early.`,
		Args: cobra.NoArgs,
		RunE: cl.pool,
	}

	cmd.Flags().Int("workers", 4, "worker goroutines")
	cmd.Flags().Int("queue", 20, "capacity of the pending-job stack")
	cmd.Flags().Int("jobs", 40, "orders to submit")
	cmd.Flags().Duration("submit-every", 20*time.Millisecond, "pause between submissions")
	cmd.Flags().Duration("submit-timeout", 500*time.Millisecond, "how long Submit waits for room on a full stack")
	cmd.Flags().Duration("shutdown-timeout", 3*time.Second, "how long Shutdown waits for in-flight orders")
	cmd.Flags().Bool("fair", false, "use a fair lock for the pending-job stack")

	return cmd
}

func (cl *Commandline) pool(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p := workerpool.New(workerpool.Config{
		Workers:         cl.v.GetInt("workers"),
		QueueSize:       cl.v.GetInt("queue"),
		SubmitTimeout:   cl.v.GetDuration("submit-timeout"),
		ShutdownTimeout: cl.v.GetDuration("shutdown-timeout"),
		Fair:            cl.v.GetBool("fair"),
		Logger:          cl.log,
		Observer:        cl.observer("pool"),
	})

	every := cl.v.GetDuration("submit-every")

submit:
	for i := 0; i < cl.v.GetInt("jobs"); i++ {
		orderID := uuid.New()
		err := p.Submit(ctx, func(jobCtx context.Context) error {
			return cl.processOrder(jobCtx, orderID)
		})

		switch {
		case errors.Is(err, workerpool.ErrQueueFull):
			cl.log.Warningf("[main] order %s dropped: %v", orderID, err)
		case err != nil:
			// Interrupted, or the pool is closed.
			break submit
		}

		select {
		case <-time.After(every):
		case <-ctx.Done():
			break submit
		}
	}

	if ctx.Err() != nil {
		cl.log.Infof("[main] signal received, shutting down pool")
	}

	if err := p.Shutdown(); errors.Is(err, workerpool.ErrShutdownTimeout) {
		cl.log.Warningf("[main] some orders were cancelled (shutdown timeout exceeded)")
	}

	m := p.Metrics()
	fmt.Fprintf(cl.out, "%s submitted=%d started=%d succeeded=%d failed=%d dropped=%d\n",
		color.CyanString("metrics:"), m.Submitted, m.Started, m.Succeeded, m.Failed, m.Dropped)
	return nil
}

// processOrder simulates order processing with variable latency and occasional
// failures. It respects ctx so it can be cancelled during a forced shutdown.
func (cl *Commandline) processOrder(ctx context.Context, id uuid.UUID) error {
	duration := time.Duration(50+rand.Intn(200)) * time.Millisecond

	cl.log.Debugf("[order %s] started (will take %s)", id, duration)

	select {
	case <-time.After(duration):
	case <-ctx.Done():
		cl.log.Infof("[order %s] cancelled: %v", id, ctx.Err())
		return ctx.Err()
	}

	// ~10 % failure rate.
	if rand.Intn(10) == 0 {
		return fmt.Errorf("payment gateway timeout for order %s", id)
	}

	cl.log.Debugf("[order %s] done", id)
	return nil
}
