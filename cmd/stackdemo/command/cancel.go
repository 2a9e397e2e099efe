package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/marcodamonte/blockingstack/stack"
)

func (cl *Commandline) cancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Block consumers on an empty stack and release them with cancel()",
		Args:  cobra.NoArgs,
		RunE:  cl.cancelPop,
	}

	cmd.Flags().Duration("after", 120*time.Millisecond, "cancel the consumers after this delay")
	cmd.Flags().Int("consumers", 3, "number of blocked consumers")

	return cmd
}

// cancelPop parks consumers in Pop on an empty stack. Nothing is ever pushed, so
// the only way out is the context.
func (cl *Commandline) cancelPop(cmd *cobra.Command, args []string) error {
	after := cl.v.GetDuration("after")
	n := cl.v.GetInt("consumers")

	s, err := stack.New[int](1, stack.WithObserver(cl.observer("cancel")))
	if err != nil {
		return err
	}

	// cancel() is the only way to release the consumers; deferring it covers
	// early returns too.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out []string
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			start := time.Now()
			_, err := s.Pop(ctx)
			waited := time.Since(start).Round(time.Millisecond)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, stack.ErrCancelled):
				out = append(out, fmt.Sprintf("consumer %d: released after %s: %v", id, waited, err))
			case err != nil:
				out = append(out, fmt.Sprintf("consumer %d: %v", id, err))
			default:
				out = append(out, fmt.Sprintf("consumer %d: unexpectedly got a value", id))
			}
		}(i)
	}

	time.Sleep(after)
	fmt.Fprintln(cl.out, "main: calling cancel()")
	cancel()

	wg.Wait()
	for _, line := range out {
		fmt.Fprintln(cl.out, line)
	}
	fmt.Fprintf(cl.out, "main: %s, ctx.Err(): %v, stack len %d\n",
		color.GreenString("all consumers stopped"), ctx.Err(), s.Len())
	return nil
}
