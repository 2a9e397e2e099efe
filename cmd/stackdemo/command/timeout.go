package command

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/marcodamonte/blockingstack/stack"
)

func (cl *Commandline) timeoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeout",
		Short: "Offer to a full stack and watch the timed insert give up",
		Args:  cobra.NoArgs,
		RunE:  cl.timedOffer,
	}

	cmd.Flags().Duration("timeout", 150*time.Millisecond, "how long OfferTimeout waits for room")
	cmd.Flags().Duration("pop-after", 0, "pop one element after this delay; 0 never pops")
	cmd.Flags().Bool("fair", false, "use a fair lock")

	return cmd
}

// timedOffer fills a capacity-1 stack and then offers a second element. With
// --pop-after shorter than --timeout the offer succeeds once room appears;
// otherwise it reports false when the deadline passes.
func (cl *Commandline) timedOffer(cmd *cobra.Command, args []string) error {
	timeout := cl.v.GetDuration("timeout")
	popAfter := cl.v.GetDuration("pop-after")

	s, err := stack.New[string](1,
		stack.WithFairness(cl.v.GetBool("fair")),
		stack.WithObserver(cl.observer("timeout")),
	)
	if err != nil {
		return err
	}
	if err := s.Push("occupant"); err != nil {
		return err
	}

	// The delayed pop only reports what it took; logging happens here so
	// nothing writes once the command has returned.
	var (
		popTimer *time.Timer
		popped   = make(chan string, 1)
	)
	if popAfter > 0 {
		popTimer = time.AfterFunc(popAfter, func() {
			v, _ := s.TryPop()
			popped <- v
		})
	}

	start := time.Now()
	deadline := start.Add(timeout)
	fmt.Fprintf(cl.out, "deadline set to: %s\n", deadline.Format("15:04:05.000"))

	ok, err := s.OfferTimeout(cmd.Context(), "latecomer", timeout)
	elapsed := time.Since(start).Round(time.Millisecond)

	if popTimer != nil && !popTimer.Stop() {
		if v := <-popped; v != "" {
			cl.log.Infof("popped %q after %s", v, popAfter)
		}
	}

	if err != nil {
		return err
	}

	if ok {
		fmt.Fprintf(cl.out, "%s after %s, top is now %q\n", color.GreenString("inserted"), elapsed, peek(s))
		return nil
	}
	fmt.Fprintf(cl.out, "%s at %s after %s, stack still full (len %d/%d)\n",
		color.YellowString("timed out"), time.Now().Format("15:04:05.000"), elapsed, s.Len(), s.Cap())
	return nil
}

func peek[E any](s *stack.Stack[E]) E {
	v, _ := s.Peek()
	return v
}
