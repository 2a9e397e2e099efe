package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/marcodamonte/blockingstack/stack"
)

func (cl *Commandline) fairnessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fairness",
		Short: "Compare how fair and unfair locks order competing producers",
		Args:  cobra.NoArgs,
		RunE:  cl.compareFairness,
	}

	cmd.Flags().Int("goroutines", 8, "competing producers")
	cmd.Flags().Int("rounds", 2000, "elements popped per mode")

	return cmd
}

func (cl *Commandline) compareFairness(cmd *cobra.Command, args []string) error {
	goroutines := cl.v.GetInt("goroutines")
	rounds := cl.v.GetInt("rounds")

	table := tablewriter.NewWriter(cl.out)
	table.SetHeader([]string{"lock", "served", "inversions", "min/goroutine", "max/goroutine", "elapsed"})
	table.SetAutoFormatHeaders(false)

	for _, fair := range []bool{false, true} {
		res, err := measureFairness(cmd.Context(), fair, goroutines, rounds, cl.observer("fairness-"+fairness(fair)))
		if err != nil {
			return err
		}
		lo, hi := res.spread()
		table.Append([]string{
			fairness(fair),
			strconv.Itoa(res.Served),
			strconv.Itoa(res.Inversions),
			strconv.Itoa(lo),
			strconv.Itoa(hi),
			res.Elapsed.Round(time.Microsecond).String(),
		})
		cl.log.Debugf("fairness %s: per goroutine %v", fairness(fair), res.PerGoroutine)
	}

	table.Render()
	fmt.Fprintln(cl.out, "inversions: elements inserted out of request order")
	return nil
}

type ticket struct {
	goroutine int
	seq       int64
}

type fairnessResult struct {
	Served       int
	Inversions   int
	PerGoroutine []int
	Elapsed      time.Duration
}

func (r fairnessResult) spread() (lo, hi int) {
	for i, n := range r.PerGoroutine {
		if i == 0 || n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	return lo, hi
}

// measureFairness lets goroutines compete to insert into a capacity-1 stack
// while a single consumer pops rounds elements. Each pop frees exactly one
// slot, so the pop order is the insertion order; a ticket drawn before a
// smaller one that was already waiting counts as an inversion.
func measureFairness(ctx context.Context, fair bool, goroutines, rounds int, obs stack.Observer) (fairnessResult, error) {
	res := fairnessResult{PerGoroutine: make([]int, goroutines)}

	s, err := stack.New[ticket](1, stack.WithFairness(fair), stack.WithObserver(obs))
	if err != nil {
		return res, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		seq int64
		wg  sync.WaitGroup
	)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for {
				t := ticket{goroutine: g, seq: atomic.AddInt64(&seq, 1)}
				if _, err := s.OfferTimeout(ctx, t, time.Second); err != nil {
					return
				}
			}
		}(g)
	}

	start := time.Now()
	var prev int64
	for i := 0; i < rounds; i++ {
		t, err := s.Pop(ctx)
		if err != nil {
			cancel()
			wg.Wait()
			return res, err
		}
		if t.seq < prev {
			res.Inversions++
		}
		prev = t.seq
		res.PerGoroutine[t.goroutine]++
		res.Served++
	}
	res.Elapsed = time.Since(start)

	cancel()
	wg.Wait()

	if res.Served != rounds {
		return res, errors.New("fairness: consumer stopped early")
	}
	return res, nil
}
