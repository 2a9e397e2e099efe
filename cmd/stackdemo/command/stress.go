package command

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v2"
	"github.com/spf13/cobra"

	"github.com/marcodamonte/blockingstack/internal/stress"
)

func (cl *Commandline) stressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run concurrent producers and consumers and verify exactly-once delivery",
		Example: `  stackdemo stress --producers 8 --consumers 4 --per-producer 10000 --capacity 16
  stackdemo stress --fair --offer-timeout 5ms --progress`,
		Args: cobra.NoArgs,
		RunE: cl.stress,
	}

	cmd.Flags().Int("producers", 8, "number of producer goroutines")
	cmd.Flags().Int("consumers", 8, "number of consumer goroutines")
	cmd.Flags().Int("per-producer", 1000, "values inserted by each producer")
	cmd.Flags().Int("capacity", 16, "stack capacity")
	cmd.Flags().Bool("fair", false, "use a fair lock")
	cmd.Flags().Bool("both", false, "run once unfair and once fair and compare")
	cmd.Flags().Duration("offer-timeout", 0, "insert with OfferTimeout using this timeout instead of retrying Push")
	cmd.Flags().Bool("progress", false, "show a progress bar")

	return cmd
}

func (cl *Commandline) stress(cmd *cobra.Command, args []string) error {
	modes := []bool{cl.v.GetBool("fair")}
	if cl.v.GetBool("both") {
		modes = []bool{false, true}
	}

	var reports []stress.Report
	for _, fair := range modes {
		cfg := stress.Config{
			Producers:       cl.v.GetInt("producers"),
			Consumers:       cl.v.GetInt("consumers"),
			PerProducer:     cl.v.GetInt("per-producer"),
			Capacity:        cl.v.GetInt("capacity"),
			Fair:            fair,
			UseOfferTimeout: cl.v.GetDuration("offer-timeout") > 0,
			OfferTimeout:    cl.v.GetDuration("offer-timeout"),
			Observer:        cl.observer(fmt.Sprintf("stress-%s", fairness(fair))),
		}

		if cl.v.GetBool("progress") {
			var mu sync.Mutex
			bar := progressbar.NewOptions(cfg.Producers*cfg.PerProducer,
				progressbar.OptionSetWriter(cl.errOut),
				progressbar.OptionSetDescription(fairness(fair)),
			)
			cfg.Progress = func() {
				mu.Lock()
				bar.Add(1)
				mu.Unlock()
			}
		}

		rep, err := stress.Run(cmd.Context(), cfg, cl.log)
		if cl.v.GetBool("progress") {
			fmt.Fprintln(cl.errOut)
		}
		reports = append(reports, rep)
		if err != nil {
			cl.renderStress(reports)
			return err
		}
	}

	cl.renderStress(reports)

	for _, rep := range reports {
		if !rep.Clean() {
			return fmt.Errorf("run %s lost or duplicated values", rep.ID)
		}
	}
	return nil
}

func (cl *Commandline) renderStress(reports []stress.Report) {
	table := tablewriter.NewWriter(cl.out)
	table.SetHeader([]string{"run", "lock", "consumed", "retries", "max depth", "duplicates", "missing", "elapsed", "ops/s", "result"})
	table.SetAutoFormatHeaders(false)

	for _, r := range reports {
		result := color.GreenString("ok")
		if !r.Clean() {
			result = color.RedString("FAIL")
		}
		table.Append([]string{
			r.ID.String(),
			fairness(r.Fair),
			strconv.FormatInt(r.Consumed, 10),
			strconv.FormatInt(r.Retries, 10),
			fmt.Sprintf("%d/%d", r.MaxDepth, r.Capacity),
			strconv.Itoa(r.Duplicates),
			strconv.Itoa(r.Missing),
			r.Elapsed.Round(time.Microsecond).String(),
			strconv.FormatFloat(r.Throughput(), 'f', 0, 64),
			result,
		})
	}

	table.Render()
}

func fairness(fair bool) string {
	if fair {
		return "fair"
	}
	return "unfair"
}
