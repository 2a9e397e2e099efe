package command

import (
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the stackdemo command tree.
func (cl *Commandline) NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "stackdemo - exercise a bounded blocking stack",
		Long: `stackdemo - exercise a bounded blocking stack.

Every subcommand builds its own stack and reports what happened.

Setting the logging level and other options through environment variables:
- Logging level: LOG_LEVEL={debug|info|warn|error} or --log-level
- The environment variable names for other settings are derived by prefixing flag names with "STACKDEMO_"
  e.g. STACKDEMO_CAPACITY=32 ./stackdemo stress
  Note: flags take precedence over environment variables.
`,
		SilenceUsage:       true,
		DisableAutoGenTag:  true,
		PersistentPreRunE:  cl.setup,
		PersistentPostRunE: cl.teardown,
	}

	cmd.SetOut(cl.out)
	cmd.SetErr(cl.errOut)

	cmd.PersistentFlags().StringVar(&cl.cfgFn, "config", "", "config file (default path are configs or $HOME. Default filename is stackdemo.yaml)")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error (default from LOG_LEVEL)")
	cmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address while the command runs, e.g. localhost:9497")
	cmd.PersistentFlags().Bool("pprof", false, "add pprof profiling endpoints on the metrics server")

	cmd.AddCommand(
		cl.stressCmd(),
		cl.timeoutCmd(),
		cl.cancelCmd(),
		cl.fairnessCmd(),
		cl.poolCmd(),
	)

	return cmd
}
