// Package command builds the stackdemo command tree.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/marcodamonte/blockingstack/internal/logger"
	"github.com/marcodamonte/blockingstack/internal/metrics"
	"github.com/marcodamonte/blockingstack/stack"
)

const appName = "stackdemo"

// Commandline carries what every subcommand shares: resolved configuration,
// output streams, the logger and the optional metrics endpoint.
type Commandline struct {
	cfgFn string
	v     *viper.Viper

	out    io.Writer
	errOut io.Writer

	log      logger.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collection
	server   *http.Server
}

// NewCommandline returns a Commandline writing reports to out and logs to
// errOut.
func NewCommandline(out, errOut io.Writer) *Commandline {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return &Commandline{v: v, out: out, errOut: errOut}
}

// initConfig reads the config file named by --config, or stackdemo.{yaml,toml}
// from ./configs or $HOME when none is given. A missing default file is not an
// error.
func (cl *Commandline) initConfig() error {
	if cl.cfgFn != "" {
		cl.v.SetConfigFile(cl.cfgFn)
	} else {
		cl.v.AddConfigPath("configs")
		if home, err := os.UserHomeDir(); err == nil {
			cl.v.AddConfigPath(home)
		}
		cl.v.SetConfigName(appName)
	}

	err := cl.v.ReadInConfig()
	if err == nil {
		fmt.Fprintln(cl.errOut, "Using config file:", cl.v.ConfigFileUsed())
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if cl.cfgFn == "" && errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("reading config: %w", err)
}

// setup runs before every subcommand.
func (cl *Commandline) setup(cmd *cobra.Command, args []string) error {
	if err := cl.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := cl.initConfig(); err != nil {
		return err
	}

	level := logger.LogLevelFromEnvironment()
	if s := cl.v.GetString("log-level"); s != "" {
		l, ok := logger.ParseLevel(s)
		if !ok {
			return fmt.Errorf("unknown log level %q", s)
		}
		level = l
	}
	cl.log = logger.NewSimpleLoggerWithLevel(appName, cl.errOut, level)

	cmd.Flags().Visit(func(f *pflag.Flag) {
		cl.log.Debugf("flag --%s=%s", f.Name, f.Value)
	})

	cl.registry = prometheus.NewRegistry()
	cl.registry.MustRegister(collectors.NewGoCollector())
	cl.metrics = metrics.New(cl.registry)

	if addr := cl.v.GetString("metrics-addr"); addr != "" {
		return cl.serveMetrics(addr)
	}
	return nil
}

// teardown runs after every subcommand.
func (cl *Commandline) teardown(cmd *cobra.Command, args []string) error {
	if cl.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cl.server.Shutdown(ctx); err != nil {
			cl.log.Warningf("metrics server shutdown: %v", err)
		}
		cl.server = nil
	}
	if cl.log != nil {
		return cl.log.Close()
	}
	return nil
}

func (cl *Commandline) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(cl.registry))

	// Never expose these on a public port.
	if cl.v.GetBool("pprof") {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	cl.server = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cl.log.Errorf("metrics server: %v", err)
		}
	}()

	cl.log.Infof("serving metrics on http://%s/metrics", ln.Addr())
	return nil
}

// observer returns the metrics observer for a stack labelled name.
func (cl *Commandline) observer(name string) stack.Observer {
	return cl.metrics.Stack(name)
}
