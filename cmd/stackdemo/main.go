package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcodamonte/blockingstack/cmd/stackdemo/command"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl := command.NewCommandline(os.Stdout, os.Stderr)
	if err := cl.NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
