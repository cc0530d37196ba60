package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rivalapex/vra/internal/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	outcome := commands.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(outcome.ExitCode())
}
