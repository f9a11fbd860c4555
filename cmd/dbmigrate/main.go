package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ladzaretti/dbmigrate/cli"
	"github.com/ladzaretti/dbmigrate/clierror"
	"github.com/ladzaretti/dbmigrate/genericclioptions"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	iostreams := genericclioptions.NewDefaultIOStreams()
	cmd := cli.NewDefaultMigrateCommand(iostreams, os.Args[1:])

	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(clierror.DefaultErrorExitCode) //nolint:gocritic
	}
}
