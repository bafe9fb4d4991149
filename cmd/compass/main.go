// cmd/compass/main.go
//
// This is the entry point for the compass CLI.
// Running `compass` with no arguments launches the wizard in the current
// directory; subcommands give scripted access to the same assessment.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kingrea/compass/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// cobra already printed the error
	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
