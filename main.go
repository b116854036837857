package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"pic-analyzer/internal/cli"
	"pic-analyzer/internal/indexer"
	"pic-analyzer/internal/logging"
	"pic-analyzer/internal/startup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel)

	err := cli.Execute(ctx)
	switch {
	case err == nil:
	case errors.Is(err, indexer.ErrCancelled), errors.Is(err, context.Canceled):
		os.Exit(130)
	default:
		logging.Error("%v", err)
		os.Exit(1)
	}
}

// handleShutdown cancels the running command on the first SIGINT or SIGTERM.
// A second signal exits immediately.
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	startup.LogShutdownInitiated(sig.String())
	cancel()

	<-sigChan
	os.Exit(130)
}
