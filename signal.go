package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. Canceling stops an in-flight poll between
// attempts so the scenario state is still saved; the second signal is for
// a request that hangs.
func shutdownContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "received %s, stopping after the current request\n", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "received second %s, exiting\n", sig)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}
