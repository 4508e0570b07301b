package ddpt

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// InterruptibleContext returns a context canceled on the first SIGINT or
// SIGTERM the process receives. The scheduler checks it before opening
// each batch (scheduler.Run) and before emitting each node
// (processBatch); a Compile, Invoke or Deliver already under way is
// never interrupted — spec.md §5 "Cancellation: None" — since that would
// leave arrays half-materialized. A second signal is let through to the runtime's
// default handling (immediate process termination) so a hung teardown
// can still be killed outright.
func InterruptibleContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signals
		signal.Stop(signals)
		cancel()
	}()

	return ctx, cancel
}
