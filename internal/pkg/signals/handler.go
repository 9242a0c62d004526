// Package signals cancels command contexts on interrupt.
package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/endorses/upstreamctl/internal/pkg/logger"
)

// Context returns a copy of parent that is cancelled on SIGINT or SIGTERM.
// The returned stop function releases the signal handler and must be called
// once the command finished.
func Context(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-sigCh:
			logger.Warn("Received signal, cancelling operation", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		cancel()
		<-done
		signal.Stop(sigCh)
	}
}
