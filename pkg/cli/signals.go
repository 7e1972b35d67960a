package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext returns a context canceled on SIGINT or SIGTERM. The caller
// must invoke stop when the context is no longer needed; after stop (or
// after the first signal) a second signal terminates the process through
// the default handler, so a wedged shutdown can still be interrupted.
func SignalContext() (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
