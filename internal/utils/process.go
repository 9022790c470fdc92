package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WithInterruptOrKill returns a context that is cancelled on the first Ctrl+C
// or SIGTERM. Calling stop restores default signal handling, so a second
// signal kills the process.
func WithInterruptOrKill(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
