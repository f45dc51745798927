// Package sys has process level helpers for the cellular commands.
package sys

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// CreateShutdownChannel returns a channel that receives SIGINT or SIGTERM.
func CreateShutdownChannel() chan os.Signal {
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	return done
}

// ShutdownContext returns a context cancelled on the first SIGINT or SIGTERM. A second signal is
// left to the default handler so an impatient user can still kill the process.
func ShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	done := CreateShutdownChannel()
	go func() {
		defer signal.Stop(done)
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
