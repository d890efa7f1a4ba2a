// SPDX-License-Identifier: MPL-2.0

// Package signals turns a process interrupt into a bounded shutdown callback.
package signals

import (
	"context"
	"os"
	"os/signal"
	"time"
)

const shutdownTimeout = 10 * time.Second

// HandleInterrupt blocks until the process receives an interrupt, then runs
// onInterrupt with a context that expires after shutdownTimeout. Cleanup that
// overruns the deadline is abandoned rather than holding the process open.
func HandleInterrupt(onInterrupt func(context.Context)) {
	waitCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-waitCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	onInterrupt(ctx)
}
