// Package clock provides helpers for time-related operations.
package clock

import (
	"context"
	"time"

	lndclock "github.com/lightningnetwork/lnd/clock"
)

// SleepWithContext waits for the duration or returns early if the context is canceled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	return Sleeper(lndclock.NewDefaultClock())(ctx, d)
}

// Sleeper returns a context-aware sleep driven by clk.
func Sleeper(clk lndclock.Clock) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.TickAfter(d):
			return nil
		}
	}
}
