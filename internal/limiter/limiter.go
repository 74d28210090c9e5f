// Package limiter spaces out calls made to a single external dependency.
package limiter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/ratelimit"
)

type (
	// Metrics records how long callers waited for their turn.
	Metrics interface {
		ObserveWait(err error, started time.Time)
	}
)

// Limiter admits callers one at a time, in arrival order, at least minTime apart.
type Limiter struct {
	name    string
	minTime time.Duration
	gate    chan struct{}
	rl      ratelimit.Limiter
	metrics Metrics
}

// New builds a limiter. A non-positive minTime disables spacing but keeps FIFO admission.
func New(name string, minTime time.Duration, metrics Metrics) *Limiter {
	rl := ratelimit.NewUnlimited()
	if minTime > 0 {
		rl = ratelimit.New(1, ratelimit.Per(minTime), ratelimit.WithoutSlack)
	}
	return &Limiter{
		name:    name,
		minTime: minTime,
		gate:    make(chan struct{}, 1),
		rl:      rl,
		metrics: metrics,
	}
}

// Wait blocks until the caller may start its call.
func (l *Limiter) Wait(ctx context.Context) (err error) {
	started := time.Now()
	defer func() {
		if l.metrics != nil {
			l.metrics.ObserveWait(err, started)
		}
	}()

	select {
	case l.gate <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("wait for %s slot: %w", l.name, ctx.Err())
	}
	defer func() { <-l.gate }()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("wait for %s slot: %w", l.name, err)
	}
	l.rl.Take()
	return nil
}
