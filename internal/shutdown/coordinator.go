// Package shutdown defers process exit until in-flight commits finish.
package shutdown

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"
)

// DefaultGrace is how long Drain waits for in-flight commits.
const DefaultGrace = 10 * time.Second

var (
	// ErrShuttingDown is returned by Acquire once quit was requested.
	ErrShuttingDown = errors.New("shutdown in progress")
	// ErrGraceExceeded is returned by Drain when commits are still in flight after the grace window.
	ErrGraceExceeded = errors.New("shutdown grace window exceeded")
)

// Coordinator is a counting barrier around commit sequences.
type Coordinator struct {
	mu       sync.Mutex
	inFlight int
	quit     bool
	quitCh   chan struct{}
	drained  chan struct{}

	clock  clock.Clock
	grace  time.Duration
	logger *zap.Logger
}

// NewCoordinator builds a coordinator. A non-positive grace uses DefaultGrace.
func NewCoordinator(clk clock.Clock, grace time.Duration, logger *zap.Logger) *Coordinator {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Coordinator{
		quitCh:  make(chan struct{}),
		drained: make(chan struct{}),
		clock:   clk,
		grace:   grace,
		logger:  logger,
	}
}

// Acquire enters a critical section. It fails once quit was requested.
func (c *Coordinator) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quit {
		return ErrShuttingDown
	}
	c.inFlight++
	return nil
}

// Release leaves a critical section entered with Acquire.
func (c *Coordinator) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight == 0 {
		panic("shutdown: Release without Acquire")
	}
	c.inFlight--
	c.signalIfDrainedLocked()
}

// RequestQuit stops new critical sections from starting. It is idempotent.
func (c *Coordinator) RequestQuit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quit {
		return
	}
	c.quit = true
	close(c.quitCh)
	c.signalIfDrainedLocked()
}

// Quitting is closed once quit was requested.
func (c *Coordinator) Quitting() <-chan struct{} {
	return c.quitCh
}

// InFlight returns the number of open critical sections.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Drain requests quit and waits until every critical section has been
// released, or until the grace window elapses.
func (c *Coordinator) Drain() error {
	c.RequestQuit()

	c.mu.Lock()
	pending := c.inFlight
	c.mu.Unlock()
	if pending == 0 {
		return nil
	}

	c.logger.Info("waiting for in-flight commits",
		zap.Int("in_flight", pending),
		zap.Duration("grace", c.grace),
	)
	select {
	case <-c.drained:
		return nil
	case <-c.clock.TickAfter(c.grace):
		return fmt.Errorf("%w: %d commit(s) still in flight", ErrGraceExceeded, c.InFlight())
	}
}

func (c *Coordinator) signalIfDrainedLocked() {
	if !c.quit || c.inFlight != 0 {
		return
	}
	select {
	case <-c.drained:
	default:
		close(c.drained)
	}
}
