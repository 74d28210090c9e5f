// Package syncer drives blocks from the chain through the commit pipeline.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/incomed/internal/clock"
	"github.com/goodnatureofminers/incomed/internal/model"
	"github.com/goodnatureofminers/incomed/internal/shutdown"
	"github.com/lightningnetwork/lnd/ticker"
	"go.uber.org/zap"
)

// Config tunes the engine.
type Config struct {
	// StartHeight is the lowest height scanned, even when saved progress is lower.
	StartHeight  uint64
	PollInterval time.Duration
	RetryDelay   time.Duration
}

// Dependencies are the collaborators of an Engine. Tax may be nil to disable tax recording.
type Dependencies struct {
	Source      BlockSource
	Resolver    PriceResolver
	Tax         Sink
	CSV         Sink
	Ledger      Ledger
	Progress    ProgressStore
	Coordinator Coordinator
	Metrics     Metrics
	// Ticker drives live tailing. Defaults to a ticker firing every PollInterval.
	Ticker ticker.Ticker
	// BlockSignal wakes live tailing as soon as the node announces a block. Optional.
	BlockSignal <-chan struct{}
}

// Engine scans blocks in height order and commits every matched transaction.
type Engine struct {
	cfg         Config
	rules       []model.AddressRule
	source      BlockSource
	resolver    PriceResolver
	tax         Sink
	csv         Sink
	ledger      Ledger
	progress    ProgressStore
	coord       Coordinator
	metrics     Metrics
	ticker      ticker.Ticker
	blockSignal <-chan struct{}
	sleep       func(context.Context, time.Duration) error
	logger      *zap.Logger

	state State
}

// NewEngine builds an Engine.
func NewEngine(cfg Config, rules []model.AddressRule, deps Dependencies, logger *zap.Logger) (*Engine, error) {
	switch {
	case len(rules) == 0:
		return nil, errors.New("at least one address rule is required")
	case deps.Source == nil:
		return nil, errors.New("block source is required")
	case deps.Resolver == nil:
		return nil, errors.New("price resolver is required")
	case deps.CSV == nil:
		return nil, errors.New("csv sink is required")
	case deps.Ledger == nil:
		return nil, errors.New("ledger is required")
	case deps.Progress == nil:
		return nil, errors.New("progress store is required")
	case deps.Coordinator == nil:
		return nil, errors.New("shutdown coordinator is required")
	case deps.Metrics == nil:
		return nil, errors.New("syncer metrics is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	t := deps.Ticker
	if t == nil {
		t = ticker.New(cfg.PollInterval)
	}

	return &Engine{
		cfg:         cfg,
		rules:       rules,
		source:      deps.Source,
		resolver:    deps.Resolver,
		tax:         deps.Tax,
		csv:         deps.CSV,
		ledger:      deps.Ledger,
		progress:    deps.Progress,
		coord:       deps.Coordinator,
		metrics:     deps.Metrics,
		ticker:      t,
		blockSignal: deps.BlockSignal,
		sleep:       clock.SleepWithContext,
		logger:      logger,
	}, nil
}

// Run syncs until ctx ends or quit is requested. It returns nil on a clean
// stop and a *FatalError when the ledger and a sink may disagree.
func (e *Engine) Run(ctx context.Context) error {
	defer e.ticker.Stop()
	defer e.setState(StateShutdown)

	for {
		err := e.run(ctx)

		var fatal *FatalError
		switch {
		case errors.As(err, &fatal):
			return err
		case ctx.Err() != nil, errors.Is(err, shutdown.ErrShuttingDown):
			e.logger.Info("sync stopped")
			return nil
		}

		e.logger.Warn("sync iteration failed, resuming from saved progress",
			zap.Error(err),
			zap.Duration("sleep", e.cfg.RetryDelay),
		)
		if err := e.sleep(ctx, e.cfg.RetryDelay); err != nil {
			e.logger.Info("sync stopped")
			return nil
		}
	}
}

func (e *Engine) run(ctx context.Context) error {
	if err := e.resumePending(ctx); err != nil {
		return err
	}
	next, err := e.startHeight(ctx)
	if err != nil {
		return err
	}

	e.setState(StateBackfilling)
	next, err = e.catchUp(ctx, next)
	if err != nil {
		return err
	}

	e.setState(StateLiveTailing)
	return e.tail(ctx, next)
}

// catchUp processes heights from next up to the chain tip, re-reading the tip
// until it stops moving. It returns the next unprocessed height.
func (e *Engine) catchUp(ctx context.Context, next uint64) (uint64, error) {
	for {
		tip, err := e.source.LatestHeight(ctx)
		if err != nil {
			return next, fmt.Errorf("latest height: %w", err)
		}
		e.metrics.SetChainTip(tip)
		if next > tip {
			return next, nil
		}

		e.logger.Info("scanning blocks",
			zap.String("state", string(e.state)),
			zap.Uint64("from", next),
			zap.Uint64("to", tip),
		)
		for ; next <= tip; next++ {
			if err := e.interrupted(ctx); err != nil {
				return next, err
			}
			if err := e.processHeight(ctx, next); err != nil {
				return next, err
			}
			if next%progressLogInterval == 0 {
				e.logger.Info("sync progress", zap.Uint64("height", next), zap.Uint64("tip", tip))
			}
		}
	}
}

func (e *Engine) tail(ctx context.Context, next uint64) error {
	e.ticker.Resume()
	defer e.ticker.Pause()

	var err error
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.coord.Quitting():
			return shutdown.ErrShuttingDown
		case <-e.ticker.Ticks():
		case <-e.blockSignal:
			e.logger.Debug("block announced")
		}

		if next, err = e.catchUp(ctx, next); err != nil {
			return err
		}
	}
}

func (e *Engine) interrupted(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.coord.Quitting():
		return shutdown.ErrShuttingDown
	default:
		return nil
	}
}

func (e *Engine) processHeight(ctx context.Context, height uint64) (err error) {
	started := time.Now()
	defer func() {
		e.metrics.ObserveBlock(string(e.state), err, started)
	}()

	block, err := e.source.FetchBlock(ctx, height)
	if err != nil {
		return fmt.Errorf("fetch block %d: %w", height, err)
	}

	matches := e.match(block)
	for _, tx := range matches {
		e.logger.Info("matched transaction",
			zap.String("txid", tx.TxID),
			zap.Uint64("height", tx.Height),
			zap.String("address", tx.Address),
			zap.String("name", tx.Name),
			zap.Stringer("received", tx.Received),
		)
		if err := e.commit(ctx, tx); err != nil {
			return fmt.Errorf("block %d: %w", height, err)
		}
	}

	if err := e.progress.Save(height); err != nil {
		return &FatalError{Stage: StageProgress, Err: fmt.Errorf("save height %d: %w", height, err)}
	}
	e.metrics.SetProgress(height)
	e.logger.Debug("advanced", zap.Uint64("height", height), zap.Int("matched", len(matches)))
	return nil
}

func (e *Engine) setState(state State) {
	if e.state == state {
		return
	}
	e.logger.Info("sync state changed", zap.String("from", string(e.state)), zap.String("to", string(state)))
	e.state = state
	e.metrics.SetState(string(state), allStates())
}

func (e *Engine) requireTax() bool {
	return e.tax != nil
}
