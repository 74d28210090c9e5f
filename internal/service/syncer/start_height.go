package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// startHeight returns the first height to scan: one past saved progress, or
// the highest fully committed ledger height when no progress was saved,
// raised to the configured start height.
func (e *Engine) startHeight(ctx context.Context) (uint64, error) {
	saved, found, err := e.progress.Load()
	if err != nil {
		return 0, &FatalError{Stage: StageProgress, Err: fmt.Errorf("load progress: %w", err)}
	}

	var next uint64
	if found {
		next = saved + 1
		e.metrics.SetProgress(saved)
	} else {
		committed, ok, err := e.ledger.MaxCommittedHeight(ctx, e.requireTax())
		if err != nil {
			return 0, fmt.Errorf("max committed height: %w", err)
		}
		if ok {
			e.logger.Warn("no saved progress, resuming from ledger", zap.Uint64("height", committed))
			next = committed
		}
	}

	if e.cfg.StartHeight > next {
		next = e.cfg.StartHeight
	}
	e.logger.Info("starting sync", zap.Uint64("height", next), zap.Bool("saved_progress", found))
	return next, nil
}
