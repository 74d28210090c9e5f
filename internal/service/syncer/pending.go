package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// resumePending finishes records a previous run left incomplete.
func (e *Engine) resumePending(ctx context.Context) error {
	pending, err := e.ledger.Pending(ctx, e.requireTax())
	if err != nil {
		return fmt.Errorf("load pending records: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	e.logger.Warn("completing records left pending by a previous run", zap.Int("records", len(pending)))
	for _, record := range pending {
		e.logger.Info("pending record",
			zap.String("txid", record.TxID),
			zap.String("address", record.Address),
			zap.Uint64("height", record.Height),
			zap.Bool("priced", record.Priced),
			zap.Bool("tax_committed", record.TaxCommitted),
			zap.Bool("csv_written", record.CSVWritten),
		)
		if err := e.commit(ctx, record.MatchedTransaction); err != nil {
			return err
		}
	}
	return nil
}
