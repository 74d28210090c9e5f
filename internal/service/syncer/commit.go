package syncer

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/incomed/internal/model"
	"github.com/goodnatureofminers/incomed/internal/price"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// commit runs the commit sequence of tx while holding the shutdown lock. Sink
// writes and the flags that record them run detached from ctx cancellation.
func (e *Engine) commit(ctx context.Context, tx model.MatchedTransaction) error {
	if err := e.coord.Acquire(); err != nil {
		return err
	}
	defer e.coord.Release()

	logger := e.logger.With(
		zap.String("txid", tx.TxID),
		zap.String("address", tx.Address),
		zap.String("currency", tx.Currency),
	)

	record, err := e.ledger.Insert(ctx, tx)
	if err != nil {
		return fmt.Errorf("store %s: %w", tx.Key(), err)
	}
	if record.Complete(e.requireTax()) {
		logger.Debug("already committed, skipping")
		return nil
	}

	if !record.Priced {
		p, err := e.resolver.Resolve(ctx, record.Timestamp, record.Currency)
		if err != nil {
			if price.IsInvalidInput(err) {
				return &FatalError{Stage: StagePrice, TxID: tx.TxID, Address: tx.Address, Err: err}
			}
			return fmt.Errorf("price %s: %w", tx.Key(), err)
		}
		if err := e.ledger.SetPrice(ctx, record.Key(), p); err != nil {
			return fmt.Errorf("store price %s: %w", tx.Key(), err)
		}
		record.Price = decimal.NewNullDecimal(p)
		record.Priced = true
		logger.Info("priced", zap.Stringer("price", p), zap.Stringer("total", record.Total()))
	}

	ctx = context.WithoutCancel(ctx)
	if e.tax != nil && !record.TaxCommitted {
		if err := e.commitTo(ctx, e.tax, model.SinkTax, record); err != nil {
			return err
		}
		record.TaxCommitted = true
	}
	if !record.CSVWritten {
		if err := e.commitTo(ctx, e.csv, model.SinkCSV, record); err != nil {
			return err
		}
		record.CSVWritten = true
	}
	logger.Info("committed", zap.Uint64("height", record.Height))
	return nil
}

func (e *Engine) commitTo(ctx context.Context, sink Sink, name model.Sink, record model.CommitRecord) error {
	err := sink.Commit(ctx, record)
	e.metrics.ObserveCommit(string(name), err)
	if err != nil {
		return &FatalError{Stage: StageSink, TxID: record.TxID, Address: record.Address, Sink: name, Err: err}
	}
	if err := e.ledger.MarkCommitted(ctx, record.Key(), name); err != nil {
		return &FatalError{Stage: StageRecord, TxID: record.TxID, Address: record.Address, Sink: name, Err: err}
	}
	return nil
}
