package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/incomed/internal/model"
)

// Insert stores tx unless its key already exists and returns the stored record.
func (s *Store) Insert(ctx context.Context, tx model.MatchedTransaction) (record model.CommitRecord, err error) {
	started := time.Now()
	defer func() {
		s.observe("insert", err, started)
	}()

	const query = `
INSERT INTO income_transactions (txhash, address, currency, name, height, block_time, received)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (txhash, address, currency) DO NOTHING`

	if _, err = s.db.ExecContext(ctx, s.rebind(query),
		tx.TxID, tx.Address, tx.Currency, tx.Name,
		int64(tx.Height), tx.Timestamp.Unix(), tx.Received.StringFixed(model.AmountPlaces),
	); err != nil {
		return model.CommitRecord{}, fmt.Errorf("insert %s: %w", tx.Key(), err)
	}

	record, err = s.get(ctx, tx.Key())
	if err != nil {
		return model.CommitRecord{}, err
	}
	return record, nil
}
