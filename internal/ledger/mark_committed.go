package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/incomed/internal/model"
)

// MarkCommitted sets the completion flag of sink on key.
func (s *Store) MarkCommitted(ctx context.Context, key model.RecordKey, sink model.Sink) (err error) {
	started := time.Now()
	defer func() {
		s.observe("mark_committed", err, started)
	}()

	var column string
	switch sink {
	case model.SinkTax:
		column = "tax_committed"
	case model.SinkCSV:
		column = "csv_written"
	default:
		return fmt.Errorf("mark %s: unknown sink %q", key, sink)
	}

	query := `UPDATE income_transactions SET ` + column + ` = TRUE WHERE txhash = ? AND address = ? AND currency = ?`
	res, err := s.db.ExecContext(ctx, s.rebind(query), key.TxID, key.Address, key.Currency)
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", key, sink, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark %s %s: rows affected: %w", key, sink, err)
	}
	if n == 0 {
		return fmt.Errorf("mark %s %s: %w", key, sink, ErrNotFound)
	}
	return nil
}
