package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/incomed/internal/model"
	"github.com/shopspring/decimal"
)

// SetPrice records the price of key. A price already set is kept.
func (s *Store) SetPrice(ctx context.Context, key model.RecordKey, price decimal.Decimal) (err error) {
	started := time.Now()
	defer func() {
		s.observe("set_price", err, started)
	}()

	const query = `
UPDATE income_transactions
SET price = ?, priced = TRUE
WHERE txhash = ? AND address = ? AND currency = ? AND priced = FALSE`

	res, err := s.db.ExecContext(ctx, s.rebind(query), price.String(), key.TxID, key.Address, key.Currency)
	if err != nil {
		return fmt.Errorf("set price %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set price %s: rows affected: %w", key, err)
	}
	if n == 0 {
		// Either already priced or missing.
		if _, err = s.get(ctx, key); err != nil {
			return fmt.Errorf("set price: %w", err)
		}
	}
	return nil
}
