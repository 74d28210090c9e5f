package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/incomed/internal/model"
	"github.com/shopspring/decimal"
)

const recordColumns = `txhash, address, currency, name, height, block_time, received, price, priced, tax_committed, csv_written`

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) get(ctx context.Context, key model.RecordKey) (model.CommitRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM income_transactions WHERE txhash = ? AND address = ? AND currency = ?`

	record, err := scanRecord(s.db.QueryRowContext(ctx, s.rebind(query), key.TxID, key.Address, key.Currency))
	if errors.Is(err, sql.ErrNoRows) {
		return model.CommitRecord{}, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return model.CommitRecord{}, fmt.Errorf("get %s: %w", key, err)
	}
	return record, nil
}

func scanRecord(row scanner) (model.CommitRecord, error) {
	var (
		record    model.CommitRecord
		height    int64
		blockTime int64
		received  string
		price     sql.NullString
	)
	if err := row.Scan(
		&record.TxID, &record.Address, &record.Currency, &record.Name,
		&height, &blockTime, &received, &price,
		&record.Priced, &record.TaxCommitted, &record.CSVWritten,
	); err != nil {
		return model.CommitRecord{}, err
	}

	amount, err := decimal.NewFromString(received)
	if err != nil {
		return model.CommitRecord{}, fmt.Errorf("parse received %q: %w", received, err)
	}
	record.Received = amount
	record.Height = uint64(height)
	record.Timestamp = time.Unix(blockTime, 0).UTC()

	if price.Valid {
		p, err := decimal.NewFromString(price.String)
		if err != nil {
			return model.CommitRecord{}, fmt.Errorf("parse price %q: %w", price.String, err)
		}
		record.Price = decimal.NewNullDecimal(p)
	}
	return record, nil
}
