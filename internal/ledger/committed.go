package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goodnatureofminers/incomed/internal/model"
)

const completeCondition = `priced AND csv_written AND (tax_committed OR ?)`

// MaxCommittedHeight returns the highest height with a complete record.
func (s *Store) MaxCommittedHeight(ctx context.Context, requireTax bool) (height uint64, found bool, err error) {
	started := time.Now()
	defer func() {
		s.observe("max_committed_height", err, started)
	}()

	query := `SELECT MAX(height) FROM income_transactions WHERE ` + completeCondition

	var maxHeight sql.NullInt64
	if err = s.db.QueryRowContext(ctx, s.rebind(query), !requireTax).Scan(&maxHeight); err != nil {
		return 0, false, fmt.Errorf("query max committed height: %w", err)
	}
	if !maxHeight.Valid {
		return 0, false, nil
	}
	return uint64(maxHeight.Int64), true, nil
}

// Pending returns every record not yet accepted by all enabled sinks, oldest first.
func (s *Store) Pending(ctx context.Context, requireTax bool) (records []model.CommitRecord, err error) {
	started := time.Now()
	defer func() {
		s.observe("pending", err, started)
	}()

	query := `SELECT ` + recordColumns + ` FROM income_transactions WHERE NOT (` + completeCondition + `) ORDER BY height, txhash, address, currency`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), !requireTax)
	if err != nil {
		return nil, fmt.Errorf("query pending records: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		record, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan pending record: %w", scanErr)
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending records: %w", err)
	}
	return records, nil
}
