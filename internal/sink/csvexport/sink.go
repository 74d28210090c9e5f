// Package csvexport appends income records to one CSV file per tracked address.
package csvexport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goodnatureofminers/incomed/internal/model"
	"go.uber.org/zap"
)

const (
	dateLayout = time.RFC3339
	filePerm   = 0o644
	dirPerm    = 0o755
)

var header = []string{"date", "height", "address", "txhash", "volume", "price", "total", "currency"}

// Sink writes records below dir, one file per address rule name.
type Sink struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSink builds a Sink rooted at dir.
func NewSink(dir string, logger *zap.Logger) *Sink {
	return &Sink{dir: dir, logger: logger}
}

// Path returns the file records named name are appended to.
func (s *Sink) Path(name string) string {
	return filepath.Join(s.dir, name+".csv")
}

// Prepare creates the file of every rule so operators see them before the first income.
func (s *Sink) Prepare(rules []model.AddressRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rule := range rules {
		if err := s.ensureFile(s.Path(rule.Name)); err != nil {
			return err
		}
	}
	return nil
}

// Commit appends record to its file. The line is synced before Commit returns.
func (s *Sink) Commit(_ context.Context, record model.CommitRecord) error {
	if !record.Price.Valid {
		return fmt.Errorf("commit %s: record has no price", record.Key())
	}
	if record.Name == "" {
		return fmt.Errorf("commit %s: record has no name", record.Key())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(record.Name)
	if err := s.ensureFile(path); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("open csv %s: %w", path, err)
	}
	if err := writeRow(f, row(record)); err != nil {
		_ = f.Close()
		return fmt.Errorf("append csv %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close csv %s: %w", path, err)
	}

	s.logger.Info("appended csv line",
		zap.String("file", path),
		zap.String("txid", record.TxID),
		zap.String("address", record.Address),
	)
	return nil
}

func (s *Sink) ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("create csv dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create csv %s: %w", path, err)
	}
	if err := writeRow(f, header); err != nil {
		_ = f.Close()
		return fmt.Errorf("write csv header %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close csv %s: %w", path, err)
	}
	s.logger.Info("created csv file", zap.String("file", path))
	return nil
}

func writeRow(f *os.File, fields []string) error {
	w := csv.NewWriter(f)
	if err := w.Write(fields); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func row(record model.CommitRecord) []string {
	return []string{
		record.Timestamp.UTC().Format(dateLayout),
		strconv.FormatUint(record.Height, 10),
		record.Address,
		record.TxID,
		record.Received.StringFixed(model.AmountPlaces),
		record.Price.Decimal.String(),
		record.Total().StringFixed(2),
		record.Currency,
	}
}
