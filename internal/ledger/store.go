// Package ledger persists commit records and their per-sink completion flags.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the sqlite driver
)

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// DefaultFileName is the sqlite database file created in the data directory.
const DefaultFileName = "ledger.db"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("ledger record not found")

// Config configures Open.
type Config struct {
	Driver Driver
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN            string
	SkipMigrations bool
}

// Store is the SQL backed ledger. It is used by a single writer.
type Store struct {
	db      *sql.DB
	driver  Driver
	metrics Metrics
	logger  *zap.Logger
}

// Open connects to the configured backend and applies pending migrations.
func Open(ctx context.Context, cfg Config, metrics Metrics, logger *zap.Logger) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s ledger: %w", cfg.Driver, err)
	}

	if cfg.SkipMigrations {
		logger.Info("skipping ledger migrations", zap.String("driver", string(cfg.Driver)))
	} else if err := Migrate(db, cfg.Driver); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewStore(db, cfg.Driver, metrics, logger), nil
}

// NewStore wraps an already migrated database.
func NewStore(db *sql.DB, driver Driver, metrics Metrics, logger *zap.Logger) *Store {
	return &Store{db: db, driver: driver, metrics: metrics, logger: logger}
}

func openDB(cfg Config) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("ledger dsn is required")
	}

	switch cfg.Driver {
	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		db, err := sql.Open("sqlite", sqliteDSN(cfg.DSN))
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		// One writer; sqlite serialises anyway.
		db.SetMaxOpenConns(1)
		return db, nil
	case DriverPostgres:
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", cfg.Driver)
	}
}

func sqliteDSN(path string) string {
	pragmas := []string{
		"journal_mode=WAL",
		"busy_timeout=5000",
		"synchronous=full",
		"fullfsync=true",
	}
	options := make(url.Values)
	for _, p := range pragmas {
		options.Add("_pragma", p)
	}
	return fmt.Sprintf("%s?%s&_txlock=immediate", path, options.Encode())
}

// Driver returns the backend in use.
func (s *Store) Driver() Driver {
	return s.driver
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) observe(operation string, err error, started time.Time) {
	if s.metrics != nil {
		s.metrics.Observe(operation, err, started)
	}
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
