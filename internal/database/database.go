// Package database wraps the SQLite connection shared by the purchase store
// and the delivery audit log.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/learnhub/payhook/internal/config"
	"github.com/learnhub/payhook/internal/database/migrations"
)

// DB is a pooled handle safe for concurrent use by many requests.
type DB struct {
	*sql.DB
	wal       bool
	closeOnce sync.Once
	closeErr  error
}

// Tx is a transaction opened by DB.Transaction.
type Tx struct {
	*sql.Tx
}

// Open opens the database and applies pending migrations.
func Open(cfg *config.DatabaseConfig) (*DB, error) {
	db, err := OpenUnmigrated(cfg)
	if err != nil {
		return nil, err
	}

	if err := migrations.Run(context.Background(), db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

// OpenUnmigrated opens the database without touching its schema.
func OpenUnmigrated(cfg *config.DatabaseConfig) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// Pragmas are applied lazily per connection; ping to surface a bad DSN now.
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &DB{DB: sqlDB, wal: cfg.WALMode}, nil
}

// dsn carries the pragmas in the connection string so that every pooled
// connection gets them, not only the first one.
func dsn(cfg *config.DatabaseConfig) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	if cfg.WALMode {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
	}
	if cfg.ForeignKeys {
		q.Add("_pragma", "foreign_keys(1)")
	}
	if cfg.CacheSize != 0 {
		q.Add("_pragma", fmt.Sprintf("cache_size(%d)", cfg.CacheSize))
	}
	q.Add("_pragma", "temp_store(MEMORY)")

	return "file:" + cfg.Path + "?" + q.Encode()
}

// Close checkpoints the WAL and closes the pool. Later calls are no-ops.
func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		if db.wal {
			_, _ = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		}
		db.closeErr = db.DB.Close()
	})
	return db.closeErr
}

func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

// Transaction runs fn inside a transaction. The transaction commits only
// when fn returns nil; a panic rolls back and is re-raised.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && err != nil {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()

	if err := fn(&Tx{Tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	return nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Now returns the current UTC time in the storage format.
func Now() string {
	return FormatTime(time.Now())
}

// FormatTime renders t in the storage format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime parses a timestamp written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
