package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/learnhub/payhook/internal/config"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := &config.DatabaseConfig{
		Path:         dbPath,
		WALMode:      true,
		ForeignKeys:  true,
		CacheSize:    -2000,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestOpenAndClose(t *testing.T) {
	db := testDB(t)

	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	// Second close is a no-op.
	if err := db.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "payhook.db")

	db, err := Open(&config.DatabaseConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}

func TestOpen_RunsMigrations(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, table := range []string{"purchases", "enrollments", "webhook_deliveries"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s to exist: %v", table, err)
		}
	}
}

func TestOpenUnmigrated(t *testing.T) {
	db, err := OpenUnmigrated(&config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "raw.db")})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer db.Close()

	var count int
	err = db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'purchases'",
	).Scan(&count)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 0 {
		t.Error("expected no tables before migrating")
	}
}

func TestTransaction(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)")
	if err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	err = db.Transaction(ctx, func(tx *Tx) error {
		_, err := tx.Exec("INSERT INTO test (id, name) VALUES (1, 'alice')")
		if err != nil {
			return err
		}
		_, err = tx.Exec("INSERT INTO test (id, name) VALUES (2, 'bob')")
		return err
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM test").Scan(&count)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows, got %d", count)
	}
}

func TestTransaction_Rollback(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)")
	if err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	errBoom := errors.New("boom")
	err = db.Transaction(ctx, func(tx *Tx) error {
		if _, err := tx.Exec("INSERT INTO test (id, name) VALUES (1, 'alice')"); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected original error, got %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM test").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected rollback to leave 0 rows, got %d", count)
	}
}

func TestClassifyError_Unique(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE uniq (code TEXT UNIQUE)")
	if err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO uniq (code) VALUES ('a')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	_, err = db.ExecContext(ctx, "INSERT INTO uniq (code) VALUES ('a')")
	if err == nil {
		t.Fatal("expected unique violation")
	}

	classified := ClassifyError(err)
	if !IsUniqueError(classified) {
		t.Fatalf("expected unique constraint error, got %v", classified)
	}

	ce := AsConstraintError(classified)
	if ce.Table != "uniq" || ce.Column != "code" {
		t.Errorf("expected uniq.code, got %s.%s", ce.Table, ce.Column)
	}
	if !errors.Is(classified, err) {
		t.Error("classified error should wrap the driver error")
	}
}

func TestClassifyError_Passthrough(t *testing.T) {
	if ClassifyError(nil) != nil {
		t.Error("nil should stay nil")
	}

	plain := errors.New("disk I/O error")
	if got := ClassifyError(plain); got != plain {
		t.Errorf("expected unchanged error, got %v", got)
	}
}

func TestClassifyError_Composite(t *testing.T) {
	err := errors.New("constraint failed: UNIQUE constraint failed: enrollments.user_id, enrollments.course_id (2067)")

	ce := AsConstraintError(ClassifyError(err))
	if ce == nil {
		t.Fatal("expected constraint error")
	}
	if ce.Kind != ConstraintUnique || ce.Table != "enrollments" || ce.Column != "user_id" {
		t.Errorf("unexpected classification %+v", ce)
	}
}

func TestFormatParseTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 0, 123, time.UTC)

	parsed, err := ParseTime(FormatTime(now))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("expected %v, got %v", now, parsed)
	}

	if _, err := ParseTime("not-a-time"); err == nil {
		t.Error("expected error for invalid timestamp")
	}
}

func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "pragma.db"),
		WALMode:      true,
		ForeignKeys:  true,
		BusyTimeout:  time.Second,
		MaxOpenConns: 4,
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	conns := make([]*sql.Conn, 0, 3)
	for range 3 {
		conn, err := db.Conn(ctx)
		if err != nil {
			t.Fatalf("conn failed: %v", err)
		}
		conns = append(conns, conn)
	}

	for i, conn := range conns {
		var fk int
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("pragma query failed: %v", err)
		}
		if fk != 1 {
			t.Errorf("connection %d: expected foreign_keys on, got %d", i, fk)
		}
		conn.Close()
	}
}
