// Package migrations applies the embedded SQL files that create the purchase
// and delivery tables.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

//go:embed sql/*.sql
var sqlFS embed.FS

const versionsTable = "_payhook_versions"

// AppliedMigration is a row of the versions table.
type AppliedMigration struct {
	ID        string
	AppliedAt time.Time
}

type migration struct {
	id         string
	statements []string
}

// Run applies every pending migration in filename order, each in its own
// transaction.
func Run(ctx context.Context, db *sql.DB) error {
	pending, err := pendingMigrations(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.id, err)
		}
		log.Info().Str("migration", m.id).Msg("Applied migration")
	}

	return nil
}

// Pending returns the IDs of embedded migrations not yet applied.
func Pending(ctx context.Context, db *sql.DB) ([]string, error) {
	pending, err := pendingMigrations(ctx, db)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(pending))
	for i, m := range pending {
		ids[i] = m.id
	}
	return ids, nil
}

// GetApplied returns applied migrations ordered by ID.
func GetApplied(ctx context.Context, db *sql.DB) ([]AppliedMigration, error) {
	if err := ensureVersionsTable(ctx, db); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, applied_at FROM `+versionsTable+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			m  AppliedMigration
			at string
		)
		if err := rows.Scan(&m.ID, &at); err != nil {
			return nil, fmt.Errorf("scanning migration: %w", err)
		}
		m.AppliedAt, _ = time.Parse(time.RFC3339, at)
		applied = append(applied, m)
	}

	return applied, rows.Err()
}

func pendingMigrations(ctx context.Context, db *sql.DB) ([]migration, error) {
	applied, err := GetApplied(ctx, db)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(applied))
	for _, m := range applied {
		done[m.ID] = true
	}

	all, err := load()
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(all, func(m migration) bool { return done[m.id] }), nil
}

func ensureVersionsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+versionsTable+` (
		id         TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating versions table: %w", err)
	}
	return nil
}

func load() ([]migration, error) {
	names, err := fs.Glob(sqlFS, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}
	slices.Sort(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(sqlFS, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		out = append(out, migration{
			id:         strings.TrimSuffix(path.Base(name), ".sql"),
			statements: parseStatements(string(content)),
		})
	}

	return out, nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+versionsTable+` (id, applied_at) VALUES (?, ?)`,
		m.id, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	return tx.Commit()
}

// parseStatements drops whole-line "--" comments and splits on semicolons
// outside single-quoted literals.
func parseStatements(content string) []string {
	var (
		stmts   []string
		current strings.Builder
		quoted  bool
	)

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			stmts = append(stmts, s)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}

		for _, ch := range line {
			switch {
			case ch == '\'':
				quoted = !quoted
			case ch == ';' && !quoted:
				flush()
				continue
			}
			current.WriteRune(ch)
		}
		current.WriteByte('\n')
	}
	flush()

	return stmts
}
