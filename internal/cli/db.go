package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/learnhub/payhook/internal/config"
	"github.com/learnhub/payhook/internal/database"
	"github.com/learnhub/payhook/internal/database/migrations"
)

const statusTableWidth = 50

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database utilities",
	Long: `Database utilities for payhook.

Examples:
  payhook db status     Show applied and pending migrations
  payhook db migrate    Apply pending migrations`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return migrateDatabase(cmd.Context(), cmd.OutOrStdout(), &cfg.Database)
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return printMigrationStatus(cmd.Context(), cmd.OutOrStdout(), &cfg.Database)
	},
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)

	rootCmd.AddCommand(dbCmd)
}

func migrateDatabase(ctx context.Context, out io.Writer, cfg *config.DatabaseConfig) error {
	db, err := database.OpenUnmigrated(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	pending, err := migrations.Pending(ctx, db.DB)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "✓ Database is up to date")
		return nil
	}

	if err := migrations.Run(ctx, db.DB); err != nil {
		return err
	}

	fmt.Fprintf(out, "✓ Applied %d migrations\n", len(pending))
	return nil
}

func printMigrationStatus(ctx context.Context, out io.Writer, cfg *config.DatabaseConfig) error {
	db, err := database.OpenUnmigrated(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	applied, err := migrations.GetApplied(ctx, db.DB)
	if err != nil {
		return err
	}
	pending, err := migrations.Pending(ctx, db.DB)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%-30s %-20s\n", "MIGRATION", "APPLIED")
	fmt.Fprintln(out, strings.Repeat("-", statusTableWidth))
	for _, m := range applied {
		fmt.Fprintf(out, "%-30s %-20s\n", m.ID, m.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, id := range pending {
		fmt.Fprintf(out, "%-30s %-20s\n", id, "pending")
	}

	return nil
}
