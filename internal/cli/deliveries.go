package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/learnhub/payhook/internal/database"
	"github.com/learnhub/payhook/internal/deliveries"
)

const deliveriesTableWidth = 110

var (
	deliveriesTx    string
	deliveriesLimit int
)

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "Inspect the webhook delivery audit log",
	Long: `Inspect the webhook delivery audit log.

Examples:
  payhook deliveries list                  Most recent deliveries
  payhook deliveries list --tx ORDER-1     Every delivery for one transaction
  payhook deliveries prune                 Delete records past audit.retention`,
}

var deliveriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deliveries",
	RunE:  runDeliveriesList,
}

var deliveriesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete deliveries older than the retention window",
	RunE:  runDeliveriesPrune,
}

func init() {
	deliveriesListCmd.Flags().StringVar(&deliveriesTx, "tx", "", "Only show deliveries for this transaction id")
	deliveriesListCmd.Flags().IntVarP(&deliveriesLimit, "limit", "n", 50, "Maximum number of deliveries")

	deliveriesCmd.AddCommand(deliveriesListCmd)
	deliveriesCmd.AddCommand(deliveriesPruneCmd)

	rootCmd.AddCommand(deliveriesCmd)
}

func runDeliveriesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return listDeliveries(cmd.Context(), cmd.OutOrStdout(), deliveries.NewStore(db), deliveriesTx, deliveriesLimit)
}

func listDeliveries(ctx context.Context, out io.Writer, store *deliveries.Store, txID string, limit int) error {
	var (
		list []*deliveries.Delivery
		err  error
	)
	if txID != "" {
		list, err = store.ListByTransaction(ctx, txID)
	} else {
		list, err = store.ListRecent(ctx, limit)
	}
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Fprintln(out, "No deliveries found.")
		return nil
	}

	fmt.Fprintf(out, "%-20s %-11s %-20s %-9s %-16s %s\n",
		"RECEIVED", "PROVIDER", "TRANSACTION", "OUTCOME", "DISPOSITION", "EVENT")
	fmt.Fprintln(out, strings.Repeat("-", deliveriesTableWidth))

	for _, d := range list {
		outcome := "failure"
		if d.Succeeded {
			outcome = "success"
		}
		fmt.Fprintf(out, "%-20s %-11s %-20s %-9s %-16s %s\n",
			d.ReceivedAt.Local().Format("2006-01-02 15:04:05"),
			d.Provider,
			d.TransactionID,
			outcome,
			d.Disposition,
			d.EventType,
		)
	}

	return nil
}

func runDeliveriesPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	cutoff := time.Now().Add(-cfg.Audit.Retention)
	n, err := deliveries.NewStore(db).Prune(cmd.Context(), cutoff)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d deliveries received before %s\n", n, cutoff.Format(time.RFC3339))
	return nil
}
