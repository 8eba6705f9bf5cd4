package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/learnhub/payhook/internal/config"
	"github.com/learnhub/payhook/internal/database"
	"github.com/learnhub/payhook/internal/purchases"
)

var errRemoteStore = errors.New("purchases are managed by the remote store when store.driver is 'rpc'")

var purchaseFlags struct {
	tx       string
	user     string
	course   string
	amount   string
	currency string
}

var purchasesCmd = &cobra.Command{
	Use:   "purchases",
	Short: "Manage purchases in the built-in SQLite store",
	Long: `Manage purchases in the built-in SQLite store.

With store.driver set to 'sqlite' (the default) payhook settles purchases in
its own database. A webhook for a transaction that has no pending purchase is
answered with {"success": false, "error": "unknown transaction ..."}, so
purchases must be created before the customer is sent to the gateway.
Production deployments usually point store.driver at 'rpc' instead.

Examples:
  payhook purchases create --tx ORDER-1 --user u1 --course c1 --amount 49.90 --currency EUR
  payhook purchases show ORDER-1`,
}

var purchasesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pending purchase",
	RunE:  runPurchasesCreate,
}

var purchasesShowCmd = &cobra.Command{
	Use:   "show <transaction-id>",
	Short: "Show a purchase and its settlement state",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurchasesShow,
}

func init() {
	f := purchasesCreateCmd.Flags()
	f.StringVar(&purchaseFlags.tx, "tx", "", "Transaction id sent to the gateway (required)")
	f.StringVar(&purchaseFlags.user, "user", "", "Buyer user id (required)")
	f.StringVar(&purchaseFlags.course, "course", "", "Purchased course id (required)")
	f.StringVar(&purchaseFlags.amount, "amount", "", "Amount as sent to the gateway")
	f.StringVar(&purchaseFlags.currency, "currency", "", "Currency code")
	for _, name := range []string{"tx", "user", "course"} {
		_ = purchasesCreateCmd.MarkFlagRequired(name)
	}

	purchasesCmd.AddCommand(purchasesCreateCmd)
	purchasesCmd.AddCommand(purchasesShowCmd)

	rootCmd.AddCommand(purchasesCmd)
}

func openPurchaseStore() (*purchases.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Driver != config.StoreDriverSQLite {
		return nil, nil, errRemoteStore
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return purchases.NewStore(db), func() { db.Close() }, nil
}

func runPurchasesCreate(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openPurchaseStore()
	if err != nil {
		return err
	}
	defer closeDB()

	p := &purchases.Purchase{
		TransactionID: purchaseFlags.tx,
		UserID:        purchaseFlags.user,
		CourseID:      purchaseFlags.course,
		Amount:        purchaseFlags.amount,
		Currency:      purchaseFlags.currency,
	}
	return createPurchase(cmd.Context(), cmd.OutOrStdout(), store, p)
}

func createPurchase(ctx context.Context, out io.Writer, store *purchases.Store, p *purchases.Purchase) error {
	if err := store.Create(ctx, p); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Created pending purchase %s\n", p.TransactionID)
	return nil
}

func runPurchasesShow(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openPurchaseStore()
	if err != nil {
		return err
	}
	defer closeDB()

	return showPurchase(cmd.Context(), cmd.OutOrStdout(), store, args[0])
}

func showPurchase(ctx context.Context, out io.Writer, store *purchases.Store, txID string) error {
	p, err := store.Get(ctx, txID)
	if err != nil {
		return err
	}

	settled := "-"
	if p.SettledAt != nil {
		settled = p.SettledAt.Local().Format(time.RFC3339)
	}

	fmt.Fprintf(out, "Transaction: %s\n", p.TransactionID)
	fmt.Fprintf(out, "User:        %s\n", p.UserID)
	fmt.Fprintf(out, "Course:      %s\n", p.CourseID)
	fmt.Fprintf(out, "Amount:      %s %s\n", p.Amount, p.Currency)
	fmt.Fprintf(out, "Status:      %s\n", p.Status)
	fmt.Fprintf(out, "Settled:     %s\n", settled)
	return nil
}
