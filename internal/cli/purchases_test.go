package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/learnhub/payhook/internal/config"
	"github.com/learnhub/payhook/internal/database"
	"github.com/learnhub/payhook/internal/purchases"
)

func TestCreateAndShowPurchase(t *testing.T) {
	db, err := database.Open(&config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "cli.db"), MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := purchases.NewStore(db)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, createPurchase(ctx, &out, store, &purchases.Purchase{
		TransactionID: "ORDER-1", UserID: "u1", CourseID: "c1", Amount: "49.90", Currency: "EUR",
	}))
	require.Contains(t, out.String(), "Created pending purchase ORDER-1")

	// The seeded purchase is what a later webhook settles.
	require.NoError(t, store.ConfirmPurchase(ctx, "ORDER-1", map[string]any{"Response": "Approved"}))

	out.Reset()
	require.NoError(t, showPurchase(ctx, &out, store, "ORDER-1"))
	require.Contains(t, out.String(), "Status:      confirmed")
	require.Contains(t, out.String(), "49.90 EUR")
	require.False(t, strings.Contains(out.String(), "Settled:     -"), "settled time should be shown")

	err = createPurchase(ctx, &out, store, &purchases.Purchase{TransactionID: "ORDER-1", UserID: "u1", CourseID: "c1"})
	require.ErrorIs(t, err, purchases.ErrDuplicatePurchase)

	require.ErrorIs(t, showPurchase(ctx, &out, store, "missing"), purchases.ErrUnknownTransaction)
}
