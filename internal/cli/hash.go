package cli

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/learnhub/payhook/internal/nestpay"
)

var hashPayment nestpay.PaymentRequest

// ErrInvalidHash is returned by hash verify when the callback does not
// authenticate.
var ErrInvalidHash = errors.New("callback hash does not match")

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Nestpay hash utilities",
	Long: `Nestpay hash utilities.

The store key is read from gateways.bank.store_key (or PAYHOOK_GATEWAYS_BANK_STORE_KEY)
and never accepted on the command line.

Examples:
  payhook hash generate --clientid C1 --oid ORDER-1 --amount 10.00 \
    --ok-url https://shop/ok --fail-url https://shop/fail --txn-type Auth --rnd abc
  payhook hash verify callback.txt
  cat callback.txt | payhook hash verify -`,
}

var hashGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Compute the hash for a payment form",
	RunE:  runHashGenerate,
}

var hashVerifyCmd = &cobra.Command{
	Use:   "verify <file|->",
	Short: "Verify a captured callback body",
	Long: `Verify the hash of a captured bank callback.

The input is the raw application/x-www-form-urlencoded body the gateway
posted. Use - to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runHashVerify,
}

func init() {
	f := hashGenerateCmd.Flags()
	f.StringVar(&hashPayment.ClientID, "clientid", "", "Merchant client id")
	f.StringVar(&hashPayment.OrderID, "oid", "", "Order id")
	f.StringVar(&hashPayment.Amount, "amount", "", "Amount")
	f.StringVar(&hashPayment.OkURL, "ok-url", "", "Success redirect URL")
	f.StringVar(&hashPayment.FailURL, "fail-url", "", "Failure redirect URL")
	f.StringVar(&hashPayment.TxnType, "txn-type", "", "Transaction type (islemtipi)")
	f.StringVar(&hashPayment.Installment, "installment", "", "Installment count (taksit)")
	f.StringVar(&hashPayment.Random, "rnd", "", "Random nonce")

	hashCmd.AddCommand(hashGenerateCmd)
	hashCmd.AddCommand(hashVerifyCmd)

	rootCmd.AddCommand(hashCmd)
}

func runHashGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hash, err := generateHash(&hashPayment, cfg.Gateways.Bank.StoreKey)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func generateHash(req *nestpay.PaymentRequest, storeKey string) (string, error) {
	if missing := req.MissingFields(); len(missing) > 0 {
		return "", fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if storeKey == "" {
		return "", errors.New("gateways.bank.store_key is not configured")
	}
	return nestpay.Compute(req.Fields(), storeKey), nil
}

func runHashVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening callback: %w", err)
		}
		defer file.Close()
		in = file
	}

	body, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading callback: %w", err)
	}

	return verifyCallback(cmd.OutOrStdout(), body, cfg.Gateways.Bank.StoreKey)
}

// verifyCallback checks a form-encoded callback body and prints the
// transaction id on success.
func verifyCallback(out io.Writer, body []byte, storeKey string) error {
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return fmt.Errorf("parsing callback: %w", err)
	}

	fields := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	hash, _ := nestpay.Lookup(fields, "hash")
	params, _ := nestpay.Lookup(fields, "hashparams")
	if hash == "" || params == "" {
		return errors.New("callback has no hash or hashparams field")
	}

	if !nestpay.Verify(hash, params, fields, storeKey) {
		fmt.Fprintln(out, "invalid")
		return ErrInvalidHash
	}

	oid, _ := nestpay.Lookup(fields, "oid")
	fmt.Fprintf(out, "valid (oid %s)\n", oid)
	return nil
}
