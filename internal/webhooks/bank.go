package webhooks

import (
	"context"
	"fmt"
	"net/url"

	"github.com/learnhub/payhook/internal/nestpay"
)

var bankTransactionKeys = []string{"oid", "OrderId", "TransId"}

// BankAdapter handles Nestpay form callbacks.
type BankAdapter struct {
	storeKey string
}

// NewBankAdapter creates a bank adapter verifying with storeKey.
func NewBankAdapter(storeKey string) *BankAdapter {
	return &BankAdapter{storeKey: storeKey}
}

func (a *BankAdapter) Provider() Provider {
	return ProviderBank
}

func (a *BankAdapter) Parse(req *Request) (*Outcome, error) {
	form, err := parseForm(req)
	if err != nil {
		return nil, err
	}

	var txID string
	for _, key := range bankTransactionKeys {
		if v, ok := nestpay.Lookup(form, key); ok && v != "" {
			txID = v
			break
		}
	}
	if txID == "" {
		return nil, ErrMissingTransactionID
	}

	response, _ := nestpay.Lookup(form, "Response")
	procReturnCode, _ := nestpay.Lookup(form, "ProcReturnCode")

	return &Outcome{
		TransactionID: txID,
		Succeeded:     response == "Approved" || procReturnCode == "00",
		Provider:      ProviderBank,
		EventType:     response,
		Actionable:    true,
		Fields:        toAny(form),
	}, nil
}

// Authenticate recomputes the callback hash over the fields named by
// hashparams.
func (a *BankAdapter) Authenticate(_ context.Context, req *Request, outcome *Outcome) error {
	if a.storeKey == "" {
		return ErrUnconfiguredSecret
	}

	form, err := parseForm(req)
	if err != nil {
		return err
	}

	hash, _ := nestpay.Lookup(form, "hash")
	hashParams, _ := nestpay.Lookup(form, "hashparams")

	if !nestpay.Verify(hash, hashParams, form, a.storeKey) {
		return ErrAuthenticity
	}

	outcome.Authenticated = true
	return nil
}

func parseForm(req *Request) (map[string]string, error) {
	values, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing form: %v", ErrMalformedRequest, err)
	}
	return firstValues(values), nil
}
