package webhooks

import "context"

var queryTransactionKeys = []string{"oid", "transactionId", "tx"}

// QueryAdapter handles GET redirects that carry the outcome in the query
// string. They carry no signature and are never settled.
type QueryAdapter struct{}

func NewQueryAdapter() *QueryAdapter {
	return &QueryAdapter{}
}

func (a *QueryAdapter) Provider() Provider {
	return ProviderQuery
}

func (a *QueryAdapter) Parse(req *Request) (*Outcome, error) {
	params := firstValues(req.Query)
	delete(params, "provider")

	var txID string
	for _, key := range queryTransactionKeys {
		if v := params[key]; v != "" {
			txID = v
			break
		}
	}
	if txID == "" {
		return nil, ErrMissingTransactionID
	}

	return &Outcome{
		TransactionID: txID,
		Succeeded:     params["Response"] == "Approved" || params["status"] == "success",
		Provider:      ProviderQuery,
		EventType:     params["Response"],
		Actionable:    true,
		Fields:        toAny(params),
	}, nil
}

func (a *QueryAdapter) Authenticate(context.Context, *Request, *Outcome) error {
	return ErrUnauthenticated
}
