package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Adapter turns one provider's notification format into an Outcome and
// checks its authenticity.
type Adapter interface {
	Provider() Provider
	Parse(req *Request) (*Outcome, error)
	Authenticate(ctx context.Context, req *Request, outcome *Outcome) error
}

// Adapters holds one adapter per provider.
type Adapters struct {
	Bank   Adapter
	PayPal Adapter
	Query  Adapter
}

// Select picks the adapter for req. An explicit provider query parameter
// wins; otherwise the method and content type decide.
func (a *Adapters) Select(req *Request) (Adapter, error) {
	if name := strings.TrimSpace(req.Query.Get("provider")); name != "" {
		adapter := a.byName(strings.ToLower(name))
		if adapter == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
		}
		return adapter, nil
	}

	var adapter Adapter
	switch {
	case req.Method == http.MethodGet && len(req.Body) == 0:
		adapter = a.Query
	case req.ContentType == "application/json":
		adapter = a.PayPal
	case req.ContentType == "application/x-www-form-urlencoded":
		adapter = a.Bank
	}

	if adapter == nil {
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrMalformedRequest, req.ContentType)
	}

	return adapter, nil
}

func (a *Adapters) byName(name string) Adapter {
	switch name {
	case "raiffeisen", "bank", "nestpay":
		return a.Bank
	case "paypal":
		return a.PayPal
	case "query":
		return a.Query
	}
	return nil
}
