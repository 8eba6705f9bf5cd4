package webhooks

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Provider identifies a payment gateway.
type Provider string

const (
	ProviderBank   Provider = "raiffeisen"
	ProviderPayPal Provider = "paypal"
	ProviderQuery  Provider = "query"
)

// Request is an inbound gateway notification, read once and never mutated.
type Request struct {
	Method      string
	ContentType string
	Header      http.Header
	Body        []byte
	Query       url.Values
}

// NewRequest reads r into a Request. The body is limited to maxBody bytes;
// a larger body yields ErrBodyTooLarge.
func NewRequest(w http.ResponseWriter, r *http.Request, maxBody int64) (*Request, error) {
	var body []byte
	if r.Body != nil {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = http.MaxBytesReader(w, r.Body, maxBody)
		}

		var err error
		body, err = io.ReadAll(reader)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, ErrBodyTooLarge
			}
			return nil, fmt.Errorf("%w: reading body: %v", ErrMalformedRequest, err)
		}
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			contentType = mt
		} else {
			contentType = strings.ToLower(strings.TrimSpace(contentType))
		}
	}

	return &Request{
		Method:      r.Method,
		ContentType: contentType,
		Header:      r.Header.Clone(),
		Body:        body,
		Query:       r.URL.Query(),
	}, nil
}

// Outcome is the provider-neutral result extracted from a Request.
type Outcome struct {
	TransactionID string
	Succeeded     bool
	Provider      Provider
	EventType     string

	// Actionable is false for notifications that are acknowledged but never
	// settled.
	Actionable bool

	// Authenticated is set once the provider's authenticity check passes.
	Authenticated bool

	// Fields is the provider payload, forwarded to the store as the provider
	// response.
	Fields map[string]any
}

func firstValues(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func toAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
