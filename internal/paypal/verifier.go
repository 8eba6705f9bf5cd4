// Package paypal verifies PayPal webhook notifications through the
// verify-webhook-signature API.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/learnhub/payhook/internal/config"
)

// Transmission headers PayPal attaches to every webhook delivery.
const (
	HeaderAuthAlgo         = "PAYPAL-AUTH-ALGO"
	HeaderCertURL          = "PAYPAL-CERT-URL"
	HeaderTransmissionID   = "PAYPAL-TRANSMISSION-ID"
	HeaderTransmissionSig  = "PAYPAL-TRANSMISSION-SIG"
	HeaderTransmissionTime = "PAYPAL-TRANSMISSION-TIME"
)

const statusSuccess = "SUCCESS"

var (
	// ErrVerificationFailed is returned when PayPal does not vouch for the
	// delivery.
	ErrVerificationFailed = errors.New("paypal signature verification failed")

	// ErrMissingHeaders is returned when transmission headers are absent.
	ErrMissingHeaders = errors.New("paypal transmission headers missing")

	// ErrUnavailable is returned when the verification API cannot be reached
	// or answers with an error.
	ErrUnavailable = errors.New("paypal verification unavailable")
)

// Verifier checks that a raw webhook body was sent by PayPal.
type Verifier interface {
	Verify(ctx context.Context, header http.Header, body []byte) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, header http.Header, body []byte) error

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, header http.Header, body []byte) error {
	return f(ctx, header, body)
}

// APIVerifier calls PayPal's verify-webhook-signature endpoint using an
// OAuth2 client-credentials token.
type APIVerifier struct {
	apiBase    string
	webhookID  string
	httpClient *http.Client
}

// NewAPIVerifier creates a verifier from gateway config.
func NewAPIVerifier(cfg config.PayPalGatewayConfig) *APIVerifier {
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = config.DefaultPayPalAPIBase
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultPayPalTimeout
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     apiBase + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	base := &http.Client{Timeout: timeout}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	client := cc.Client(tokenCtx)
	client.Timeout = timeout

	return &APIVerifier{
		apiBase:    apiBase,
		webhookID:  cfg.WebhookID,
		httpClient: client,
	}
}

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// Verify returns nil only when PayPal answers SUCCESS. Every other outcome,
// including transport errors, is an error.
func (v *APIVerifier) Verify(ctx context.Context, header http.Header, body []byte) error {
	req := verifyRequest{
		AuthAlgo:         header.Get(HeaderAuthAlgo),
		CertURL:          header.Get(HeaderCertURL),
		TransmissionID:   header.Get(HeaderTransmissionID),
		TransmissionSig:  header.Get(HeaderTransmissionSig),
		TransmissionTime: header.Get(HeaderTransmissionTime),
		WebhookID:        v.webhookID,
		WebhookEvent:     json.RawMessage(body),
	}

	if req.AuthAlgo == "" || req.CertURL == "" || req.TransmissionID == "" ||
		req.TransmissionSig == "" || req.TransmissionTime == "" {
		return ErrMissingHeaders
	}

	if !json.Valid(body) {
		return fmt.Errorf("%w: body is not JSON", ErrVerificationFailed)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling verification request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.apiBase+"/v1/notifications/verify-webhook-signature", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: HTTP %d after %s", ErrUnavailable, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}

	var out verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}

	if out.VerificationStatus != statusSuccess {
		return fmt.Errorf("%w: status %q", ErrVerificationFailed, out.VerificationStatus)
	}

	return nil
}
