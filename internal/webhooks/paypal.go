package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/learnhub/payhook/internal/config"
	"github.com/learnhub/payhook/internal/paypal"
)

// PayPal event types.
const (
	EventCaptureCompleted       = "PAYMENT.CAPTURE.COMPLETED"
	EventOrderApproved          = "CHECKOUT.ORDER.APPROVED"
	EventCaptureDenied          = "PAYMENT.CAPTURE.DENIED"
	EventCaptureDeclined        = "PAYMENT.CAPTURE.DECLINED"
	EventPaymentApprovalReverse = "CHECKOUT.PAYMENT-APPROVAL.REVERSED"
)

var (
	paypalSuccessEvents = map[string]bool{
		EventCaptureCompleted: true,
		EventOrderApproved:    true,
	}

	paypalFailureEvents = map[string]bool{
		EventCaptureDenied:          true,
		EventCaptureDeclined:        true,
		EventPaymentApprovalReverse: true,
	}
)

// PayPalAdapter handles PayPal JSON webhook events.
type PayPalAdapter struct {
	verifier      paypal.Verifier
	unknownEvents string
}

// NewPayPalAdapter creates a PayPal adapter. A nil verifier rejects every
// event.
func NewPayPalAdapter(verifier paypal.Verifier, unknownEvents string) *PayPalAdapter {
	if unknownEvents == "" {
		unknownEvents = config.UnknownEventsIgnore
	}
	return &PayPalAdapter{verifier: verifier, unknownEvents: unknownEvents}
}

func (a *PayPalAdapter) Provider() Provider {
	return ProviderPayPal
}

type paypalEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID        string `json:"id"`
		InvoiceID string `json:"invoice_id"`
	} `json:"resource"`
}

func (a *PayPalAdapter) Parse(req *Request) (*Outcome, error) {
	var event paypalEvent
	if err := json.Unmarshal(req.Body, &event); err != nil {
		return nil, fmt.Errorf("%w: decoding event: %v", ErrMalformedRequest, err)
	}

	if event.EventType == "" {
		return nil, fmt.Errorf("%w: event_type is required", ErrMalformedRequest)
	}

	txID := event.Resource.ID
	if txID == "" {
		txID = event.Resource.InvoiceID
	}
	if txID == "" {
		return nil, ErrMissingTransactionID
	}

	var fields map[string]any
	if err := json.Unmarshal(req.Body, &fields); err != nil {
		return nil, fmt.Errorf("%w: decoding event: %v", ErrMalformedRequest, err)
	}

	succeeded := paypalSuccessEvents[event.EventType]
	actionable := succeeded || paypalFailureEvents[event.EventType] ||
		a.unknownEvents == config.UnknownEventsFail

	return &Outcome{
		TransactionID: txID,
		Succeeded:     succeeded,
		Provider:      ProviderPayPal,
		EventType:     event.EventType,
		Actionable:    actionable,
		Fields:        fields,
	}, nil
}

// Authenticate asks PayPal to vouch for the event. Any failure to get a
// positive answer rejects the event.
func (a *PayPalAdapter) Authenticate(ctx context.Context, req *Request, outcome *Outcome) error {
	if a.verifier == nil {
		return fmt.Errorf("%w: paypal verification is not configured", ErrAuthenticity)
	}

	if err := a.verifier.Verify(ctx, req.Header, req.Body); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticity, err)
	}

	outcome.Authenticated = true
	return nil
}
