// Package deliveries keeps an append-only audit trail of gateway
// notifications.
package deliveries

import "time"

// Disposition records how the endpoint handled a delivery.
type Disposition string

const (
	// DispositionSettled means the store accepted the transition.
	DispositionSettled Disposition = "settled"
	// DispositionTransitionError means the store rejected or timed out.
	DispositionTransitionError Disposition = "transition_error"
	// DispositionRejected means the authenticity check failed.
	DispositionRejected Disposition = "rejected"
	// DispositionMalformed means the request could not be parsed.
	DispositionMalformed Disposition = "malformed"
	// DispositionIgnored means the event was authentic but not actionable.
	DispositionIgnored Disposition = "ignored"
	// DispositionUnauthenticated means the outcome was accepted for the
	// record only and never applied.
	DispositionUnauthenticated Disposition = "unauthenticated"
	// DispositionError means an unexpected internal failure.
	DispositionError Disposition = "error"
)

// Delivery is one inbound notification.
type Delivery struct {
	ID            string
	RequestID     string
	Provider      string
	EventType     string
	TransactionID string
	Succeeded     bool
	Authenticated bool
	Disposition   Disposition
	Error         string
	ReceivedAt    time.Time
}
