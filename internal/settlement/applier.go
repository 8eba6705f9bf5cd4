// Package settlement applies normalized payment outcomes to the purchase store.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/rs/zerolog/log"

	"github.com/learnhub/payhook/internal/metrics"
)

// Store performs the purchase state transitions. Both calls must be
// idempotent per transaction id: gateways redeliver, so the same call can
// arrive any number of times.
type Store interface {
	ConfirmPurchase(ctx context.Context, transactionID string, providerResponse map[string]any) error
	FailPurchase(ctx context.Context, transactionID string, providerResponse map[string]any) error
}

// Status is the kind of settlement result.
type Status string

const (
	StatusConfirmed       Status = "confirmed"
	StatusFailed          Status = "failed"
	StatusTransitionError Status = "transition_error"
)

// Result reports what happened to a settlement attempt.
type Result struct {
	Status Status
	// Reason is set for StatusTransitionError. It is safe to return to the
	// gateway.
	Reason string
}

// OK reports whether the store accepted the transition.
func (r Result) OK() bool {
	return r.Status != StatusTransitionError
}

// Applier dispatches outcomes to a Store with a bounded wait.
type Applier struct {
	store   Store
	timeout time.Duration
}

// NewApplier creates an applier. A non-positive timeout falls back to five
// seconds.
func NewApplier(store Store, d time.Duration) *Applier {
	if d <= 0 {
		d = 5 * time.Second
	}
	return &Applier{store: store, timeout: d}
}

// Timeout returns the configured bound on a single store call.
func (a *Applier) Timeout() time.Duration {
	return a.timeout
}

// Apply confirms or fails the purchase identified by transactionID. It never
// retries; any store error, including the deadline, becomes a
// StatusTransitionError result.
func (a *Applier) Apply(ctx context.Context, transactionID string, succeeded bool, fields map[string]any) Result {
	start := time.Now()

	t := timeout.New[Status](timeout.Config{
		DefaultTimeout: a.timeout,
	})

	status, err := t.Execute(ctx, a.timeout, func(ctx context.Context) (Status, error) {
		if succeeded {
			if err := a.store.ConfirmPurchase(ctx, transactionID, fields); err != nil {
				return "", fmt.Errorf("confirming purchase: %w", err)
			}
			return StatusConfirmed, nil
		}
		if err := a.store.FailPurchase(ctx, transactionID, fields); err != nil {
			return "", fmt.Errorf("failing purchase: %w", err)
		}
		return StatusFailed, nil
	})

	result := Result{Status: status}
	if err != nil {
		result = Result{Status: StatusTransitionError, Reason: reasonFor(ctx, err, time.Since(start), a.timeout)}

		log.Error().
			Err(err).
			Str("transaction_id", transactionID).
			Bool("succeeded", succeeded).
			Dur("elapsed", time.Since(start)).
			Msg("Settlement transition failed")
	} else {
		log.Info().
			Str("transaction_id", transactionID).
			Str("status", string(status)).
			Dur("elapsed", time.Since(start)).
			Msg("Purchase settled")
	}

	metrics.RecordSettlement(string(result.Status), time.Since(start))

	return result
}

func reasonFor(ctx context.Context, err error, elapsed, d time.Duration) string {
	if ctx.Err() != nil {
		return "request cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) || elapsed >= d {
		return fmt.Sprintf("settlement timed out after %s", d)
	}
	return err.Error()
}
