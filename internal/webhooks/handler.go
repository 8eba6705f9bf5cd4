package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/learnhub/payhook/internal/deliveries"
	"github.com/learnhub/payhook/internal/metrics"
	"github.com/learnhub/payhook/internal/requestctx"
	"github.com/learnhub/payhook/internal/settlement"
)

const (
	corsAllowOrigin  = "*"
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"

	internalErrorMessage = "internal server error"
)

// Settler applies an authenticated outcome to the purchase store.
type Settler interface {
	Apply(ctx context.Context, transactionID string, succeeded bool, fields map[string]any) settlement.Result
}

// DeliveryLog records every notification for audit.
type DeliveryLog interface {
	Record(ctx context.Context, d *deliveries.Delivery) error
	HasConflict(ctx context.Context, transactionID string, succeeded bool) (bool, error)
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Adapters *Adapters
	Settler  Settler

	// Deliveries is optional; when nil nothing is recorded.
	Deliveries DeliveryLog

	// QueryEnabled accepts unauthenticated GET callbacks for the record.
	QueryEnabled bool

	MaxBodySize int64
}

// Handler is the payment webhook endpoint.
type Handler struct {
	adapters     *Adapters
	settler      Settler
	deliveries   DeliveryLog
	queryEnabled bool
	maxBodySize  int64
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		adapters:     cfg.Adapters,
		settler:      cfg.Settler,
		deliveries:   cfg.Deliveries,
		queryEnabled: cfg.QueryEnabled,
		maxBodySize:  cfg.MaxBodySize,
	}
}

// SetCORSHeaders writes the headers the gateway pages and browsers expect.
func SetCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", corsAllowOrigin)
	w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
}

// ServeHTTP handles one gateway notification.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	SetCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		writeResult(w, http.StatusMethodNotAllowed, map[string]any{
			"success": false,
			"error":   "method not allowed",
		})
		return
	}

	ctx := r.Context()
	delivery := &deliveries.Delivery{
		RequestID:  requestctx.RequestID(ctx),
		Provider:   r.URL.Query().Get("provider"),
		ReceivedAt: time.Now().UTC(),
	}

	status, body := h.handle(ctx, w, r, delivery)

	h.record(ctx, delivery)
	writeResult(w, status, body)
}

func (h *Handler) handle(ctx context.Context, w http.ResponseWriter, r *http.Request, d *deliveries.Delivery) (int, map[string]any) {
	req, err := NewRequest(w, r, h.maxBodySize)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return h.reject(d, deliveries.DispositionMalformed, http.StatusRequestEntityTooLarge, err)
		}
		return h.reject(d, deliveries.DispositionMalformed, http.StatusBadRequest, err)
	}

	adapter, err := h.adapters.Select(req)
	if err != nil {
		return h.reject(d, deliveries.DispositionMalformed, http.StatusBadRequest, err)
	}
	d.Provider = string(adapter.Provider())

	outcome, err := adapter.Parse(req)
	if err != nil {
		if !errors.Is(err, ErrMalformedRequest) && !errors.Is(err, ErrMissingTransactionID) {
			return h.fail(d, err)
		}
		return h.reject(d, deliveries.DispositionMalformed, http.StatusBadRequest, err)
	}

	d.TransactionID = outcome.TransactionID
	d.EventType = outcome.EventType
	d.Succeeded = outcome.Succeeded

	logger := requestctx.Logger(ctx).With().
		Str("provider", d.Provider).
		Str("transaction_id", outcome.TransactionID).
		Logger()

	if err := adapter.Authenticate(ctx, req, outcome); err != nil {
		switch {
		case errors.Is(err, ErrUnauthenticated):
			if !h.queryEnabled {
				logger.Warn().Msg("Unauthenticated callback refused")
				return h.reject(d, deliveries.DispositionRejected, http.StatusUnauthorized, ErrUnauthenticated)
			}
			d.Disposition = deliveries.DispositionUnauthenticated
			logger.Info().
				Bool("succeeded", outcome.Succeeded).
				Msg("Unauthenticated callback recorded without settlement")
			return http.StatusAccepted, map[string]any{
				"success":        true,
				"settled":        false,
				"transaction_id": outcome.TransactionID,
			}

		case errors.Is(err, ErrAuthenticity):
			metrics.RecordVerificationFailure(metricProvider(d.Provider))
			logger.Warn().Err(err).Msg("Webhook authenticity check failed")
			return h.reject(d, deliveries.DispositionRejected, http.StatusUnauthorized, ErrAuthenticity)

		default:
			return h.fail(d, err)
		}
	}
	d.Authenticated = true

	if !outcome.Actionable {
		d.Disposition = deliveries.DispositionIgnored
		logger.Info().Str("event_type", outcome.EventType).Msg("Ignoring non-actionable event")
		return http.StatusOK, map[string]any{
			"success": true,
			"ignored": true,
		}
	}

	h.checkConflict(ctx, d, outcome)

	result := h.settler.Apply(ctx, outcome.TransactionID, outcome.Succeeded, outcome.Fields)
	if !result.OK() {
		d.Disposition = deliveries.DispositionTransitionError
		d.Error = result.Reason
		return http.StatusOK, map[string]any{
			"success": false,
			"error":   result.Reason,
		}
	}

	d.Disposition = deliveries.DispositionSettled
	return http.StatusOK, map[string]any{
		"success":        true,
		"transaction_id": outcome.TransactionID,
		"status":         string(result.Status),
	}
}

func (h *Handler) checkConflict(ctx context.Context, d *deliveries.Delivery, outcome *Outcome) {
	if h.deliveries == nil {
		return
	}

	conflict, err := h.deliveries.HasConflict(ctx, outcome.TransactionID, outcome.Succeeded)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", outcome.TransactionID).Msg("Failed to check delivery history")
		return
	}

	if conflict {
		metrics.RecordConflict(metricProvider(d.Provider))
		log.Warn().
			Str("request_id", d.RequestID).
			Str("provider", d.Provider).
			Str("transaction_id", outcome.TransactionID).
			Bool("succeeded", outcome.Succeeded).
			Msg("Notification contradicts an earlier outcome")
	}
}

func (h *Handler) reject(d *deliveries.Delivery, disposition deliveries.Disposition, status int, err error) (int, map[string]any) {
	d.Disposition = disposition
	d.Error = err.Error()

	log.Debug().
		Str("request_id", d.RequestID).
		Str("provider", d.Provider).
		Int("status", status).
		Err(err).
		Msg("Webhook rejected")

	return status, map[string]any{
		"success": false,
		"error":   err.Error(),
	}
}

func (h *Handler) fail(d *deliveries.Delivery, err error) (int, map[string]any) {
	d.Disposition = deliveries.DispositionError
	d.Error = internalErrorMessage

	log.Error().
		Err(err).
		Str("request_id", d.RequestID).
		Str("provider", d.Provider).
		Str("transaction_id", d.TransactionID).
		Msg("Webhook processing failed")

	return http.StatusInternalServerError, map[string]any{
		"success": false,
		"error":   internalErrorMessage,
	}
}

func (h *Handler) record(ctx context.Context, d *deliveries.Delivery) {
	metrics.RecordDelivery(metricProvider(d.Provider), string(d.Disposition))

	if h.deliveries == nil {
		return
	}

	if err := h.deliveries.Record(context.WithoutCancel(ctx), d); err != nil {
		log.Error().
			Err(err).
			Str("request_id", d.RequestID).
			Str("transaction_id", d.TransactionID).
			Msg("Failed to record webhook delivery")
	}
}

// metricProvider bounds label cardinality to the known providers.
func metricProvider(name string) string {
	switch Provider(name) {
	case ProviderBank, ProviderPayPal, ProviderQuery:
		return name
	}
	return "unknown"
}

func writeResult(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode webhook response")
	}
}
