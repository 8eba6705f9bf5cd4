package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/learnhub/payhook/internal/metrics"
	"github.com/learnhub/payhook/internal/nestpay"
	"github.com/learnhub/payhook/internal/requestctx"
	"github.com/learnhub/payhook/internal/webhooks"
)

// PaymentHashHandler signs the form a browser posts to the bank gateway
// when a card payment starts.
type PaymentHashHandler struct {
	storeKey    string
	maxBodySize int64
}

func NewPaymentHashHandler(storeKey string, maxBodySize int64) *PaymentHashHandler {
	return &PaymentHashHandler{
		storeKey:    storeKey,
		maxBodySize: maxBodySize,
	}
}

func (h *PaymentHashHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	webhooks.SetCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	case http.MethodPost:
	default:
		GatewayError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if h.maxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}

	var req nestpay.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			GatewayError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		GatewayError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if missing := req.MissingFields(); len(missing) > 0 {
		GatewayError(w, http.StatusBadRequest, "missing required fields: "+strings.Join(missing, ", "))
		return
	}

	logger := requestctx.Logger(r.Context())

	if h.storeKey == "" {
		logger.Error().Msg("Payment hash requested but bank store key is not configured")
		GatewayError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	hash := nestpay.Compute(req.Fields(), h.storeKey)
	metrics.RecordHashGenerated()

	logger.Debug().
		Str("oid", req.OrderID).
		Msg("Payment hash generated")

	JSON(w, http.StatusOK, GatewayResponse{Success: true, Hash: hash})
}
