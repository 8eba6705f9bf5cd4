package purchases

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/learnhub/payhook/internal/config"
)

const maxRPCErrorBody = 4 << 10

// RPCError is a non-2xx answer from a remote store function.
type RPCError struct {
	Function   string
	StatusCode int
	Code       string
	Message    string
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc %s: HTTP %d", e.Function, e.StatusCode)
	}
	return fmt.Sprintf("rpc %s: HTTP %d: %s", e.Function, e.StatusCode, e.Message)
}

// RPCStore calls the confirm/fail stored procedures of a PostgREST backend.
// The procedures own idempotency; this client only transports the call.
type RPCStore struct {
	baseURL         string
	serviceKey      string
	confirmFunction string
	failFunction    string
	httpClient      *http.Client
}

// NewRPCStore creates a store client from config.
func NewRPCStore(cfg config.RPCStoreConfig, timeout time.Duration) *RPCStore {
	confirm := cfg.ConfirmFunction
	if confirm == "" {
		confirm = config.DefaultConfirmFunction
	}
	fail := cfg.FailFunction
	if fail == "" {
		fail = config.DefaultFailFunction
	}

	return &RPCStore{
		baseURL:         strings.TrimRight(cfg.URL, "/"),
		serviceKey:      cfg.ServiceKey,
		confirmFunction: confirm,
		failFunction:    fail,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ConfirmPurchase invokes the confirm procedure.
func (s *RPCStore) ConfirmPurchase(ctx context.Context, transactionID string, providerResponse map[string]any) error {
	return s.call(ctx, s.confirmFunction, transactionID, providerResponse)
}

// FailPurchase invokes the fail procedure.
func (s *RPCStore) FailPurchase(ctx context.Context, transactionID string, providerResponse map[string]any) error {
	return s.call(ctx, s.failFunction, transactionID, providerResponse)
}

type rpcArgs struct {
	TransactionID    string         `json:"p_transaction_id"`
	ProviderResponse map[string]any `json:"p_provider_response"`
}

type rpcErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *RPCStore) call(ctx context.Context, function, transactionID string, providerResponse map[string]any) error {
	if providerResponse == nil {
		providerResponse = map[string]any{}
	}

	payload, err := json.Marshal(rpcArgs{
		TransactionID:    transactionID,
		ProviderResponse: providerResponse,
	})
	if err != nil {
		return fmt.Errorf("marshaling rpc arguments: %w", err)
	}

	url := s.baseURL + "/rest/v1/rpc/" + function
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", function, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxRPCErrorBody))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Debug().
			Str("function", function).
			Str("transaction_id", transactionID).
			Int("status", resp.StatusCode).
			Msg("Store procedure succeeded")
		return nil
	}

	rpcErr := &RPCError{Function: function, StatusCode: resp.StatusCode}
	var eb rpcErrorBody
	if json.Unmarshal(body, &eb) == nil {
		rpcErr.Code = eb.Code
		rpcErr.Message = eb.Message
	}

	return rpcErr
}
