package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/learnhub/payhook/internal/config"
	"github.com/learnhub/payhook/internal/database"
	"github.com/learnhub/payhook/internal/deliveries"
	"github.com/learnhub/payhook/internal/nestpay"
	"github.com/learnhub/payhook/internal/paypal"
	"github.com/learnhub/payhook/internal/purchases"
)

const testStoreKey = "TEST-STORE-KEY"

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Database.MaxOpenConns = 1
	cfg.Database.MaxIdleConns = 1
	cfg.Gateways.Bank.StoreKey = testStoreKey

	return cfg
}

func setupTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()

	db, err := database.Open(&cfg.Database)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv, err := New(cfg, db, opts...)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	t.Cleanup(func() { srv.hashLimiter.Stop() })

	return srv
}

func seedPurchase(t *testing.T, db *database.DB, txID string) *purchases.Store {
	t.Helper()

	store := purchases.NewStore(db)
	require.NoError(t, store.Create(context.Background(), &purchases.Purchase{
		TransactionID: txID,
		UserID:        "user-1",
		CourseID:      "course-go",
		Amount:        "10.00",
		Currency:      "EUR",
	}))
	return store
}

func signedBankForm(txID string) url.Values {
	fields := map[string]string{"clientid": "C1", "oid": txID, "amount": "10.00"}

	return url.Values{
		"clientid":   {"C1"},
		"oid":        {txID},
		"amount":     {"10.00"},
		"Response":   {"Approved"},
		"hashparams": {"clientid:oid:amount"},
		"hash":       {nestpay.Sign("clientid:oid:amount", fields, testStoreKey)},
	}
}

func serve(h http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.RemoteAddr = "192.0.2.10:40000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestServer_New(t *testing.T) {
	cfg := testConfig(t)
	srv := setupTestServer(t, cfg)

	if srv.Config() != cfg {
		t.Error("Config() should return the server config")
	}
	if srv.DB() == nil {
		t.Error("DB() should not be nil")
	}
	if _, ok := srv.store.(*purchases.Store); !ok {
		t.Errorf("Expected sqlite purchase store, got %T", srv.store)
	}
	if srv.verifier != nil {
		t.Error("PayPal verifier should not be built when disabled")
	}
	if srv.pruner == nil || srv.deliveries == nil {
		t.Error("Audit log should be enabled by default")
	}
}

func TestServer_RPCStoreDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.StoreDriverRPC
	cfg.Store.RPC.URL = "https://project.example"
	cfg.Store.RPC.ServiceKey = "service"

	srv := setupTestServer(t, cfg)

	if _, ok := srv.store.(*purchases.RPCStore); !ok {
		t.Errorf("Expected rpc purchase store, got %T", srv.store)
	}
}

func TestServer_InvalidPruneSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.PruneSchedule = "not a schedule"

	db, err := database.Open(&cfg.Database)
	require.NoError(t, err)
	defer db.Close()

	_, err = New(cfg, db)
	require.Error(t, err)
}

func TestServer_BankSettlement(t *testing.T) {
	cfg := testConfig(t)
	srv := setupTestServer(t, cfg)
	store := seedPurchase(t, srv.DB(), "TX123")
	h := srv.Handler()

	form := signedBankForm("TX123").Encode()

	for i := 0; i < 3; i++ {
		w := serve(h, http.MethodPost, "/payment-webhook?provider=raiffeisen", "application/x-www-form-urlencoded", form)
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		require.Equal(t, true, body["success"])
		require.Equal(t, "TX123", body["transaction_id"])
		require.Equal(t, "confirmed", body["status"])
		require.NotEmpty(t, w.Header().Get("X-Request-ID"))
	}

	p, err := store.Get(context.Background(), "TX123")
	require.NoError(t, err)
	require.Equal(t, purchases.StatusConfirmed, p.Status)

	n, err := store.CountEnrollments(context.Background(), "TX123")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	recorded, err := deliveries.NewStore(srv.DB()).ListByTransaction(context.Background(), "TX123")
	require.NoError(t, err)
	require.Len(t, recorded, 3)
	for _, d := range recorded {
		require.Equal(t, deliveries.DispositionSettled, d.Disposition)
	}
}

func TestServer_BankCorruptedHash(t *testing.T) {
	cfg := testConfig(t)
	srv := setupTestServer(t, cfg)
	store := seedPurchase(t, srv.DB(), "TX123")

	form := signedBankForm("TX123")
	form.Set("hash", "AAAA"+form.Get("hash")[4:])

	w := serve(srv.Handler(), http.MethodPost, "/payment-webhook", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotContains(t, w.Body.String(), testStoreKey)

	p, err := store.Get(context.Background(), "TX123")
	require.NoError(t, err)
	require.Equal(t, purchases.StatusPending, p.Status)
}

func TestServer_PayPalSettlement(t *testing.T) {
	cfg := testConfig(t)
	verifier := paypal.VerifierFunc(func(context.Context, http.Header, []byte) error { return nil })
	srv := setupTestServer(t, cfg, WithPayPalVerifier(verifier))
	store := seedPurchase(t, srv.DB(), "CAP-1")

	w := serve(srv.Handler(), http.MethodPost, "/payment-webhook?provider=paypal", "application/json",
		`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "confirmed", decodeBody(t, w)["status"])

	p, err := store.Get(context.Background(), "CAP-1")
	require.NoError(t, err)
	require.Equal(t, purchases.StatusConfirmed, p.Status)
}

func TestServer_QueryCallbackDisabled(t *testing.T) {
	srv := setupTestServer(t, testConfig(t))

	w := serve(srv.Handler(), http.MethodGet, "/payment-webhook?oid=TX1&Response=Approved", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_PaymentHash(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.RateLimit.HashGeneration = config.RateLimitRule{Max: 1, Window: time.Minute}
	srv := setupTestServer(t, cfg)

	body := `{"clientid":"C1","oid":"O1","amount":"5.00","okUrl":"https://a/ok","failUrl":"https://a/fail","islemtipi":"Auth","rnd":"r1"}`

	w := serve(srv.Handler(), http.MethodPost, "/generate-payment-hash", "application/json", body)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody(t, w)
	require.Equal(t, true, resp["success"])
	expected := nestpay.Compute([]string{"C1", "O1", "5.00", "https://a/ok", "https://a/fail", "Auth", "", "r1"}, testStoreKey)
	require.Equal(t, expected, resp["hash"])

	w = serve(srv.Handler(), http.MethodPost, "/generate-payment-hash", "application/json", body)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	srv := setupTestServer(t, testConfig(t), WithVersion("1.0.0"))
	h := srv.Handler()

	w := serve(h, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "1.0.0", decodeBody(t, w)["version"])

	w = serve(h, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	serve(h, http.MethodPost, "/payment-webhook", "application/x-www-form-urlencoded", "Response=Approved")

	w = serve(h, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "payhook_webhook_deliveries_total")

	w = serve(h, http.MethodGet, "/nope", "", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_StartStop(t *testing.T) {
	cfg := testConfig(t)
	srv := setupTestServer(t, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(context.Background())
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not stop")
	}
}
