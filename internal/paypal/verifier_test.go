package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/learnhub/payhook/internal/config"
)

const testEvent = `{"id":"WH-EVT-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1"}}`

type fakePayPal struct {
	status       string
	verifyStatus int
	tokenCalls   atomic.Int32
	verifyCalls  atomic.Int32
	lastRequest  map[string]any
}

func (f *fakePayPal) server(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("POST /v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		f.verifyCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&f.lastRequest)
		if f.verifyStatus != 0 {
			w.WriteHeader(f.verifyStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"verification_status":"` + f.status + `"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func transmissionHeaders() http.Header {
	h := http.Header{}
	h.Set(HeaderAuthAlgo, "SHA256withRSA")
	h.Set(HeaderCertURL, "https://api.paypal.com/v1/notifications/certs/CERT-1")
	h.Set(HeaderTransmissionID, "tx-id-1")
	h.Set(HeaderTransmissionSig, "sig==")
	h.Set(HeaderTransmissionTime, "2026-05-01T12:00:00Z")
	return h
}

func newTestVerifier(apiBase string) *APIVerifier {
	return NewAPIVerifier(config.PayPalGatewayConfig{
		APIBase:      apiBase,
		WebhookID:    "WH-1",
		ClientID:     "client",
		ClientSecret: "secret",
		Timeout:      2 * time.Second,
	})
}

func TestAPIVerifier_Success(t *testing.T) {
	fake := &fakePayPal{status: "SUCCESS"}
	srv := fake.server(t)

	v := newTestVerifier(srv.URL)

	err := v.Verify(context.Background(), transmissionHeaders(), []byte(testEvent))
	require.NoError(t, err)

	require.Equal(t, "WH-1", fake.lastRequest["webhook_id"])
	require.Equal(t, "tx-id-1", fake.lastRequest["transmission_id"])
	require.Equal(t, "SHA256withRSA", fake.lastRequest["auth_algo"])
	event, ok := fake.lastRequest["webhook_event"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "PAYMENT.CAPTURE.COMPLETED", event["event_type"])

	// Token is cached across calls.
	require.NoError(t, v.Verify(context.Background(), transmissionHeaders(), []byte(testEvent)))
	require.Equal(t, int32(1), fake.tokenCalls.Load())
	require.Equal(t, int32(2), fake.verifyCalls.Load())
}

func TestAPIVerifier_Failure(t *testing.T) {
	fake := &fakePayPal{status: "FAILURE"}
	srv := fake.server(t)

	err := newTestVerifier(srv.URL).Verify(context.Background(), transmissionHeaders(), []byte(testEvent))
	require.ErrorIs(t, err, ErrVerificationFailed)
}

func TestAPIVerifier_MissingHeaders(t *testing.T) {
	fake := &fakePayPal{status: "SUCCESS"}
	srv := fake.server(t)

	h := transmissionHeaders()
	h.Del(HeaderTransmissionSig)

	err := newTestVerifier(srv.URL).Verify(context.Background(), h, []byte(testEvent))
	require.ErrorIs(t, err, ErrMissingHeaders)
	require.Equal(t, int32(0), fake.verifyCalls.Load())
}

func TestAPIVerifier_FailsClosed(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		fake := &fakePayPal{verifyStatus: http.StatusInternalServerError}
		srv := fake.server(t)

		err := newTestVerifier(srv.URL).Verify(context.Background(), transmissionHeaders(), []byte(testEvent))
		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("unreachable", func(t *testing.T) {
		err := newTestVerifier("http://127.0.0.1:1").Verify(context.Background(), transmissionHeaders(), []byte(testEvent))
		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("bad credentials", func(t *testing.T) {
		fake := &fakePayPal{status: "SUCCESS"}
		srv := fake.server(t)

		v := NewAPIVerifier(config.PayPalGatewayConfig{
			APIBase:      srv.URL,
			WebhookID:    "WH-1",
			ClientID:     "client",
			ClientSecret: "wrong",
		})

		err := v.Verify(context.Background(), transmissionHeaders(), []byte(testEvent))
		require.Error(t, err)
		require.NotContains(t, err.Error(), "wrong")
		require.Equal(t, int32(0), fake.verifyCalls.Load())
	})

	t.Run("non-json body", func(t *testing.T) {
		fake := &fakePayPal{status: "SUCCESS"}
		srv := fake.server(t)

		err := newTestVerifier(srv.URL).Verify(context.Background(), transmissionHeaders(), []byte("not json"))
		require.ErrorIs(t, err, ErrVerificationFailed)
	})
}

func TestVerifierFunc(t *testing.T) {
	errBoom := errors.New("boom")
	var v Verifier = VerifierFunc(func(context.Context, http.Header, []byte) error { return errBoom })

	require.ErrorIs(t, v.Verify(context.Background(), nil, nil), errBoom)
}
