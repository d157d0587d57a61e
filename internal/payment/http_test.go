package payment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "/transaction/verify/fund_123", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Verification successful",
			"data":    map[string]any{"reference": "fund_123", "status": "success", "amount": 5_000_000},
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "sk_test", "", time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	v, err := p.VerifyPayment(context.Background(), "fund_123")
	require.NoError(t, err)
	assert.True(t, v.Succeeded())
	assert.Equal(t, int64(5_000_000), v.Amount)
}

func TestHTTPProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Invalid key"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "bad", "", time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := p.InitializeCharge(context.Background(), ChargeRequest{Email: "a@b.c", Amount: 100, Reference: "r1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid key")
}

func TestSandboxVerifiesOnlyKnownReferences(t *testing.T) {
	s := NewSandbox()
	ctx := context.Background()
	_, err := s.VerifyPayment(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownReference)

	_, err = s.InitializeCharge(ctx, ChargeRequest{Reference: "r1", Amount: 700})
	require.NoError(t, err)
	v, err := s.VerifyPayment(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), v.Amount)
}
