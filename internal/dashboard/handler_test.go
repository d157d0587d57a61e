package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gighire/backend/internal/auth"
	"github.com/gighire/backend/internal/middleware"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/testutil"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Reason  string          `json:"reason"`
}

func call(t *testing.T, h http.HandlerFunc, method, target, body string, user uuid.UUID) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithIdentity(req.Context(), auth.Identity{UserID: user, Role: models.RoleClient}))
	rec := httptest.NewRecorder()
	h(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestFundAndVerify(t *testing.T) {
	env := testutil.NewEnv()
	h := NewHandler(env.Store.Users(), env.Ledger, env.Log)
	bk := env.Book(t, 10_000, 10_000, models.BookingConfirmed)

	rec, out := call(t, h.Fund, http.MethodPost, "/api/v1/wallet/fund", `{"amount":25000}`, bk.Client)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var charge struct {
		Reference string `json:"reference"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &charge))
	require.NotEmpty(t, charge.Reference)

	body := `{"reference":"` + charge.Reference + `"}`
	rec, _ = call(t, h.VerifyFunding, http.MethodPost, "/api/v1/wallet/fund/verify", body, bk.Client)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A second verification returns the same credit instead of paying twice.
	rec, _ = call(t, h.VerifyFunding, http.MethodPost, "/api/v1/wallet/fund/verify", body, bk.Client)
	require.Equal(t, http.StatusOK, rec.Code)

	_, out = call(t, h.GetWallet, http.MethodGet, "/api/v1/wallet", "", bk.Client)
	var wallet models.Wallet
	require.NoError(t, json.Unmarshal(out.Data, &wallet))
	assert.Equal(t, int64(25000), wallet.Balance)

	// Another user cannot claim the reference.
	rec, out = call(t, h.VerifyFunding, http.MethodPost, "/api/v1/wallet/fund/verify", body, bk.Worker)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", out.Reason)
}

func TestFundRejectsNonPositiveAmount(t *testing.T) {
	env := testutil.NewEnv()
	h := NewHandler(env.Store.Users(), env.Ledger, env.Log)
	bk := env.Book(t, 10_000, 10_000, models.BookingConfirmed)

	rec, out := call(t, h.Fund, http.MethodPost, "/api/v1/wallet/fund", `{"amount":0}`, bk.Client)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", out.Reason)
}

func TestGetMeIncludesWallet(t *testing.T) {
	env := testutil.NewEnv()
	h := NewHandler(env.Store.Users(), env.Ledger, env.Log)
	bk := env.Book(t, 50_000, 20_000, models.BookingConfirmed)

	rec, out := call(t, h.GetMe, http.MethodGet, "/api/v1/me", "", bk.Client)
	require.Equal(t, http.StatusOK, rec.Code)
	var o Overview
	require.NoError(t, json.Unmarshal(out.Data, &o))
	assert.Equal(t, bk.Client, o.User.ID)
	assert.Equal(t, int64(30_000), o.Wallet.Balance)
	assert.Equal(t, int64(20_000), o.Wallet.Escrow)

	rec, _ = call(t, h.GetMe, http.MethodGet, "/api/v1/me", "", uuid.New())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransactionsAndEscrowCheck(t *testing.T) {
	env := testutil.NewEnv()
	h := NewHandler(env.Store.Users(), env.Ledger, env.Log)
	bk := env.Book(t, 50_000, 20_000, models.BookingConfirmed)

	rec, out := call(t, h.ListTransactions, http.MethodGet, "/api/v1/wallet/transactions?limit=10", "", bk.Client)
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []models.WalletTransaction
	require.NoError(t, json.Unmarshal(out.Data, &txs))
	require.NotEmpty(t, txs)

	rec, _ = call(t, h.ListTransactions, http.MethodGet, "/api/v1/wallet/transactions?limit=abc", "", bk.Client)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = call(t, h.CheckEscrow, http.MethodGet, "/api/v1/admin/escrow/check", "", uuid.New())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_escrow":20000,"total_held":20000,"consistent":true}`, string(out.Data))
}
