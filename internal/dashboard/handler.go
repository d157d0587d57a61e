// Package dashboard serves the signed-in user's account overview and wallet.
package dashboard

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/ledger"
	"github.com/gighire/backend/internal/middleware"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
	"github.com/gighire/backend/internal/respond"
)

const (
	defaultTxLimit = 50
	maxTxLimit     = 200
)

type FundRequest struct {
	Amount int64 `json:"amount"`
}

type VerifyFundingRequest struct {
	Reference string `json:"reference"`
}

type Overview struct {
	User   *models.User   `json:"user"`
	Wallet *models.Wallet `json:"wallet"`
}

type Handler struct {
	users  repository.UserRepository
	ledger ledger.Service
	log    *slog.Logger
}

func NewHandler(users repository.UserRepository, l ledger.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{users: users, ledger: l, log: log}
}

// GET /api/v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	wallet, err := h.ledger.GetWallet(r.Context(), u.ID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, Overview{User: u, Wallet: wallet})
}

// GET /api/v1/wallet
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.ledger.GetWallet(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, wallet)
}

// GET /api/v1/wallet/transactions?limit=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultTxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respond.Error(w, h.log, apperr.Validation("limit must be a positive integer"))
			return
		}
		limit = min(n, maxTxLimit)
	}
	txs, err := h.ledger.ListTransactions(r.Context(), middleware.UserID(r.Context()), limit)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, txs)
}

// POST /api/v1/wallet/fund
func (h *Handler) Fund(w http.ResponseWriter, r *http.Request) {
	var req FundRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	u, err := h.currentUser(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	charge, err := h.ledger.InitializeFunding(r.Context(), u.ID, u.Email, req.Amount)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Created(w, charge)
}

// POST /api/v1/wallet/fund/verify
func (h *Handler) VerifyFunding(w http.ResponseWriter, r *http.Request) {
	var req VerifyFundingRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	tx, err := h.ledger.VerifyFunding(r.Context(), middleware.UserID(r.Context()), req.Reference)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, tx)
}

// GET /api/v1/admin/wallets/{id}/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	rec, err := h.ledger.Reconcile(r.Context(), id)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.OK(w, rec)
}

// GET /api/v1/admin/escrow/check
func (h *Handler) CheckEscrow(w http.ResponseWriter, r *http.Request) {
	check, err := h.ledger.CheckEscrowInvariant(r.Context())
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	if !check.Consistent {
		h.log.Error("escrow invariant violated", "total_escrow", check.TotalEscrow, "total_held", check.TotalHeld)
	}
	respond.OK(w, check)
}

func (h *Handler) currentUser(r *http.Request) (*models.User, error) {
	u, err := h.users.GetByID(r.Context(), middleware.UserID(r.Context()))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("account not found")
	}
	if err != nil {
		return nil, apperr.Internal("load account", err)
	}
	return u, nil
}
