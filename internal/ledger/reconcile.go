package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
)

type Reconciliation struct {
	UserID          uuid.UUID `json:"user_id"`
	Balance         int64     `json:"balance"`
	Escrow          int64     `json:"escrow"`
	ReplayedBalance int64     `json:"replayed_balance"`
	ReplayedEscrow  int64     `json:"replayed_escrow"`
	Transactions    int       `json:"transactions"`
	Consistent      bool      `json:"consistent"`
}

type EscrowCheck struct {
	TotalEscrow int64 `json:"total_escrow"`
	TotalHeld   int64 `json:"total_held"`
	Consistent  bool  `json:"consistent"`
}

// Replay folds a transaction history into wallet counters.
func Replay(history []*models.WalletTransaction) (balance, escrow int64) {
	for _, t := range history {
		balance, escrow = t.Apply(balance, escrow)
	}
	return balance, escrow
}

// Reconcile compares a wallet's counters with its replayed transactions.
func (s *service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	w, err := s.store.Wallets().Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		w = &models.Wallet{UserID: userID}
	} else if err != nil {
		return nil, apperr.Internal("load wallet", err)
	}
	history, err := s.store.Transactions().History(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("load history", err)
	}
	balance, escrow := Replay(history)
	r := &Reconciliation{
		UserID:          userID,
		Balance:         w.Balance,
		Escrow:          w.Escrow,
		ReplayedBalance: balance,
		ReplayedEscrow:  escrow,
		Transactions:    len(history),
		Consistent:      balance == w.Balance && escrow == w.Escrow,
	}
	if !r.Consistent {
		s.log.Error("wallet does not match its transaction history",
			"user_id", userID,
			"balance", w.Balance, "replayed_balance", balance,
			"escrow", w.Escrow, "replayed_escrow", escrow,
		)
	}
	return r, nil
}

// CheckEscrowInvariant compares total escrow with the budgets of held bookings.
func (s *service) CheckEscrowInvariant(ctx context.Context) (*EscrowCheck, error) {
	escrow, err := s.store.Wallets().SumEscrow(ctx)
	if err != nil {
		return nil, apperr.Internal("sum escrow", err)
	}
	held, err := s.store.Bookings().SumHeld(ctx)
	if err != nil {
		return nil, apperr.Internal("sum held bookings", err)
	}
	return &EscrowCheck{TotalEscrow: escrow, TotalHeld: held, Consistent: escrow == held}, nil
}
