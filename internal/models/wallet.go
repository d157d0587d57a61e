package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet transaction types. Every counter change writes exactly one of these.
const (
	TxFund    = "fund"
	TxHold    = "hold"
	TxRelease = "release"
	TxPayout  = "payout"
	TxRefund  = "refund"
)

// Wallet keeps spendable Balance and held Escrow as separate counters.
type Wallet struct {
	UserID    uuid.UUID `json:"user_id"`
	Balance   int64     `json:"balance"`
	Escrow    int64     `json:"escrow"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WalletTransaction struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	BookingID      *uuid.UUID `json:"booking_id,omitempty"`
	Type           string     `json:"type"`
	Amount         int64      `json:"amount"`
	BalanceAfter   int64      `json:"balance_after"`
	EscrowAfter    int64      `json:"escrow_after"`
	IdempotencyKey string     `json:"idempotency_key"`
	Reference      string     `json:"reference,omitempty"`
	Description    string     `json:"description,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Apply returns the counters after replaying t on top of balance and escrow.
func (t *WalletTransaction) Apply(balance, escrow int64) (int64, int64) {
	switch t.Type {
	case TxFund, TxPayout:
		balance += t.Amount
	case TxHold:
		balance -= t.Amount
		escrow += t.Amount
	case TxRelease:
		escrow -= t.Amount
	case TxRefund:
		escrow -= t.Amount
		balance += t.Amount
	}
	return balance, escrow
}
