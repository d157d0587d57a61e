// Package ledger moves money between wallet balances and escrow. Every
// movement writes a WalletTransaction with a deterministic idempotency key,
// and release/refund are guarded by a conditional update on the booking's
// payment status so a second call settles nothing.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/metrics"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/payment"
	"github.com/gighire/backend/internal/repository"
)

// Settlement sources, recorded on metrics and transaction descriptions.
const (
	SourceClientConfirmation   = "client_confirmation"
	SourceAutoRelease          = "auto_release"
	SourceWorkerCancellation   = "worker_cancellation"
	SourceSelectionDeclined    = "selection_declined"
	SourceSelectionExpired     = "selection_expired"
	SourceCancellationApproved = "cancellation_approved"
	SourceClientRefund         = "client_refund"
	SourceDisputeResolution    = "dispute_resolution"
)

// Request describes one settlement. From lists the workflow statuses the
// booking may be in; the booking package derives it from its transition table.
type Request struct {
	BookingID uuid.UUID
	Reason    string
	Source    string
	From      []models.BookingStatus
}

type Outcome struct {
	Booking        *models.Booking `json:"booking"`
	AlreadySettled bool            `json:"already_settled"`
}

type Service interface {
	Hold(ctx context.Context, tx repository.Store, b *models.Booking) error
	ReleaseEscrow(ctx context.Context, store repository.Store, req Request) (*Outcome, error)
	RefundEscrow(ctx context.Context, store repository.Store, req Request) (*Outcome, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*models.WalletTransaction, error)
	InitializeFunding(ctx context.Context, userID uuid.UUID, email string, amount int64) (*payment.Charge, error)
	VerifyFunding(ctx context.Context, userID uuid.UUID, reference string) (*models.WalletTransaction, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error)
	CheckEscrowInvariant(ctx context.Context) (*EscrowCheck, error)
}

type service struct {
	store    repository.Store
	provider payment.Provider
	metrics  *metrics.Collector
	log      *slog.Logger
	now      func() time.Time
}

var _ Service = (*service)(nil)

type Option func(*service)

func WithClock(now func() time.Time) Option { return func(s *service) { s.now = now } }

func WithMetrics(m *metrics.Collector) Option { return func(s *service) { s.metrics = m } }

func NewService(store repository.Store, provider payment.Provider, log *slog.Logger, opts ...Option) Service {
	s := &service{store: store, provider: provider, log: log, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func key(bookingID uuid.UUID, kind string) string {
	return "booking:" + bookingID.String() + ":" + kind
}

func (s *service) appendTx(ctx context.Context, tx repository.Store, w *models.Wallet, bookingID *uuid.UUID, kind string, amount int64, idemKey, reference, description string) error {
	t := &models.WalletTransaction{
		ID:             uuid.New(),
		UserID:         w.UserID,
		BookingID:      bookingID,
		Type:           kind,
		Amount:         amount,
		BalanceAfter:   w.Balance,
		EscrowAfter:    w.Escrow,
		IdempotencyKey: idemKey,
		Reference:      reference,
		Description:    description,
		CreatedAt:      s.now(),
	}
	if err := tx.Transactions().Append(ctx, t); err != nil {
		return fmt.Errorf("append %s transaction: %w", kind, err)
	}
	return nil
}

// Hold runs inside the caller's transaction. The wallet update re-checks the
// balance in the same statement that moves it.
func (s *service) Hold(ctx context.Context, tx repository.Store, b *models.Booking) error {
	w, err := tx.Wallets().Hold(ctx, b.ClientID, b.BudgetAmount)
	if errors.Is(err, repository.ErrInsufficientFunds) {
		var available int64
		if cur, getErr := tx.Wallets().Get(ctx, b.ClientID); getErr == nil {
			available = cur.Balance
		}
		return apperr.InsufficientFunds(b.BudgetAmount, available)
	}
	if err != nil {
		return apperr.Internal("place escrow hold", err)
	}
	id := b.ID
	if err := s.appendTx(ctx, tx, w, &id, models.TxHold, b.BudgetAmount, key(b.ID, models.TxHold), "", "escrow hold for booking"); err != nil {
		return apperr.Internal("record escrow hold", err)
	}
	s.metrics.RecordHold()
	return nil
}

func (s *service) ReleaseEscrow(ctx context.Context, store repository.Store, req Request) (*Outcome, error) {
	return s.settle(ctx, store, req, models.BookingCompleted, models.PaymentReleased)
}

func (s *service) RefundEscrow(ctx context.Context, store repository.Store, req Request) (*Outcome, error) {
	return s.settle(ctx, store, req, models.BookingCancelled, models.PaymentRefunded)
}

func (s *service) settle(ctx context.Context, store repository.Store, req Request, to models.BookingStatus, target models.PaymentStatus) (*Outcome, error) {
	if store == nil {
		store = s.store
	}
	var out *Outcome
	err := store.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.Bookings().GetByID(ctx, req.BookingID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("booking not found")
		}
		if err != nil {
			return apperr.Internal("load booking", err)
		}
		if done, err := checkSettleable(b, req, target); done || err != nil {
			if done {
				out = &Outcome{Booking: b, AlreadySettled: true}
			}
			return err
		}

		settled, err := tx.Bookings().Settle(ctx, b.ID, req.From, to, target, s.now())
		if errors.Is(err, repository.ErrConflict) {
			// Lost a race or the workflow moved on; re-read and classify.
			cur, getErr := tx.Bookings().GetByID(ctx, b.ID)
			if getErr != nil {
				return apperr.Internal("reload booking", getErr)
			}
			if cur.PaymentStatus == target {
				out = &Outcome{Booking: cur, AlreadySettled: true}
				return nil
			}
			return apperr.InvalidState(fmt.Sprintf("cannot settle booking in status %s", cur.Status)).
				With("status", cur.Status).With("paymentStatus", cur.PaymentStatus)
		}
		if err != nil {
			return apperr.Internal("settle booking", err)
		}

		if err := s.moveFunds(ctx, tx, settled, target, req); err != nil {
			return err
		}
		out = &Outcome{Booking: settled}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.AlreadySettled {
		kind := models.TxRelease
		if target == models.PaymentRefunded {
			kind = models.TxRefund
		}
		s.metrics.RecordSettlement(kind, req.Source, out.Booking.BudgetAmount)
		s.log.Info("escrow settled",
			"booking_id", out.Booking.ID,
			"kind", kind,
			"source", req.Source,
			"amount", out.Booking.BudgetAmount,
			"reason", req.Reason,
		)
	}
	return out, nil
}

// checkSettleable reports done=true when the booking already reached target.
func checkSettleable(b *models.Booking, req Request, target models.PaymentStatus) (bool, error) {
	if b.PaymentStatus == target {
		return true, nil
	}
	if b.PaymentStatus != models.PaymentHeld {
		return false, apperr.InvalidState(fmt.Sprintf("booking payment is %s", b.PaymentStatus)).
			With("paymentStatus", b.PaymentStatus)
	}
	if b.Status == models.BookingDisputed && req.Source != SourceDisputeResolution {
		return false, apperr.InvalidState("booking is under dispute")
	}
	return false, nil
}

func (s *service) moveFunds(ctx context.Context, tx repository.Store, b *models.Booking, target models.PaymentStatus, req Request) error {
	id := b.ID
	desc := req.Source
	if req.Reason != "" {
		desc = req.Source + ": " + req.Reason
	}
	switch target {
	case models.PaymentReleased:
		client, err := tx.Wallets().DebitEscrow(ctx, b.ClientID, b.BudgetAmount)
		if err != nil {
			return apperr.Internal("debit client escrow", err)
		}
		if err := s.appendTx(ctx, tx, client, &id, models.TxRelease, b.BudgetAmount, key(b.ID, models.TxRelease), "", desc); err != nil {
			return apperr.Internal("record release", err)
		}
		worker, err := tx.Wallets().Credit(ctx, b.WorkerID, b.BudgetAmount)
		if err != nil {
			return apperr.Internal("credit worker", err)
		}
		if err := s.appendTx(ctx, tx, worker, &id, models.TxPayout, b.BudgetAmount, key(b.ID, models.TxPayout), "", desc); err != nil {
			return apperr.Internal("record payout", err)
		}
	case models.PaymentRefunded:
		client, err := tx.Wallets().ReturnEscrow(ctx, b.ClientID, b.BudgetAmount)
		if err != nil {
			return apperr.Internal("return client escrow", err)
		}
		if err := s.appendTx(ctx, tx, client, &id, models.TxRefund, b.BudgetAmount, key(b.ID, models.TxRefund), "", desc); err != nil {
			return apperr.Internal("record refund", err)
		}
	}
	return nil
}

func (s *service) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	w, err := s.store.Wallets().Ensure(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("load wallet", err)
	}
	return w, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*models.WalletTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	list, err := s.store.Transactions().ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal("list transactions", err)
	}
	return list, nil
}
