package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/payment"
	"github.com/gighire/backend/internal/repository"
)

const fundingPrefix = "fund_"

func fundingKey(reference string) string { return "fund:" + reference }

// InitializeFunding starts a wallet top-up with the payment provider. The
// reference encodes the user so verification can reject foreign references.
func (s *service) InitializeFunding(ctx context.Context, userID uuid.UUID, email string, amount int64) (*payment.Charge, error) {
	if amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	reference := fundingPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	charge, err := s.provider.InitializeCharge(ctx, payment.ChargeRequest{
		Email:     email,
		Amount:    amount,
		Reference: reference,
		Metadata:  map[string]string{"user_id": userID.String(), "purpose": "wallet_funding"},
	})
	if err != nil {
		return nil, apperr.Provider("initialize charge", err)
	}
	return charge, nil
}

// VerifyFunding credits the wallet once per successful reference.
func (s *service) VerifyFunding(ctx context.Context, userID uuid.UUID, reference string) (*models.WalletTransaction, error) {
	if reference == "" {
		return nil, apperr.Validation("reference is required")
	}
	if existing, err := s.store.Transactions().GetByKey(ctx, fundingKey(reference)); err == nil {
		if existing.UserID != userID {
			return nil, apperr.Unauthorized("reference belongs to another user")
		}
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal("look up funding", err)
	}

	v, err := s.provider.VerifyPayment(ctx, reference)
	if errors.Is(err, payment.ErrUnknownReference) {
		return nil, apperr.NotFound("payment reference not found")
	}
	if err != nil {
		return nil, apperr.Provider("verify payment", err)
	}
	if !v.Succeeded() {
		return nil, apperr.InvalidState("payment not successful").With("paymentStatus", v.Status)
	}
	if owner, ok := v.Metadata["user_id"]; ok && owner != userID.String() {
		return nil, apperr.Unauthorized("reference belongs to another user")
	}
	if v.Amount <= 0 {
		return nil, apperr.Provider("verify payment", errors.New("verified amount is not positive"))
	}

	var credited *models.WalletTransaction
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		w, err := tx.Wallets().Credit(ctx, userID, v.Amount)
		if err != nil {
			return err
		}
		credited = &models.WalletTransaction{
			ID:             uuid.New(),
			UserID:         userID,
			Type:           models.TxFund,
			Amount:         v.Amount,
			BalanceAfter:   w.Balance,
			EscrowAfter:    w.Escrow,
			IdempotencyKey: fundingKey(reference),
			Reference:      reference,
			Description:    "wallet funding via " + s.provider.Name(),
			CreatedAt:      s.now(),
		}
		return tx.Transactions().Append(ctx, credited)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// A concurrent verification won; the credit above was rolled back.
		existing, getErr := s.store.Transactions().GetByKey(ctx, fundingKey(reference))
		if getErr != nil {
			return nil, apperr.Internal("look up funding", getErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, apperr.Internal("credit wallet", err)
	}
	s.log.Info("wallet funded", "user_id", userID, "reference", reference, "amount", v.Amount)
	return credited, nil
}
