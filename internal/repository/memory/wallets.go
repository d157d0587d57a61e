package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
)

type walletRepo struct{ s *Store }

func (r walletRepo) Get(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	defer r.s.lock()()
	w, ok := r.s.st().wallets[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (r walletRepo) ensure(userID uuid.UUID) models.Wallet {
	w, ok := r.s.st().wallets[userID]
	if !ok {
		now := time.Now().UTC()
		w = models.Wallet{UserID: userID, CreatedAt: now, UpdatedAt: now}
		r.s.st().wallets[userID] = w
	}
	return w
}

func (r walletRepo) Ensure(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	defer r.s.lock()()
	w := r.ensure(userID)
	return &w, nil
}

// update applies fn to an existing wallet and stores the result if fn succeeds.
func (r walletRepo) update(userID uuid.UUID, missing error, fn func(w *models.Wallet) error) (*models.Wallet, error) {
	defer r.s.lock()()
	w, ok := r.s.st().wallets[userID]
	if !ok {
		return nil, missing
	}
	if err := fn(&w); err != nil {
		return nil, err
	}
	w.UpdatedAt = time.Now().UTC()
	r.s.st().wallets[userID] = w
	return &w, nil
}

func (r walletRepo) Hold(_ context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error) {
	return r.update(userID, repository.ErrInsufficientFunds, func(w *models.Wallet) error {
		if w.Balance < amount {
			return repository.ErrInsufficientFunds
		}
		w.Balance -= amount
		w.Escrow += amount
		return nil
	})
}

func (r walletRepo) Credit(_ context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error) {
	defer r.s.lock()()
	w := r.ensure(userID)
	w.Balance += amount
	w.UpdatedAt = time.Now().UTC()
	r.s.st().wallets[userID] = w
	return &w, nil
}

func (r walletRepo) DebitEscrow(_ context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error) {
	return r.update(userID, repository.ErrEscrowShortfall, func(w *models.Wallet) error {
		if w.Escrow < amount {
			return repository.ErrEscrowShortfall
		}
		w.Escrow -= amount
		return nil
	})
}

func (r walletRepo) ReturnEscrow(_ context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error) {
	return r.update(userID, repository.ErrEscrowShortfall, func(w *models.Wallet) error {
		if w.Escrow < amount {
			return repository.ErrEscrowShortfall
		}
		w.Escrow -= amount
		w.Balance += amount
		return nil
	})
}

func (r walletRepo) SumEscrow(_ context.Context) (int64, error) {
	defer r.s.lock()()
	var sum int64
	for _, w := range r.s.st().wallets {
		sum += w.Escrow
	}
	return sum, nil
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) Append(_ context.Context, t *models.WalletTransaction) error {
	defer r.s.lock()()
	st := r.s.st()
	if _, ok := st.txKeys[t.IdempotencyKey]; ok {
		return repository.ErrDuplicate
	}
	st.txKeys[t.IdempotencyKey] = len(st.transactions)
	st.transactions = append(st.transactions, *t)
	return nil
}

func (r transactionRepo) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]*models.WalletTransaction, error) {
	defer r.s.lock()()
	out := r.history(userID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func (r transactionRepo) History(_ context.Context, userID uuid.UUID) ([]*models.WalletTransaction, error) {
	defer r.s.lock()()
	return r.history(userID), nil
}

func (r transactionRepo) history(userID uuid.UUID) []*models.WalletTransaction {
	var out []*models.WalletTransaction
	for _, t := range r.s.st().transactions {
		if t.UserID == userID {
			t := t
			out = append(out, &t)
		}
	}
	return out
}

func (r transactionRepo) GetByKey(_ context.Context, key string) (*models.WalletTransaction, error) {
	defer r.s.lock()()
	st := r.s.st()
	i, ok := st.txKeys[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t := st.transactions[i]
	return &t, nil
}
