// Package memory is an in-process Store. All repositories share one mutex, so
// every conditional write is atomic with respect to the others; WithTx holds
// the mutex for the whole callback and restores a snapshot on error.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
)

type state struct {
	jobs         map[uuid.UUID]models.Job
	applications map[uuid.UUID]models.Application
	bookings     map[uuid.UUID]models.Booking
	wallets      map[uuid.UUID]models.Wallet
	transactions []models.WalletTransaction
	txKeys       map[string]int
	rules        map[uuid.UUID]models.AutoReleaseRule
	logs         []models.AutoReleaseLog
	users        map[uuid.UUID]models.User
}

func newState() *state {
	return &state{
		jobs:         map[uuid.UUID]models.Job{},
		applications: map[uuid.UUID]models.Application{},
		bookings:     map[uuid.UUID]models.Booking{},
		wallets:      map[uuid.UUID]models.Wallet{},
		txKeys:       map[string]int{},
		rules:        map[uuid.UUID]models.AutoReleaseRule{},
		users:        map[uuid.UUID]models.User{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.applications {
		c.applications[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	c.transactions = append([]models.WalletTransaction(nil), s.transactions...)
	for k, v := range s.txKeys {
		c.txKeys[k] = v
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	c.logs = append([]models.AutoReleaseLog(nil), s.logs...)
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

type Store struct {
	mu   *sync.Mutex
	data **state
	inTx bool
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	st := newState()
	return &Store{mu: &sync.Mutex{}, data: &st}
}

// lock acquires the store mutex unless the caller already holds it via WithTx.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) st() *state { return *s.data }

func (s *Store) Jobs() repository.JobRepository                 { return jobRepo{s} }
func (s *Store) Applications() repository.ApplicationRepository { return applicationRepo{s} }
func (s *Store) Bookings() repository.BookingRepository         { return bookingRepo{s} }
func (s *Store) Wallets() repository.WalletRepository           { return walletRepo{s} }
func (s *Store) Transactions() repository.TransactionRepository { return transactionRepo{s} }
func (s *Store) Rules() repository.RuleRepository               { return ruleRepo{s} }
func (s *Store) ReleaseLogs() repository.ReleaseLogRepository   { return releaseLogRepo{s} }
func (s *Store) Users() repository.UserRepository               { return userRepo{s} }

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st().clone()
	tx := &Store{mu: s.mu, data: s.data, inTx: true}
	if err := fn(tx); err != nil {
		*s.data = snapshot
		return err
	}
	return nil
}
