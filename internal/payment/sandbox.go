package payment

import (
	"context"
	"sync"
)

// Sandbox approves every charge it initialized. Used for local development
// with the in-memory store.
type Sandbox struct {
	mu      sync.Mutex
	charges map[string]ChargeRequest
}

var _ Provider = (*Sandbox)(nil)

func NewSandbox() *Sandbox {
	return &Sandbox{charges: map[string]ChargeRequest{}}
}

func (s *Sandbox) Name() string { return "sandbox" }

func (s *Sandbox) InitializeCharge(_ context.Context, req ChargeRequest) (*Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.charges[req.Reference] = req
	return &Charge{Reference: req.Reference, AuthorizationURL: "sandbox://pay/" + req.Reference}, nil
}

func (s *Sandbox) VerifyPayment(_ context.Context, reference string) (*Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.charges[reference]
	if !ok {
		return nil, ErrUnknownReference
	}
	return &Verification{Reference: reference, Status: StatusSuccess, Amount: req.Amount, Metadata: req.Metadata}, nil
}
