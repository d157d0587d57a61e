// Package payment talks to the external payment gateway used to fund wallets.
package payment

import (
	"context"
	"errors"
)

const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
	StatusPending   = "pending"
)

var ErrUnknownReference = errors.New("payment reference not found")

// Provider is the capability the wallet needs from a gateway. Amounts are kobo.
type Provider interface {
	Name() string
	InitializeCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	VerifyPayment(ctx context.Context, reference string) (*Verification, error)
}

type ChargeRequest struct {
	Email     string
	Amount    int64
	Reference string
	Metadata  map[string]string
}

type Charge struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code,omitempty"`
}

type Verification struct {
	Reference string            `json:"reference"`
	Status    string            `json:"status"`
	Amount    int64             `json:"amount"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (v *Verification) Succeeded() bool { return v.Status == StatusSuccess }
