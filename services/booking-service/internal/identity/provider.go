// Package identity reconciles the consultant directory with identity provider accounts.
package identity

import (
	"context"
	"errors"
)

var (
	ErrAccountNotFound = errors.New("identity account not found")
	ErrAccountExists   = errors.New("identity account already exists")
)

// Provider statuses the reconciler interprets; anything else is reported verbatim.
const (
	StatusConfirmed           = "CONFIRMED"
	StatusForceChangePassword = "FORCE_CHANGE_PASSWORD"
)

// Account is a provider-held user, keyed by email.
type Account struct {
	Username     string
	Email        string
	Status       string
	Enabled      bool
	ConsultantID string
}

type CreateInput struct {
	Email             string
	ConsultantID      int64
	TemporaryPassword string
	// SendInvite lets the provider mail the temporary password; otherwise delivery is suppressed.
	SendInvite bool
}

type Provider interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	CreateAccount(ctx context.Context, in CreateInput) (Account, error)
	SetTemporaryPassword(ctx context.Context, username, password string) error
	DeleteAccount(ctx context.Context, username string) error
	ListAccounts(ctx context.Context) ([]Account, error)
}
