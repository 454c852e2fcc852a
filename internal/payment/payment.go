// Package payment is the boundary to the external payment provider.
package payment

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// Account is a freshly created connected account for a seller.
type Account struct {
	ID            string
	OnboardingURL string
}

// IntentParams describes the charge for one transaction.
type IntentParams struct {
	Amount               decimal.Decimal // total charged to the requester
	PlatformFee          decimal.Decimal // kept by the platform
	Currency             string
	DestinationAccountID string
	TransactionID        uuid.UUID
}

// Provider is implemented by payment backends.
type Provider interface {
	// CreateAccount opens a connected account and returns its onboarding link.
	CreateAccount(ctx context.Context, email string) (Account, error)
	// OnboardingLink issues a fresh onboarding link for an existing account.
	OnboardingLink(ctx context.Context, accountID string) (string, error)
	// AccountOnboarded reports whether the account may receive transfers.
	AccountOnboarded(ctx context.Context, accountID string) (bool, error)
	// CreatePaymentIntent returns the client secret used to collect payment.
	CreatePaymentIntent(ctx context.Context, p IntentParams) (string, error)
}

// Outcome is the provider-reported result of a payment, keyed by transaction.
type Outcome struct {
	EventID       string
	TransactionID uuid.UUID
	Succeeded     bool
	Reason        string
}
