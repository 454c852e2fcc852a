package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/and161185/flour/internal/fee"
)

// MetadataTransactionID is the PaymentIntent metadata key carrying our transaction id.
const MetadataTransactionID = "transaction_id"

// ErrIgnoredEvent marks webhook events that carry no payment outcome.
var ErrIgnoredEvent = errors.New("ignored webhook event")

// StripeConfig configures the Stripe adapter.
type StripeConfig struct {
	SecretKey  string
	RefreshURL string
	ReturnURL  string
	Currency   string
}

// Stripe implements Provider with Stripe Connect (express accounts, destination charges).
type Stripe struct {
	api *client.API
	cfg StripeConfig
}

var _ Provider = (*Stripe)(nil)

// NewStripe constructs the adapter with its own API client.
func NewStripe(cfg StripeConfig) *Stripe {
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return &Stripe{api: sc, cfg: cfg}
}

func (s *Stripe) CreateAccount(ctx context.Context, email string) (Account, error) {
	ap := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	ap.Context = ctx
	acct, err := s.api.Accounts.New(ap)
	if err != nil {
		return Account{}, fmt.Errorf("stripe: create account: %w", err)
	}

	url, err := s.OnboardingLink(ctx, acct.ID)
	if err != nil {
		return Account{}, err
	}
	return Account{ID: acct.ID, OnboardingURL: url}, nil
}

func (s *Stripe) OnboardingLink(ctx context.Context, accountID string) (string, error) {
	lp := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(s.cfg.RefreshURL),
		ReturnURL:  stripe.String(s.cfg.ReturnURL),
		Type:       stripe.String("account_onboarding"),
	}
	lp.Context = ctx
	link, err := s.api.AccountLinks.New(lp)
	if err != nil {
		return "", fmt.Errorf("stripe: account link: %w", err)
	}
	return link.URL, nil
}

func (s *Stripe) AccountOnboarded(ctx context.Context, accountID string) (bool, error) {
	p := &stripe.AccountParams{}
	p.Context = ctx
	acct, err := s.api.Accounts.GetByID(accountID, p)
	if err != nil {
		return false, fmt.Errorf("stripe: get account: %w", err)
	}
	return acct.DetailsSubmitted && acct.ChargesEnabled, nil
}

func (s *Stripe) CreatePaymentIntent(ctx context.Context, in IntentParams) (string, error) {
	currency := in.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	p := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(fee.ToMinorUnits(in.Amount)),
		Currency:             stripe.String(currency),
		ApplicationFeeAmount: stripe.Int64(fee.ToMinorUnits(in.PlatformFee)),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(in.DestinationAccountID),
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{Enabled: stripe.Bool(true)},
	}
	p.AddMetadata(MetadataTransactionID, in.TransactionID.String())
	p.Context = ctx
	pi, err := s.api.PaymentIntents.New(p)
	if err != nil {
		return "", fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return pi.ClientSecret, nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the payment
// outcome. Events other than payment_intent.succeeded / payment_failed yield ErrIgnoredEvent.
func ParseWebhook(payload []byte, sigHeader, secret string) (Outcome, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("stripe: verify webhook: %w", err)
	}

	var succeeded bool
	switch ev.Type {
	case "payment_intent.succeeded":
		succeeded = true
	case "payment_intent.payment_failed":
	default:
		return Outcome{EventID: ev.ID}, ErrIgnoredEvent
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return Outcome{}, fmt.Errorf("stripe: decode payment intent: %w", err)
	}
	txID, err := uuid.FromString(pi.Metadata[MetadataTransactionID])
	if err != nil {
		return Outcome{}, fmt.Errorf("stripe: payment intent %s: bad %s: %w", pi.ID, MetadataTransactionID, err)
	}

	out := Outcome{EventID: ev.ID, TransactionID: txID, Succeeded: succeeded}
	if !succeeded && pi.LastPaymentError != nil {
		out.Reason = pi.LastPaymentError.Msg
	}
	return out, nil
}
