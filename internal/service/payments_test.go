package service

import (
	"context"
	"errors"
	"testing"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/payment"
)

type fakePayments struct {
	onboarded map[string]bool
	accounts  int
	links     int
	intents   []payment.IntentParams

	createErr error
	intentErr error
}

var _ payment.Provider = (*fakePayments)(nil)

func (p *fakePayments) CreateAccount(_ context.Context, email string) (payment.Account, error) {
	if p.createErr != nil {
		return payment.Account{}, p.createErr
	}
	p.accounts++
	return payment.Account{ID: "acct_" + email, OnboardingURL: "https://connect.test/onboard/" + email}, nil
}
func (p *fakePayments) OnboardingLink(_ context.Context, accountID string) (string, error) {
	p.links++
	return "https://connect.test/refresh/" + accountID, nil
}
func (p *fakePayments) AccountOnboarded(_ context.Context, accountID string) (bool, error) {
	return p.onboarded[accountID], nil
}
func (p *fakePayments) CreatePaymentIntent(_ context.Context, in payment.IntentParams) (string, error) {
	if p.intentErr != nil {
		return "", p.intentErr
	}
	p.intents = append(p.intents, in)
	return "pi_secret_" + in.TransactionID.String(), nil
}

func TestPayments_NotConfigured(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if _, err := f.m.SetupSellerAccount(as(f.alice)); !errors.Is(err, errs.ErrPayment) {
		t.Fatalf("want ErrPayment, got %v", err)
	}
}

func TestSellerOnboarding(t *testing.T) {
	t.Parallel()
	pay := &fakePayments{onboarded: map[string]bool{}}
	f := newFixture(t, WithPayments(pay))

	url, err := f.m.SetupSellerAccount(as(f.alice))
	if err != nil || url != "https://connect.test/onboard/alice@state.edu" {
		t.Fatalf("SetupSellerAccount = %q, %v", url, err)
	}
	u, _ := f.m.User(f.alice.ID)
	if u.PaymentAccountID != "acct_alice@state.edu" || u.CanReceivePayments() {
		t.Fatalf("unexpected user after setup: %+v", u)
	}

	url, err = f.m.SetupSellerAccount(as(f.alice))
	if err != nil || url != "https://connect.test/refresh/acct_alice@state.edu" || pay.accounts != 1 {
		t.Fatalf("second setup must refresh the link: %q, %v, accounts=%d", url, err, pay.accounts)
	}

	if ok, err := f.m.CheckSellerStatus(as(f.alice)); err != nil || ok {
		t.Fatalf("CheckSellerStatus before onboarding = %v, %v", ok, err)
	}
	pay.onboarded["acct_alice@state.edu"] = true
	if ok, err := f.m.CheckSellerStatus(as(f.alice)); err != nil || !ok {
		t.Fatalf("CheckSellerStatus after onboarding = %v, %v", ok, err)
	}
	if u, _ := f.m.User(f.alice.ID); !u.CanReceivePayments() {
		t.Fatalf("onboarding flag not stored: %+v", u)
	}
	if _, err := f.m.SetupSellerAccount(as(f.alice)); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("setup after onboarding: want ErrInvalidState, got %v", err)
	}

	if ok, err := f.m.CheckSellerStatus(as(f.bob)); err != nil || ok {
		t.Fatalf("user without account = %v, %v", ok, err)
	}
}

func TestSellerOnboarding_ProviderError(t *testing.T) {
	t.Parallel()
	boom := errors.New("provider down")
	f := newFixture(t, WithPayments(&fakePayments{createErr: boom}))
	_, err := f.m.SetupSellerAccount(as(f.alice))
	if !errors.Is(err, errs.ErrPayment) || !errors.Is(err, boom) {
		t.Fatalf("want wrapped provider error, got %v", err)
	}
	if u, _ := f.m.User(f.alice.ID); u.PaymentAccountID != "" {
		t.Fatalf("account stored despite failure")
	}
}

func TestCreatePayment(t *testing.T) {
	t.Parallel()
	pay := &fakePayments{onboarded: map[string]bool{"acct_alice@state.edu": true}}
	f := newFixture(t, WithPayments(pay))
	_, tx := f.matched(t, "15")

	if _, err := f.m.CreatePayment(as(f.owner), tx.ID); !errors.Is(err, errs.ErrPayment) {
		t.Fatalf("fulfiller not onboarded: want ErrPayment, got %v", err)
	}
	if _, err := f.m.SetupSellerAccount(as(f.alice)); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := f.m.CheckSellerStatus(as(f.alice)); err != nil {
		t.Fatalf("status: %v", err)
	}

	if _, err := f.m.CreatePayment(as(f.alice), tx.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("fulfiller paying: want ErrForbidden, got %v", err)
	}
	secret, err := f.m.CreatePayment(as(f.owner), tx.ID)
	if err != nil || secret == "" {
		t.Fatalf("CreatePayment = %q, %v", secret, err)
	}
	in := pay.intents[0]
	if !in.Amount.Equal(dec("16.50")) || !in.PlatformFee.Equal(dec("1.50")) || in.DestinationAccountID != "acct_alice@state.edu" || in.TransactionID != tx.ID {
		t.Fatalf("unexpected intent params: %+v", in)
	}
	if got, _ := f.m.Transaction(tx.ID); got.PaymentStatus != model.PaymentProcessing {
		t.Fatalf("payment status = %q", got.PaymentStatus)
	}

	failed, err := f.m.RecordPaymentOutcome(context.Background(), tx.ID, false, "card declined")
	if err != nil || failed.PaymentStatus != model.PaymentFailed || failed.PaymentFailureReason != "card declined" {
		t.Fatalf("record failure = %+v, %v", failed, err)
	}
	if _, err := f.m.CreatePayment(as(f.owner), tx.ID); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}

	paid, err := f.m.RecordPaymentOutcome(context.Background(), tx.ID, true, "")
	if err != nil || paid.PaymentStatus != model.PaymentSucceeded || paid.PaidAt == nil || paid.PaymentFailureReason != "" {
		t.Fatalf("record success = %+v, %v", paid, err)
	}
	if again, err := f.m.RecordPaymentOutcome(context.Background(), tx.ID, true, ""); err != nil || !again.PaidAt.Equal(*paid.PaidAt) {
		t.Fatalf("repeated success must be a no-op: %+v, %v", again, err)
	}
	if _, err := f.m.RecordPaymentOutcome(context.Background(), tx.ID, false, "late"); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("failure after success: want ErrInvalidState, got %v", err)
	}
	if _, err := f.m.CreatePayment(as(f.owner), tx.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("pay twice: want ErrInvalidState, got %v", err)
	}
	if got, _ := f.m.Transaction(tx.ID); got.Status != model.TransactionPending {
		t.Fatalf("payment must not change bookkeeping status, got %s", got.Status)
	}
}
