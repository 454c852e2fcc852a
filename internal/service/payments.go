package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/payment"
	"github.com/and161185/flour/internal/repository"
)

// SetupSellerAccount returns an onboarding link for the actor's payout account,
// creating the account on first use.
func (m *Market) SetupSellerAccount(ctx context.Context) (url string, err error) {
	defer m.track("setup_seller_account", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return "", err
	}
	if m.payments == nil {
		return "", fmt.Errorf("payments are not configured: %w", errs.ErrPayment)
	}
	u, err := m.store.User(actor)
	if err != nil {
		return "", err
	}
	if u.CanReceivePayments() {
		return "", fmt.Errorf("user %s already onboarded: %w", actor, errs.ErrInvalidState)
	}

	if u.PaymentAccountID != "" {
		url, err = m.payments.OnboardingLink(ctx, u.PaymentAccountID)
		if err != nil {
			return "", fmt.Errorf("onboarding link: %w: %w", errs.ErrPayment, err)
		}
		return url, nil
	}

	acct, err := m.payments.CreateAccount(ctx, u.Email)
	if err != nil {
		return "", fmt.Errorf("create account: %w: %w", errs.ErrPayment, err)
	}
	err = m.updateUser(ctx, actor, func(u *model.User) {
		done := false
		u.PaymentAccountID = acct.ID
		u.PaymentOnboardingComplete = &done
	})
	if err != nil {
		return "", err
	}
	m.log.Info("seller account created", zap.String("user_id", actor.String()), zap.String("account_id", acct.ID))
	return acct.OnboardingURL, nil
}

// CheckSellerStatus asks the provider whether onboarding finished and stores the answer.
func (m *Market) CheckSellerStatus(ctx context.Context) (ok bool, err error) {
	defer m.track("check_seller_status", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return false, err
	}
	if m.payments == nil {
		return false, fmt.Errorf("payments are not configured: %w", errs.ErrPayment)
	}
	u, err := m.store.User(actor)
	if err != nil {
		return false, err
	}
	if u.PaymentAccountID == "" {
		return false, nil
	}
	ok, err = m.payments.AccountOnboarded(ctx, u.PaymentAccountID)
	if err != nil {
		return false, fmt.Errorf("account status: %w: %w", errs.ErrPayment, err)
	}
	if u.PaymentOnboardingComplete != nil && *u.PaymentOnboardingComplete == ok {
		return ok, nil
	}
	return ok, m.updateUser(ctx, actor, func(u *model.User) { u.PaymentOnboardingComplete = &ok })
}

// CreatePayment starts collecting the transaction total from the requester and
// returns the client secret. The fulfiller must have finished onboarding.
func (m *Market) CreatePayment(ctx context.Context, txID uuid.UUID) (secret string, err error) {
	defer m.track("create_payment", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return "", err
	}
	if m.payments == nil {
		return "", fmt.Errorf("payments are not configured: %w", errs.ErrPayment)
	}
	tx, err := m.store.Transaction(txID)
	if err != nil {
		return "", err
	}
	if tx.RequesterID != actor {
		return "", fmt.Errorf("pay transaction %s: only the requester pays: %w", txID, errs.ErrForbidden)
	}
	if tx.PaymentStatus == model.PaymentSucceeded {
		return "", fmt.Errorf("pay transaction %s: already paid: %w", txID, errs.ErrInvalidState)
	}
	seller, err := m.store.User(tx.FulfillerID)
	if err != nil {
		return "", err
	}
	if !seller.CanReceivePayments() {
		return "", fmt.Errorf("pay transaction %s: fulfiller cannot receive payments yet: %w", txID, errs.ErrPayment)
	}

	secret, err = m.payments.CreatePaymentIntent(ctx, payment.IntentParams{
		Amount:               tx.TotalCharged,
		PlatformFee:          tx.PlatformFee,
		DestinationAccountID: seller.PaymentAccountID,
		TransactionID:        tx.ID,
	})
	if err != nil {
		return "", fmt.Errorf("payment intent: %w: %w", errs.ErrPayment, err)
	}

	unlock := m.locks.Lock(tx.RequestID)
	defer unlock()
	if tx, err = m.store.Transaction(txID); err != nil {
		return "", err
	}
	if tx.PaymentStatus == model.PaymentSucceeded {
		return secret, nil
	}
	tx.PaymentStatus = model.PaymentProcessing
	tx.PaymentFailureReason = ""
	if err := m.commit(ctx, repository.Changeset{Transactions: []model.Transaction{tx}}); err != nil {
		return "", err
	}
	return secret, nil
}

// RecordPaymentOutcome stores the provider's verdict. A success is final: a
// later failure report is rejected and a repeated success is a no-op.
func (m *Market) RecordPaymentOutcome(ctx context.Context, txID uuid.UUID, succeeded bool, reason string) (tx model.Transaction, err error) {
	defer m.track("record_payment_outcome", &err)

	tx, err = m.store.Transaction(txID)
	if err != nil {
		return model.Transaction{}, err
	}
	unlock := m.locks.Lock(tx.RequestID)
	defer unlock()
	if tx, err = m.store.Transaction(txID); err != nil {
		return model.Transaction{}, err
	}

	if tx.PaymentStatus == model.PaymentSucceeded {
		if succeeded {
			return tx, nil
		}
		return model.Transaction{}, fmt.Errorf("transaction %s already paid: %w", txID, errs.ErrInvalidState)
	}
	if succeeded {
		now := m.now()
		tx.PaymentStatus = model.PaymentSucceeded
		tx.PaidAt = &now
		tx.PaymentFailureReason = ""
	} else {
		tx.PaymentStatus = model.PaymentFailed
		tx.PaymentFailureReason = reason
	}
	if err := m.commit(ctx, repository.Changeset{Transactions: []model.Transaction{tx}}); err != nil {
		return model.Transaction{}, err
	}
	m.log.Info("payment outcome recorded",
		zap.String("transaction_id", txID.String()),
		zap.String("payment_status", string(tx.PaymentStatus)))
	return tx, nil
}

func (m *Market) updateUser(ctx context.Context, id uuid.UUID, fn func(*model.User)) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	u, err := m.store.User(id)
	if err != nil {
		return err
	}
	fn(&u)
	return m.commit(ctx, repository.Changeset{Users: []model.User{u}})
}
