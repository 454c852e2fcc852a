package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the bookkeeping state of a transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionDisputed  TransactionStatus = "disputed"
	TransactionRefunded  TransactionStatus = "refunded"
)

// ParseTransactionStatus validates a raw status value.
func ParseTransactionStatus(s string) (TransactionStatus, bool) {
	switch TransactionStatus(s) {
	case TransactionPending, TransactionCompleted, TransactionDisputed, TransactionRefunded:
		return TransactionStatus(s), true
	default:
		return "", false
	}
}

// PaymentStatus mirrors what the payment provider reported last.
type PaymentStatus string

const (
	PaymentNone       PaymentStatus = ""
	PaymentProcessing PaymentStatus = "processing"
	PaymentSucceeded  PaymentStatus = "succeeded"
	PaymentFailed     PaymentStatus = "failed"
)

// Transaction is created exactly once per request, when an offer is accepted.
type Transaction struct {
	ID                 uuid.UUID
	RequestID          uuid.UUID
	RequesterID        uuid.UUID
	FulfillerID        uuid.UUID
	ItemPrice          decimal.Decimal
	PlatformFee        decimal.Decimal
	TotalCharged       decimal.Decimal
	Status             TransactionStatus
	RequesterConfirmed bool
	FulfillerConfirmed bool
	CreatedAt          time.Time
	CompletedAt        *time.Time

	PaymentStatus        PaymentStatus
	PaidAt               *time.Time
	PaymentFailureReason string
}

// BothConfirmed reports dual confirmation.
func (t Transaction) BothConfirmed() bool {
	return t.RequesterConfirmed && t.FulfillerConfirmed
}

// IsParty reports whether userID is the requester or the fulfiller.
func (t Transaction) IsParty(userID uuid.UUID) bool {
	return userID == t.RequesterID || userID == t.FulfillerID
}

// Confirm sets the flag of the given party and completes the transaction
// once both are set. Flags never revert. It reports whether userID is a party.
func (t *Transaction) Confirm(userID uuid.UUID, now time.Time) bool {
	switch userID {
	case t.RequesterID:
		t.RequesterConfirmed = true
	case t.FulfillerID:
		t.FulfillerConfirmed = true
	default:
		return false
	}
	if t.BothConfirmed() && t.Status != TransactionCompleted {
		t.Status = TransactionCompleted
		at := now
		t.CompletedAt = &at
	}
	return true
}
