// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/flour/internal/model"
)

// Changeset is the unit of an atomic store write. Records are full replacements.
type Changeset struct {
	Users           []model.User
	Schools         []model.School
	Requests        []model.Request
	Offers          []model.Offer
	Transactions    []model.Transaction
	Messages        []model.Message
	DeletedRequests []uuid.UUID
}

// Empty reports whether the changeset carries nothing.
func (c Changeset) Empty() bool {
	return len(c.Users) == 0 && len(c.Schools) == 0 && len(c.Requests) == 0 &&
		len(c.Offers) == 0 && len(c.Transactions) == 0 && len(c.Messages) == 0 &&
		len(c.DeletedRequests) == 0
}

// EntityStore holds the marketplace records in memory. Reads return copies;
// Commit applies a changeset atomically or not at all.
type EntityStore interface {
	// User returns a user by ID or errs.ErrNotFound.
	User(id uuid.UUID) (model.User, error)
	// UserByEmail returns a user by case-insensitive email or errs.ErrNotFound.
	UserByEmail(email string) (model.User, error)
	// School returns a school by ID or errs.ErrNotFound.
	School(id uuid.UUID) (model.School, error)
	// Schools lists schools in insertion order.
	Schools() []model.School

	// Request returns a request by ID or errs.ErrNotFound.
	Request(id uuid.UUID) (model.Request, error)
	// Requests lists requests newest first.
	Requests() []model.Request

	// Offer returns an offer by ID or errs.ErrNotFound.
	Offer(id uuid.UUID) (model.Offer, error)
	// OffersByRequest lists the offers of a request in insertion order.
	OffersByRequest(requestID uuid.UUID) []model.Offer

	// Transaction returns a transaction by ID or errs.ErrNotFound.
	Transaction(id uuid.UUID) (model.Transaction, error)
	// TransactionByRequest returns the single transaction of a request or errs.ErrNotFound.
	TransactionByRequest(requestID uuid.UUID) (model.Transaction, error)
	// Transactions lists transactions in insertion order.
	Transactions() []model.Transaction

	// Message returns a message by ID or errs.ErrNotFound.
	Message(id uuid.UUID) (model.Message, error)
	// MessagesByTransaction lists messages of a transaction in insertion order.
	MessagesByTransaction(txID uuid.UUID) []model.Message

	// Commit applies every record in cs or returns an error and applies none.
	Commit(cs Changeset) error
}
