package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/flour/internal/model"
)

// SyncStore is the external document store the engine mirrors its state to.
// Writes are upserts of the full record.
type SyncStore interface {
	UpsertUser(ctx context.Context, u model.User) error
	UpsertSchool(ctx context.Context, s model.School) error
	UpsertRequest(ctx context.Context, r model.Request) error
	DeleteRequest(ctx context.Context, id uuid.UUID) error
	UpsertOffer(ctx context.Context, o model.Offer) error
	UpsertTransaction(ctx context.Context, t model.Transaction) error
	UpsertMessage(ctx context.Context, m model.Message) error

	// LoadUsers returns every stored user.
	LoadUsers(ctx context.Context) ([]model.User, error)
	// LoadSchools returns every stored school.
	LoadSchools(ctx context.Context) ([]model.School, error)
	// LoadRequests returns up to limit requests, newest first.
	LoadRequests(ctx context.Context, limit int) ([]model.Request, error)
	// LoadRequestsByID returns the requests with the given ids, newest first.
	// Unknown ids are skipped.
	LoadRequestsByID(ctx context.Context, ids []uuid.UUID) ([]model.Request, error)
	// LoadOffers returns the offers of a request, oldest first.
	LoadOffers(ctx context.Context, requestID uuid.UUID) ([]model.Offer, error)
	// LoadTransactions returns transactions where userID is a party (all when uuid.Nil).
	LoadTransactions(ctx context.Context, userID uuid.UUID) ([]model.Transaction, error)
	// LoadMessages returns the messages of a transaction, oldest first.
	LoadMessages(ctx context.Context, txID uuid.UUID) ([]model.Message, error)
}
