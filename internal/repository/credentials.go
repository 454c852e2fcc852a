package repository

import (
	"context"

	"github.com/and161185/flour/internal/model"
)

// CredentialRepository stores login secrets for marketplace users.
type CredentialRepository interface {
	// Create inserts a new credential; errs.ErrAlreadyExists on a taken email.
	Create(ctx context.Context, c *model.Credential) error
	// GetByEmail loads a credential by (lower-cased) email.
	GetByEmail(ctx context.Context, email string) (*model.Credential, error)
}

// EventDeduper remembers processed provider event ids.
type EventDeduper interface {
	// FirstSeen records id and reports whether it was new.
	FirstSeen(ctx context.Context, id string) (bool, error)
}
