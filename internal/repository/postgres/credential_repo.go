package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/repository"
)

// CredentialRepo implements repository.CredentialRepository using PostgreSQL.
type CredentialRepo struct{ db *DB }

var _ repository.CredentialRepository = (*CredentialRepo)(nil)

// NewCredentialRepo constructs a credential repository.
func NewCredentialRepo(db *DB) *CredentialRepo { return &CredentialRepo{db: db} }

// Create inserts a credential row.
func (r *CredentialRepo) Create(ctx context.Context, c *model.Credential) error {
	const q = `
INSERT INTO credentials (user_id, email, pwd_hash)
VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, c.UserID, strings.ToLower(c.Email), c.PwdHash)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByEmail selects a credential by email.
func (r *CredentialRepo) GetByEmail(ctx context.Context, email string) (*model.Credential, error) {
	const q = `
SELECT user_id, email, pwd_hash, created_at
FROM credentials WHERE email=$1`
	var c model.Credential
	err := r.db.Pool.QueryRow(ctx, q, strings.ToLower(email)).Scan(&c.UserID, &c.Email, &c.PwdHash, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
