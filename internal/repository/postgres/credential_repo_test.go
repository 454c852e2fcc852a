package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/model"
)

func TestCredentialRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db)
	ctx := context.Background()
	c := &model.Credential{UserID: uuid.Must(uuid.NewV4()), Email: "Ann@State.edu", PwdHash: "$argon2id$..."}

	mock.ExpectExec(`INSERT INTO credentials \(user_id, email, pwd_hash\) VALUES \(\$1, \$2, \$3\)`).
		WithArgs(c.UserID, "ann@state.edu", c.PwdHash).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, c))

	mock.ExpectExec(`INSERT INTO credentials`).
		WithArgs(c.UserID, "ann@state.edu", c.PwdHash).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, c), errs.ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_GetByEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(`SELECT user_id, email, pwd_hash, created_at FROM credentials WHERE email=\$1`).
		WithArgs("ann@state.edu").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "email", "pwd_hash", "created_at"}).
			AddRow(id, "ann@state.edu", "hash", now))
	c, err := r.GetByEmail(ctx, "ANN@state.edu")
	require.NoError(t, err)
	require.Equal(t, id, c.UserID)
	require.Equal(t, "hash", c.PwdHash)

	mock.ExpectQuery(`SELECT user_id, email, pwd_hash, created_at FROM credentials`).
		WithArgs("bob@state.edu").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, "bob@state.edu")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
