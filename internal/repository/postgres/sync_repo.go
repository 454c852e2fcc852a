package postgres

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/repository"
)

// DefaultLoadLimit caps LoadRequests when the caller passes limit <= 0.
const DefaultLoadLimit = 100

// SyncRepo mirrors engine state into PostgreSQL. Every write is an idempotent upsert.
type SyncRepo struct{ db *DB }

var _ repository.SyncStore = (*SyncRepo)(nil)

// NewSyncRepo constructs a sync repository.
func NewSyncRepo(db *DB) *SyncRepo { return &SyncRepo{db: db} }

// UpsertUser writes the full user row.
func (r *SyncRepo) UpsertUser(ctx context.Context, u model.User) error {
	const q = `
INSERT INTO users (id, display_name, email, phone, school_id, created_at, rating,
  total_transactions, payment_account_id, payment_onboarding_complete)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  display_name=EXCLUDED.display_name, email=EXCLUDED.email, phone=EXCLUDED.phone,
  school_id=EXCLUDED.school_id, rating=EXCLUDED.rating,
  total_transactions=EXCLUDED.total_transactions,
  payment_account_id=EXCLUDED.payment_account_id,
  payment_onboarding_complete=EXCLUDED.payment_onboarding_complete`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.DisplayName, u.Email, u.Phone, u.SchoolID, u.CreatedAt,
		u.Rating, u.TotalTransactions, u.PaymentAccountID, u.PaymentOnboardingComplete)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

// UpsertSchool writes the full school row.
func (r *SyncRepo) UpsertSchool(ctx context.Context, sc model.School) error {
	const q = `
INSERT INTO schools (id, name, domain, is_active)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET
  name=EXCLUDED.name, domain=EXCLUDED.domain, is_active=EXCLUDED.is_active`
	if _, err := r.db.Pool.Exec(ctx, q, sc.ID, sc.Name, sc.Domain, sc.IsActive); err != nil {
		return fmt.Errorf("upsert school %s: %w", sc.ID, err)
	}
	return nil
}

// LoadSchools returns every school ordered by name.
func (r *SyncRepo) LoadSchools(ctx context.Context) ([]model.School, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, name, domain, is_active FROM schools ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.School
	for rows.Next() {
		var sc model.School
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Domain, &sc.IsActive); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// UpsertRequest writes the full request row.
func (r *SyncRepo) UpsertRequest(ctx context.Context, req model.Request) error {
	const q = `
INSERT INTO requests (id, requester_id, item_description, offer_price, urgency, radius_meters,
  latitude, longitude, status, fulfiller_id, created_at, duration_hours, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  status=EXCLUDED.status, fulfiller_id=EXCLUDED.fulfiller_id,
  offer_price=EXCLUDED.offer_price, expires_at=EXCLUDED.expires_at`
	_, err := r.db.Pool.Exec(ctx, q, req.ID, req.RequesterID, req.ItemDescription, req.OfferPrice,
		string(req.Urgency), req.RadiusMeters, req.Location.Latitude, req.Location.Longitude,
		string(req.Status), req.FulfillerID, req.CreatedAt, req.DurationHours, req.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert request %s: %w", req.ID, err)
	}
	return nil
}

// DeleteRequest removes a request together with its offers.
func (r *SyncRepo) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM offers WHERE request_id=$1`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM requests WHERE id=$1`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete request %s: %w", id, err)
	}
	return nil
}

// UpsertOffer writes the full offer row.
func (r *SyncRepo) UpsertOffer(ctx context.Context, o model.Offer) error {
	const q = `
INSERT INTO offers (id, request_id, user_id, amount, status, parent_offer_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status`
	_, err := r.db.Pool.Exec(ctx, q, o.ID, o.RequestID, o.UserID, o.Amount, string(o.Status), o.ParentOfferID, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert offer %s: %w", o.ID, err)
	}
	return nil
}

// UpsertTransaction writes the full transaction row.
func (r *SyncRepo) UpsertTransaction(ctx context.Context, t model.Transaction) error {
	const q = `
INSERT INTO transactions (id, request_id, requester_id, fulfiller_id, item_price, platform_fee,
  total_charged, status, requester_confirmed, fulfiller_confirmed, created_at, completed_at,
  payment_status, paid_at, payment_failure_reason)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  status=EXCLUDED.status,
  requester_confirmed=EXCLUDED.requester_confirmed,
  fulfiller_confirmed=EXCLUDED.fulfiller_confirmed,
  completed_at=EXCLUDED.completed_at,
  payment_status=EXCLUDED.payment_status,
  paid_at=EXCLUDED.paid_at,
  payment_failure_reason=EXCLUDED.payment_failure_reason`
	_, err := r.db.Pool.Exec(ctx, q, t.ID, t.RequestID, t.RequesterID, t.FulfillerID, t.ItemPrice,
		t.PlatformFee, t.TotalCharged, string(t.Status), t.RequesterConfirmed, t.FulfillerConfirmed,
		t.CreatedAt, t.CompletedAt, string(t.PaymentStatus), t.PaidAt, t.PaymentFailureReason)
	if err != nil {
		return fmt.Errorf("upsert transaction %s: %w", t.ID, err)
	}
	return nil
}

// UpsertMessage writes the full message row.
func (r *SyncRepo) UpsertMessage(ctx context.Context, m model.Message) error {
	const q = `
INSERT INTO messages (id, transaction_id, sender_id, content, created_at, is_read)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET is_read=EXCLUDED.is_read`
	_, err := r.db.Pool.Exec(ctx, q, m.ID, m.TransactionID, m.SenderID, m.Content, m.CreatedAt, m.IsRead)
	if err != nil {
		return fmt.Errorf("upsert message %s: %w", m.ID, err)
	}
	return nil
}

// LoadUsers returns every user ordered by creation.
func (r *SyncRepo) LoadUsers(ctx context.Context) ([]model.User, error) {
	const q = `
SELECT id, display_name, email, phone, school_id, created_at, rating,
  total_transactions, payment_account_id, payment_onboarding_complete
FROM users ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Email, &u.Phone, &u.SchoolID, &u.CreatedAt,
			&u.Rating, &u.TotalTransactions, &u.PaymentAccountID, &u.PaymentOnboardingComplete); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const selectRequests = `
SELECT id, requester_id, item_description, offer_price, urgency, radius_meters,
  latitude, longitude, status, fulfiller_id, created_at, duration_hours, expires_at
FROM requests`

// LoadRequests returns up to limit requests, newest first.
func (r *SyncRepo) LoadRequests(ctx context.Context, limit int) ([]model.Request, error) {
	if limit <= 0 {
		limit = DefaultLoadLimit
	}
	rows, err := r.db.Pool.Query(ctx, selectRequests+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

// LoadRequestsByID returns the requests with the given ids, newest first.
func (r *SyncRepo) LoadRequestsByID(ctx context.Context, ids []uuid.UUID) ([]model.Request, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Pool.Query(ctx, selectRequests+` WHERE id = ANY($1) ORDER BY created_at DESC`, ids)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

func scanRequests(rows pgx.Rows) ([]model.Request, error) {
	defer rows.Close()

	var out []model.Request
	for rows.Next() {
		var (
			req             model.Request
			urgency, status string
		)
		if err := rows.Scan(&req.ID, &req.RequesterID, &req.ItemDescription, &req.OfferPrice, &urgency,
			&req.RadiusMeters, &req.Location.Latitude, &req.Location.Longitude, &status,
			&req.FulfillerID, &req.CreatedAt, &req.DurationHours, &req.ExpiresAt); err != nil {
			return nil, err
		}
		var ok bool
		if req.Urgency, ok = model.ParseUrgency(urgency); !ok {
			return nil, fmt.Errorf("request %s: unknown urgency %q", req.ID, urgency)
		}
		if req.Status, ok = model.ParseRequestStatus(status); !ok {
			return nil, fmt.Errorf("request %s: unknown status %q", req.ID, status)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// LoadOffers returns the offers of a request, oldest first.
func (r *SyncRepo) LoadOffers(ctx context.Context, requestID uuid.UUID) ([]model.Offer, error) {
	const q = `
SELECT id, request_id, user_id, amount, status, parent_offer_id, created_at
FROM offers WHERE request_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Offer
	for rows.Next() {
		var (
			o      model.Offer
			status string
		)
		if err := rows.Scan(&o.ID, &o.RequestID, &o.UserID, &o.Amount, &status, &o.ParentOfferID, &o.CreatedAt); err != nil {
			return nil, err
		}
		var ok bool
		if o.Status, ok = model.ParseOfferStatus(status); !ok {
			return nil, fmt.Errorf("offer %s: unknown status %q", o.ID, status)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// LoadTransactions returns transactions where userID is a party; uuid.Nil loads all.
func (r *SyncRepo) LoadTransactions(ctx context.Context, userID uuid.UUID) ([]model.Transaction, error) {
	const cols = `
SELECT id, request_id, requester_id, fulfiller_id, item_price, platform_fee, total_charged,
  status, requester_confirmed, fulfiller_confirmed, created_at, completed_at,
  payment_status, paid_at, payment_failure_reason
FROM transactions`
	var (
		rows pgx.Rows
		err  error
	)
	if userID == uuid.Nil {
		rows, err = r.db.Pool.Query(ctx, cols+` ORDER BY created_at DESC`)
	} else {
		rows, err = r.db.Pool.Query(ctx, cols+` WHERE requester_id=$1 OR fulfiller_id=$1 ORDER BY created_at DESC`, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var (
			t                 model.Transaction
			status, payStatus string
		)
		if err := rows.Scan(&t.ID, &t.RequestID, &t.RequesterID, &t.FulfillerID, &t.ItemPrice, &t.PlatformFee,
			&t.TotalCharged, &status, &t.RequesterConfirmed, &t.FulfillerConfirmed, &t.CreatedAt,
			&t.CompletedAt, &payStatus, &t.PaidAt, &t.PaymentFailureReason); err != nil {
			return nil, err
		}
		var ok bool
		if t.Status, ok = model.ParseTransactionStatus(status); !ok {
			return nil, fmt.Errorf("transaction %s: unknown status %q", t.ID, status)
		}
		t.PaymentStatus = model.PaymentStatus(payStatus)
		out = append(out, t)
	}
	return out, rows.Err()
}

// LoadMessages returns the messages of a transaction, oldest first.
func (r *SyncRepo) LoadMessages(ctx context.Context, txID uuid.UUID) ([]model.Message, error) {
	const q = `
SELECT id, transaction_id, sender_id, content, created_at, is_read
FROM messages WHERE transaction_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.TransactionID, &m.SenderID, &m.Content, &m.CreatedAt, &m.IsRead); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
