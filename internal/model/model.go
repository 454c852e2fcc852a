// Package model defines domain entities used by services and repositories.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User is a marketplace participant. Rating and TotalTransactions are never
// touched by the engine itself.
type User struct {
	ID                        uuid.UUID
	DisplayName               string
	Email                     string
	Phone                     string
	SchoolID                  uuid.UUID // uuid.Nil when the email matched no school
	CreatedAt                 time.Time
	Rating                    *float64 // 0..5
	TotalTransactions         int
	PaymentAccountID          string
	PaymentOnboardingComplete *bool
}

// Initials returns up to two upper-case initials of the display name.
func (u User) Initials() string {
	var out []rune
	for _, part := range strings.Fields(u.DisplayName) {
		out = append(out, []rune(part)[0])
		if len(out) == 2 {
			break
		}
	}
	return strings.ToUpper(string(out))
}

// CanReceivePayments reports whether the user finished payment onboarding.
func (u User) CanReceivePayments() bool {
	return u.PaymentAccountID != "" && u.PaymentOnboardingComplete != nil && *u.PaymentOnboardingComplete
}

// NewUser is a signup intent.
type NewUser struct {
	ID          uuid.UUID // optional; generated when Nil
	DisplayName string
	Email       string
	Phone       string
}

// School is static reference data matched against user emails.
type School struct {
	ID       uuid.UUID
	Name     string
	Domain   string // e.g. "state.edu"
	IsActive bool
}

// Matches reports whether email belongs to the school's domain.
func (s School) Matches(email string) bool {
	return strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(s.Domain))
}

// Credential is the login secret of a user. The password is never stored in plaintext.
type Credential struct {
	UserID    uuid.UUID
	Email     string // lower-cased, unique
	PwdHash   string // encoded argon2id hash
	CreatedAt time.Time
}
