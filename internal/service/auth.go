// Package service contains the marketplace engine and the authentication service.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/flour/internal/crypto"
	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/limiter"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/repository"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 8

// Registration is a signup request.
type Registration struct {
	Email       string
	Password    string
	DisplayName string
	Phone       string
}

// AuthService defines signup, login and token verification.
type AuthService interface {
	// Register stores credentials and creates the marketplace profile.
	Register(ctx context.Context, in Registration) (model.User, error)
	// Login applies rate-limiting and authenticates the user.
	Login(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error)
	// ParseToken verifies an access token and returns its subject.
	ParseToken(token string) (uuid.UUID, error)
}

// profiles is the part of the engine the auth service needs.
type profiles interface {
	RegisterUser(ctx context.Context, in model.NewUser) (model.User, error)
	User(id uuid.UUID) (model.User, error)
}

type AuthServiceImpl struct {
	creds     repository.CredentialRepository
	profiles  profiles
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	now       func() time.Time
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(creds repository.CredentialRepository, users profiles, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{creds: creds, profiles: users, signKey: signKey, accessTTL: accessTTL, lim: lim, now: time.Now}
}

// Register validates the password, creates the profile and stores the hash.
func (s *AuthServiceImpl) Register(ctx context.Context, in Registration) (model.User, error) {
	if utf8.RuneCountInString(in.Password) < MinPasswordLen {
		return model.User{}, errs.Validationf("password must have at least %d characters", MinPasswordLen)
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := s.creds.GetByEmail(ctx, email); err == nil {
		return model.User{}, fmt.Errorf("register %s: %w", email, errs.ErrAlreadyExists)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return model.User{}, err
	}

	hash, err := pkgcrypto.HashPassword(in.Password)
	if err != nil {
		return model.User{}, err
	}
	u, err := s.profiles.RegisterUser(ctx, model.NewUser{
		DisplayName: in.DisplayName,
		Email:       email,
		Phone:       in.Phone,
	})
	if err != nil {
		return model.User{}, err
	}
	if err := s.creds.Create(ctx, &model.Credential{UserID: u.ID, Email: u.Email, PwdHash: hash}); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// Login authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	c, err := s.creds.GetByEmail(ctx, email)
	ok := false
	if err == nil {
		ok, err = pkgcrypto.VerifyPassword(password, c.PwdHash)
	}
	if err != nil || !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	u, err := s.profiles.User(c.UserID)
	if err != nil {
		return model.Tokens{}, model.User{}, fmt.Errorf("login %s: profile: %w", email, err)
	}
	_ = s.lim.Success(ctx, email, ipHash)

	access, exp, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, u, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// ParseToken verifies HS256 and expiry (30s leeway) and returns sub as UUID.
func (s *AuthServiceImpl) ParseToken(token string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("invalid token: %w", errs.ErrUnauthorized)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("bad subject: %w", errs.ErrUnauthorized)
	}
	return id, nil
}
