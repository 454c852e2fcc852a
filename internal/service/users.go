package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/repository"
)

// RegisterUser creates a marketplace profile. The school is resolved from the
// email domain; once schools are configured, an unknown domain is rejected.
func (m *Market) RegisterUser(ctx context.Context, in model.NewUser) (u model.User, err error) {
	defer m.track("register_user", &err)

	name := strings.TrimSpace(in.DisplayName)
	if n := utf8.RuneCountInString(name); n < m.limits.MinDisplayNameLen || n > m.limits.MaxDisplayNameLen {
		return model.User{}, errs.Validationf("display name must have %d-%d characters", m.limits.MinDisplayNameLen, m.limits.MaxDisplayNameLen)
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if at := strings.LastIndex(email, "@"); at <= 0 || at == len(email)-1 {
		return model.User{}, errs.Validationf("malformed email %q", in.Email)
	}

	var schoolID uuid.UUID
	school, err := m.SchoolForEmail(email)
	switch {
	case err == nil:
		schoolID = school.ID
	case len(m.store.Schools()) > 0:
		return model.User{}, errs.Validationf("no participating school for %q", email)
	}

	id := in.ID
	if id == uuid.Nil {
		if id, err = m.newID(); err != nil {
			return model.User{}, err
		}
	}
	unlockEmail := m.locks.Lock(emailKey(email))
	defer unlockEmail()
	unlock := m.locks.Lock(id)
	defer unlock()

	if _, err := m.store.UserByEmail(email); err == nil {
		return model.User{}, fmt.Errorf("register %s: %w", email, errs.ErrAlreadyExists)
	}
	if _, err := m.store.User(id); err == nil {
		return model.User{}, fmt.Errorf("register user %s: %w", id, errs.ErrAlreadyExists)
	}

	u = model.User{
		ID:          id,
		DisplayName: name,
		Email:       email,
		Phone:       strings.TrimSpace(in.Phone),
		SchoolID:    schoolID,
		CreatedAt:   m.now(),
	}
	if err := m.commit(ctx, repository.Changeset{Users: []model.User{u}}); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// emailKey maps an email onto the lock space shared with entity ids.
func emailKey(email string) uuid.UUID {
	return uuid.NewV5(uuid.NamespaceURL, "mailto:"+email)
}

// Bootstrap seeds reference schools and pre-existing users.
func (m *Market) Bootstrap(ctx context.Context, schools []model.School, users []model.User) error {
	return m.commit(ctx, repository.Changeset{Schools: schools, Users: users})
}

// Snapshot is previously persisted state handed to Hydrate.
type Snapshot struct {
	Users        []model.User
	Schools      []model.School
	Requests     []model.Request
	Offers       []model.Offer
	Transactions []model.Transaction
	Messages     []model.Message
}

// Hydrate loads persisted state into the store without publishing it back.
// Requests and transactions are expected newest first, as the loaders return them.
func (m *Market) Hydrate(s Snapshot) error {
	return m.store.Commit(repository.Changeset{
		Users:        s.Users,
		Schools:      s.Schools,
		Requests:     oldestFirst(s.Requests),
		Offers:       s.Offers,
		Transactions: oldestFirst(s.Transactions),
		Messages:     s.Messages,
	})
}

func oldestFirst[T any](newest []T) []T {
	out := make([]T, len(newest))
	for i, v := range newest {
		out[len(out)-1-i] = v
	}
	return out
}

// EnsureSchools adds the schools whose domain is not known yet and reports how
// many were added. Known domains keep their stored record.
func (m *Market) EnsureSchools(ctx context.Context, schools []model.School) (int, error) {
	known := make(map[string]bool)
	for _, sc := range m.store.Schools() {
		known[strings.ToLower(sc.Domain)] = true
	}
	var add []model.School
	for _, sc := range schools {
		d := strings.ToLower(strings.TrimSpace(sc.Domain))
		if d == "" || known[d] {
			continue
		}
		known[d] = true
		sc.Domain = d
		add = append(add, sc)
	}
	if len(add) == 0 {
		return 0, nil
	}
	if err := m.commit(ctx, repository.Changeset{Schools: add}); err != nil {
		return 0, err
	}
	return len(add), nil
}

// User returns a snapshot of one user.
func (m *Market) User(id uuid.UUID) (model.User, error) {
	return m.store.User(id)
}

// School returns one school.
func (m *Market) School(id uuid.UUID) (model.School, error) {
	return m.store.School(id)
}

// Schools lists the active schools.
func (m *Market) Schools() []model.School {
	var out []model.School
	for _, s := range m.store.Schools() {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out
}

// SchoolForEmail finds the active school whose domain matches email.
func (m *Market) SchoolForEmail(email string) (model.School, error) {
	for _, s := range m.store.Schools() {
		if s.IsActive && s.Matches(email) {
			return s, nil
		}
	}
	return model.School{}, fmt.Errorf("school for %q: %w", email, errs.ErrNotFound)
}
