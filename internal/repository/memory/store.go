// Package memory provides the in-process implementations of the repository interfaces.
package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/repository"
)

var _ repository.EntityStore = (*Store)(nil)

// Store keeps every entity in id-indexed maps plus insertion order.
type Store struct {
	mu sync.RWMutex

	users     map[uuid.UUID]model.User
	userOrder []uuid.UUID

	schools     map[uuid.UUID]model.School
	schoolOrder []uuid.UUID

	requests map[uuid.UUID]model.Request
	reqOrder []uuid.UUID // oldest first; read newest first

	offers      map[uuid.UUID]model.Offer
	offersByReq map[uuid.UUID][]uuid.UUID

	txs      map[uuid.UUID]model.Transaction
	txOrder  []uuid.UUID
	txByReq  map[uuid.UUID]uuid.UUID
	messages map[uuid.UUID]model.Message
	msgsByTx map[uuid.UUID][]uuid.UUID
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:       make(map[uuid.UUID]model.User),
		schools:     make(map[uuid.UUID]model.School),
		requests:    make(map[uuid.UUID]model.Request),
		offers:      make(map[uuid.UUID]model.Offer),
		offersByReq: make(map[uuid.UUID][]uuid.UUID),
		txs:         make(map[uuid.UUID]model.Transaction),
		txByReq:     make(map[uuid.UUID]uuid.UUID),
		messages:    make(map[uuid.UUID]model.Message),
		msgsByTx:    make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *Store) User(id uuid.UUID) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", id, errs.ErrNotFound)
	}
	return cloneUser(u), nil
}

func (s *Store) UserByEmail(email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.userOrder {
		if u := s.users[id]; strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return model.User{}, fmt.Errorf("user %q: %w", email, errs.ErrNotFound)
}

func (s *Store) School(id uuid.UUID) (model.School, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schools[id]
	if !ok {
		return model.School{}, fmt.Errorf("school %s: %w", id, errs.ErrNotFound)
	}
	return sc, nil
}

func (s *Store) Schools() []model.School {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.School, 0, len(s.schoolOrder))
	for _, id := range s.schoolOrder {
		out = append(out, s.schools[id])
	}
	return out
}

func (s *Store) Request(id uuid.UUID) (model.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return model.Request{}, fmt.Errorf("request %s: %w", id, errs.ErrNotFound)
	}
	return cloneRequest(r), nil
}

func (s *Store) Requests() []model.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Request, 0, len(s.reqOrder))
	for i := len(s.reqOrder) - 1; i >= 0; i-- {
		out = append(out, cloneRequest(s.requests[s.reqOrder[i]]))
	}
	return out
}

func (s *Store) Offer(id uuid.UUID) (model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return model.Offer{}, fmt.Errorf("offer %s: %w", id, errs.ErrNotFound)
	}
	return cloneOffer(o), nil
}

func (s *Store) OffersByRequest(requestID uuid.UUID) []model.Offer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.offersByReq[requestID]
	out := make([]model.Offer, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneOffer(s.offers[id]))
	}
	return out
}

func (s *Store) Transaction(id uuid.UUID) (model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txs[id]
	if !ok {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", id, errs.ErrNotFound)
	}
	return cloneTransaction(t), nil
}

func (s *Store) TransactionByRequest(requestID uuid.UUID) (model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.txByReq[requestID]
	if !ok {
		return model.Transaction{}, fmt.Errorf("transaction for request %s: %w", requestID, errs.ErrNotFound)
	}
	return cloneTransaction(s.txs[id]), nil
}

func (s *Store) Transactions() []model.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Transaction, 0, len(s.txOrder))
	for _, id := range s.txOrder {
		out = append(out, cloneTransaction(s.txs[id]))
	}
	return out
}

func (s *Store) Message(id uuid.UUID) (model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return model.Message{}, fmt.Errorf("message %s: %w", id, errs.ErrNotFound)
	}
	return m, nil
}

func (s *Store) MessagesByTransaction(txID uuid.UUID) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.msgsByTx[txID]
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.messages[id])
	}
	return out
}

// Commit validates cs against current state and applies it under one write lock.
// A second transaction for the same request is rejected with errs.ErrInvalidState,
// an email already held by another user with errs.ErrAlreadyExists.
func (s *Store) Commit(cs repository.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(cs); err != nil {
		return err
	}

	for _, u := range cs.Users {
		if _, ok := s.users[u.ID]; !ok {
			s.userOrder = append(s.userOrder, u.ID)
		}
		s.users[u.ID] = cloneUser(u)
	}
	for _, sc := range cs.Schools {
		if _, ok := s.schools[sc.ID]; !ok {
			s.schoolOrder = append(s.schoolOrder, sc.ID)
		}
		s.schools[sc.ID] = sc
	}
	for _, r := range cs.Requests {
		if _, ok := s.requests[r.ID]; !ok {
			s.reqOrder = append(s.reqOrder, r.ID)
		}
		s.requests[r.ID] = cloneRequest(r)
	}
	for _, o := range cs.Offers {
		if _, ok := s.offers[o.ID]; !ok {
			s.offersByReq[o.RequestID] = append(s.offersByReq[o.RequestID], o.ID)
		}
		s.offers[o.ID] = cloneOffer(o)
	}
	for _, t := range cs.Transactions {
		if _, ok := s.txs[t.ID]; !ok {
			s.txOrder = append(s.txOrder, t.ID)
			s.txByReq[t.RequestID] = t.ID
		}
		s.txs[t.ID] = cloneTransaction(t)
	}
	for _, m := range cs.Messages {
		if _, ok := s.messages[m.ID]; !ok {
			s.msgsByTx[m.TransactionID] = append(s.msgsByTx[m.TransactionID], m.ID)
		}
		s.messages[m.ID] = m
	}
	for _, id := range cs.DeletedRequests {
		s.deleteRequest(id)
	}
	return nil
}

func (s *Store) check(cs repository.Changeset) error {
	emails := make(map[string]uuid.UUID, len(cs.Users))
	for _, u := range cs.Users {
		if u.Email == "" {
			continue
		}
		key := strings.ToLower(u.Email)
		if other, ok := emails[key]; ok && other != u.ID {
			return fmt.Errorf("email %q: two users in one commit: %w", u.Email, errs.ErrAlreadyExists)
		}
		emails[key] = u.ID
	}
	if len(emails) > 0 {
		for _, id := range s.userOrder {
			existing := s.users[id]
			if other, ok := emails[strings.ToLower(existing.Email)]; ok && other != id {
				return fmt.Errorf("email %q taken by user %s: %w", existing.Email, id, errs.ErrAlreadyExists)
			}
		}
	}
	seen := make(map[uuid.UUID]uuid.UUID, len(cs.Transactions))
	for _, t := range cs.Transactions {
		if existing, ok := s.txByReq[t.RequestID]; ok && existing != t.ID {
			return fmt.Errorf("request %s already has transaction %s: %w", t.RequestID, existing, errs.ErrInvalidState)
		}
		if other, ok := seen[t.RequestID]; ok && other != t.ID {
			return fmt.Errorf("request %s: two transactions in one commit: %w", t.RequestID, errs.ErrInvalidState)
		}
		seen[t.RequestID] = t.ID
	}
	for _, id := range cs.DeletedRequests {
		if _, ok := s.requests[id]; !ok {
			return fmt.Errorf("request %s: %w", id, errs.ErrNotFound)
		}
		if _, ok := s.txByReq[id]; ok {
			return fmt.Errorf("request %s has a transaction: %w", id, errs.ErrInvalidState)
		}
	}
	return nil
}

func (s *Store) deleteRequest(id uuid.UUID) {
	delete(s.requests, id)
	for i, rid := range s.reqOrder {
		if rid == id {
			s.reqOrder = append(s.reqOrder[:i:i], s.reqOrder[i+1:]...)
			break
		}
	}
	for _, oid := range s.offersByReq[id] {
		delete(s.offers, oid)
	}
	delete(s.offersByReq, id)
}

func cloneUser(u model.User) model.User {
	if u.Rating != nil {
		r := *u.Rating
		u.Rating = &r
	}
	if u.PaymentOnboardingComplete != nil {
		b := *u.PaymentOnboardingComplete
		u.PaymentOnboardingComplete = &b
	}
	return u
}

func cloneRequest(r model.Request) model.Request {
	if r.FulfillerID != nil {
		id := *r.FulfillerID
		r.FulfillerID = &id
	}
	return r
}

func cloneOffer(o model.Offer) model.Offer {
	if o.ParentOfferID != nil {
		id := *o.ParentOfferID
		o.ParentOfferID = &id
	}
	return o
}

func cloneTransaction(t model.Transaction) model.Transaction {
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		t.CompletedAt = &at
	}
	if t.PaidAt != nil {
		at := *t.PaidAt
		t.PaidAt = &at
	}
	return t
}
