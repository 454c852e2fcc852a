package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/fee"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/repository"
)

// MakeOffer proposes amount for a request the actor does not own.
func (m *Market) MakeOffer(ctx context.Context, requestID uuid.UUID, amount decimal.Decimal) (offer model.Offer, err error) {
	defer m.track("make_offer", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return model.Offer{}, err
	}
	if err := m.validateAmount("offer amount", amount); err != nil {
		return model.Offer{}, err
	}
	unlock := m.locks.Lock(requestID)
	defer unlock()

	req, err := m.store.Request(requestID)
	if err != nil {
		return model.Offer{}, err
	}
	if req.RequesterID == actor {
		return model.Offer{}, fmt.Errorf("offer on request %s: owners do not offer on their own request: %w", requestID, errs.ErrForbidden)
	}
	if err := m.negotiable(req); err != nil {
		return model.Offer{}, err
	}

	id, err := m.newID()
	if err != nil {
		return model.Offer{}, err
	}
	offer = model.Offer{
		ID:        id,
		RequestID: requestID,
		UserID:    actor,
		Amount:    amount,
		Status:    model.OfferPending,
		CreatedAt: m.now(),
	}
	cs := repository.Changeset{Offers: []model.Offer{offer}}
	if req.Status == model.RequestOpen {
		req.Status = model.RequestNegotiating
		cs.Requests = []model.Request{req}
	}
	if err := m.commit(ctx, cs); err != nil {
		return model.Offer{}, err
	}
	return offer, nil
}

// AcceptOffer is called by the request owner. It marks the offer accepted, matches
// the request and creates the request's only transaction in one commit.
func (m *Market) AcceptOffer(ctx context.Context, offerID uuid.UUID) (tx model.Transaction, err error) {
	defer m.track("accept_offer", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return model.Transaction{}, err
	}
	offer, req, unlock, err := m.lockOffer(offerID)
	if err != nil {
		return model.Transaction{}, err
	}
	defer unlock()

	if req.RequesterID != actor {
		return model.Transaction{}, fmt.Errorf("accept offer %s: only the request owner may accept: %w", offerID, errs.ErrForbidden)
	}
	if offer.UserID == req.RequesterID {
		return model.Transaction{}, fmt.Errorf("accept offer %s: owner cannot accept their own counter: %w", offerID, errs.ErrForbidden)
	}
	if !offer.IsPending() {
		return model.Transaction{}, fmt.Errorf("accept offer %s: offer is %s: %w", offerID, offer.Status, errs.ErrInvalidState)
	}
	if err := m.negotiable(req); err != nil {
		return model.Transaction{}, err
	}
	if existing, err := m.store.TransactionByRequest(req.ID); err == nil {
		return model.Transaction{}, fmt.Errorf("accept offer %s: request already has transaction %s: %w", offerID, existing.ID, errs.ErrInvalidState)
	}

	b, err := fee.Compute(offer.Amount)
	if err != nil {
		return model.Transaction{}, err
	}
	id, err := m.newID()
	if err != nil {
		return model.Transaction{}, err
	}
	now := m.now()

	offer.Status = model.OfferAccepted
	fulfiller := offer.UserID
	req.Status = model.RequestMatched
	req.FulfillerID = &fulfiller
	tx = model.Transaction{
		ID:           id,
		RequestID:    req.ID,
		RequesterID:  req.RequesterID,
		FulfillerID:  fulfiller,
		ItemPrice:    b.ItemPrice,
		PlatformFee:  b.PlatformFee,
		TotalCharged: b.Total,
		Status:       model.TransactionPending,
		CreatedAt:    now,
	}
	err = m.commit(ctx, repository.Changeset{
		Offers:       []model.Offer{offer},
		Requests:     []model.Request{req},
		Transactions: []model.Transaction{tx},
	})
	if err != nil {
		return model.Transaction{}, err
	}
	m.metrics.TransactionCreated(tx.PlatformFee)
	m.log.Info("offer accepted",
		zap.String("offer_id", offerID.String()),
		zap.String("request_id", req.ID.String()),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("total", tx.TotalCharged.StringFixed(2)))
	return tx, nil
}

// DeclineOffer rejects a pending offer. The owner declines offers made to them;
// the fulfiller declines the owner's counter.
func (m *Market) DeclineOffer(ctx context.Context, offerID uuid.UUID) (offer model.Offer, err error) {
	defer m.track("decline_offer", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return model.Offer{}, err
	}
	offer, req, unlock, err := m.lockOffer(offerID)
	if err != nil {
		return model.Offer{}, err
	}
	defer unlock()

	respondent, err := m.respondent(offer, req)
	if err != nil {
		return model.Offer{}, err
	}
	if actor != respondent {
		return model.Offer{}, fmt.Errorf("decline offer %s: %w", offerID, errs.ErrForbidden)
	}
	if !offer.IsPending() {
		return model.Offer{}, fmt.Errorf("decline offer %s: offer is %s: %w", offerID, offer.Status, errs.ErrInvalidState)
	}

	offer.Status = model.OfferDeclined
	if err := m.commit(ctx, repository.Changeset{Offers: []model.Offer{offer}}); err != nil {
		return model.Offer{}, err
	}
	return offer, nil
}

// CounterOffer answers a pending offer with a new amount. The original becomes
// countered and a pending child offer authored by the actor is created.
func (m *Market) CounterOffer(ctx context.Context, offerID uuid.UUID, amount decimal.Decimal) (counter model.Offer, err error) {
	defer m.track("counter_offer", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return model.Offer{}, err
	}
	if err := m.validateAmount("counter amount", amount); err != nil {
		return model.Offer{}, err
	}
	offer, req, unlock, err := m.lockOffer(offerID)
	if err != nil {
		return model.Offer{}, err
	}
	defer unlock()

	respondent, err := m.respondent(offer, req)
	if err != nil {
		return model.Offer{}, err
	}
	if actor != respondent {
		return model.Offer{}, fmt.Errorf("counter offer %s: %w", offerID, errs.ErrForbidden)
	}
	if !offer.IsPending() {
		return model.Offer{}, fmt.Errorf("counter offer %s: offer is %s: %w", offerID, offer.Status, errs.ErrInvalidState)
	}
	if err := m.negotiable(req); err != nil {
		return model.Offer{}, err
	}

	id, err := m.newID()
	if err != nil {
		return model.Offer{}, err
	}
	parent := offer.ID
	offer.Status = model.OfferCountered
	counter = model.Offer{
		ID:            id,
		RequestID:     req.ID,
		UserID:        actor,
		Amount:        amount,
		Status:        model.OfferPending,
		ParentOfferID: &parent,
		CreatedAt:     m.now(),
	}
	cs := repository.Changeset{Offers: []model.Offer{offer, counter}}
	if req.Status == model.RequestOpen {
		req.Status = model.RequestNegotiating
		cs.Requests = []model.Request{req}
	}
	if err := m.commit(ctx, cs); err != nil {
		return model.Offer{}, err
	}
	return counter, nil
}

// OffersForRequest lists offers in creation order.
func (m *Market) OffersForRequest(requestID uuid.UUID) []model.Offer {
	return m.store.OffersByRequest(requestID)
}

// Offer returns a snapshot of one offer.
func (m *Market) Offer(id uuid.UUID) (model.Offer, error) {
	return m.store.Offer(id)
}

// lockOffer resolves the offer's request, takes the request lock and re-reads
// both under it. The caller must call unlock.
func (m *Market) lockOffer(offerID uuid.UUID) (model.Offer, model.Request, func(), error) {
	o, err := m.store.Offer(offerID)
	if err != nil {
		return model.Offer{}, model.Request{}, nil, err
	}
	unlock := m.locks.Lock(o.RequestID)
	if o, err = m.store.Offer(offerID); err != nil {
		unlock()
		return model.Offer{}, model.Request{}, nil, err
	}
	req, err := m.store.Request(o.RequestID)
	if err != nil {
		unlock()
		return model.Offer{}, model.Request{}, nil, fmt.Errorf("offer %s: request %s: %w", offerID, o.RequestID, err)
	}
	return o, req, unlock, nil
}

// respondent is the party expected to answer o: the owner for a fulfiller's
// offer, or the fulfiller whose offer the owner countered.
func (m *Market) respondent(o model.Offer, req model.Request) (uuid.UUID, error) {
	if o.UserID != req.RequesterID {
		return req.RequesterID, nil
	}
	if o.ParentOfferID == nil {
		return uuid.Nil, fmt.Errorf("offer %s: root offer authored by the owner: %w", o.ID, errs.ErrInvalidState)
	}
	parent, err := m.store.Offer(*o.ParentOfferID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("offer %s: parent: %w", o.ID, err)
	}
	return parent.UserID, nil
}

// negotiable reports whether offers may be made, countered or accepted on req.
func (m *Market) negotiable(req model.Request) error {
	if !req.AcceptsOffers() {
		return fmt.Errorf("request %s is %s: %w", req.ID, req.Status, errs.ErrInvalidState)
	}
	if req.IsExpired(m.now()) {
		return fmt.Errorf("request %s expired at %s: %w", req.ID, req.ExpiresAt.Format("15:04"), errs.ErrInvalidState)
	}
	return nil
}
