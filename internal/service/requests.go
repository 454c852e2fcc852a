package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/geo"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/repository"
)

// CreateRequest posts a new open request owned by the actor.
func (m *Market) CreateRequest(ctx context.Context, in model.NewRequest) (req model.Request, err error) {
	defer m.track("create_request", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return model.Request{}, err
	}
	in, err = m.validateNewRequest(in)
	if err != nil {
		return model.Request{}, err
	}
	id, err := m.newID()
	if err != nil {
		return model.Request{}, err
	}

	now := m.now()
	req = model.Request{
		ID:              id,
		RequesterID:     actor,
		ItemDescription: in.ItemDescription,
		OfferPrice:      in.OfferPrice,
		Urgency:         in.Urgency,
		RadiusMeters:    in.RadiusMeters,
		Location:        in.Location,
		Status:          model.RequestOpen,
		CreatedAt:       now,
		DurationHours:   in.DurationHours,
		ExpiresAt:       model.ExpiryFor(now, in.DurationHours),
	}
	if err := m.commit(ctx, repository.Changeset{Requests: []model.Request{req}}); err != nil {
		return model.Request{}, err
	}
	m.log.Info("request created", zap.String("request_id", id.String()), zap.String("requester_id", actor.String()))
	return req, nil
}

func (m *Market) validateNewRequest(in model.NewRequest) (model.NewRequest, error) {
	in.ItemDescription = strings.TrimSpace(in.ItemDescription)
	if in.ItemDescription == "" {
		return in, errs.Validationf("item description is empty")
	}
	if n := utf8.RuneCountInString(in.ItemDescription); n > m.limits.MaxItemDescriptionLen {
		return in, errs.Validationf("item description has %d characters, max %d", n, m.limits.MaxItemDescriptionLen)
	}
	if err := m.validateAmount("offer price", in.OfferPrice); err != nil {
		return in, err
	}
	u, ok := model.ParseUrgency(string(in.Urgency))
	if !ok {
		return in, errs.Validationf("unknown urgency %q", in.Urgency)
	}
	in.Urgency = u

	// Written as negated ranges so NaN fails them.
	if in.RadiusMeters == 0 {
		in.RadiusMeters = m.limits.DefaultRadiusMeters
	}
	if !(in.RadiusMeters >= m.limits.MinRadiusMeters && in.RadiusMeters <= m.limits.MaxRadiusMeters) {
		return in, errs.Validationf("radius %.0fm outside [%.0f, %.0f]", in.RadiusMeters, m.limits.MinRadiusMeters, m.limits.MaxRadiusMeters)
	}
	if !in.Location.Valid() {
		return in, errs.Validationf("location (%f, %f) out of range", in.Location.Latitude, in.Location.Longitude)
	}

	if in.DurationHours == 0 {
		in.DurationHours = m.limits.DefaultDurationHours
	}
	if !(in.DurationHours >= m.limits.MinDurationHours && in.DurationHours <= m.limits.MaxDurationHours) {
		return in, errs.Validationf("duration %gh outside [%g, %g]", in.DurationHours, m.limits.MinDurationHours, m.limits.MaxDurationHours)
	}
	return in, nil
}

// validateAmount applies the price bounds to request prices, offers and counters.
func (m *Market) validateAmount(what string, p decimal.Decimal) error {
	if !p.IsPositive() {
		return errs.Validationf("%s must be positive, got %s", what, p)
	}
	if !p.Equal(p.Round(2)) {
		return errs.Validationf("%s %s has more than two decimal places", what, p)
	}
	if !m.limits.PriceInRange(p) {
		return errs.Validationf("%s %s outside [%s, %s]", what, p.StringFixed(2), m.limits.MinPrice.StringFixed(2), m.limits.MaxPrice.StringFixed(2))
	}
	return nil
}

// CancelRequest moves an open, negotiating (or expired) request to cancelled.
func (m *Market) CancelRequest(ctx context.Context, requestID uuid.UUID) (req model.Request, err error) {
	defer m.track("cancel_request", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return model.Request{}, err
	}
	unlock := m.locks.Lock(requestID)
	defer unlock()

	req, err = m.store.Request(requestID)
	if err != nil {
		return model.Request{}, err
	}
	if req.RequesterID != actor {
		return model.Request{}, fmt.Errorf("cancel request %s: not the owner: %w", requestID, errs.ErrForbidden)
	}
	switch req.Status {
	case model.RequestCompleted, model.RequestCancelled:
		return model.Request{}, fmt.Errorf("cancel request %s: already %s: %w", requestID, req.Status, errs.ErrInvalidState)
	case model.RequestMatched:
		return model.Request{}, fmt.Errorf("cancel request %s: matched requests have a transaction: %w", requestID, errs.ErrInvalidState)
	}

	req.Status = model.RequestCancelled
	if err := m.commit(ctx, repository.Changeset{Requests: []model.Request{req}}); err != nil {
		return model.Request{}, err
	}
	return req, nil
}

// DeleteRequest removes a request and its offers. Requests with a transaction stay.
func (m *Market) DeleteRequest(ctx context.Context, requestID uuid.UUID) (err error) {
	defer m.track("delete_request", &err)

	actor, err := m.actor(ctx)
	if err != nil {
		return err
	}
	unlock := m.locks.Lock(requestID)
	defer unlock()

	req, err := m.store.Request(requestID)
	if err != nil {
		return err
	}
	if req.RequesterID != actor {
		return fmt.Errorf("delete request %s: not the owner: %w", requestID, errs.ErrForbidden)
	}
	if _, err := m.store.TransactionByRequest(requestID); err == nil {
		return fmt.Errorf("delete request %s: has a transaction: %w", requestID, errs.ErrInvalidState)
	}
	return m.commit(ctx, repository.Changeset{DeletedRequests: []uuid.UUID{requestID}})
}

// Request returns a snapshot of one request.
func (m *Market) Request(id uuid.UUID) (model.Request, error) {
	return m.store.Request(id)
}

// ActiveRequests is the feed: active requests ordered by urgency, newest first within equal urgency.
func (m *Market) ActiveRequests(now time.Time) []model.Request {
	var out []model.Request
	for _, r := range m.store.Requests() {
		if r.IsActive(now) {
			out = append(out, r)
		}
	}
	sortFeed(out)
	return out
}

// NearbyRequests returns active requests whose radius covers loc, in feed order.
func (m *Market) NearbyRequests(loc model.Location) []model.Request {
	var out []model.Request
	for _, r := range m.ActiveRequests(m.now()) {
		if geo.WithinRadius(r, loc) {
			out = append(out, r)
		}
	}
	return out
}

// MyRequests lists the requests owned by userID, newest first.
func (m *Market) MyRequests(userID uuid.UUID) []model.Request {
	var out []model.Request
	for _, r := range m.store.Requests() {
		if r.RequesterID == userID {
			out = append(out, r)
		}
	}
	return out
}

// sortFeed orders by urgency priority. The sort is stable so the store's
// newest-first order survives within one urgency.
func sortFeed(rs []model.Request) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Urgency.Priority() < rs[j].Urgency.Priority()
	})
}
