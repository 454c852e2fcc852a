// Package convert maps domain models to and from the JSON wire messages.
package convert

import (
	"fmt"
	"strings"

	u "github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/and161185/flour/internal/api"
	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/model"
)

// --- helpers ---

// ParseID parses a canonical UUID; malformed or nil ids are validation errors.
func ParseID(field, s string) (u.UUID, error) {
	id, err := u.FromString(strings.TrimSpace(s))
	if err != nil || id == u.Nil {
		return u.Nil, errs.Validationf("invalid %s %q", field, s)
	}
	return id, nil
}

// ParseMoney parses a decimal amount such as "15" or "15.50".
func ParseMoney(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, errs.Validationf("invalid %s %q", field, s)
	}
	return d, nil
}

// Money formats an amount with two decimal places.
func Money(d decimal.Decimal) string { return d.StringFixed(2) }

func optID(id *u.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func nilableID(id u.UUID) string {
	if id == u.Nil {
		return ""
	}
	return id.String()
}

// --- users ---

// ToAPIUser converts a profile. Contact fields are kept only when withContact is set.
func ToAPIUser(m model.User, withContact bool) api.User {
	out := api.User{
		ID:                        m.ID.String(),
		DisplayName:               m.DisplayName,
		SchoolID:                  nilableID(m.SchoolID),
		CreatedAt:                 m.CreatedAt,
		Rating:                    m.Rating,
		TotalTransactions:         m.TotalTransactions,
		Initials:                  m.Initials(),
		CanReceivePayments:        m.CanReceivePayments(),
		PaymentOnboardingComplete: m.PaymentOnboardingComplete,
	}
	if withContact {
		out.Email = m.Email
		out.Phone = m.Phone
	}
	return out
}

// ToAPISchools converts the school list.
func ToAPISchools(in []model.School) []api.School {
	out := make([]api.School, 0, len(in))
	for _, s := range in {
		out = append(out, api.School{ID: s.ID.String(), Name: s.Name, Domain: s.Domain, IsActive: s.IsActive})
	}
	return out
}

// --- requests ---

// FromAPICreateRequest converts a createRequest call into the engine input.
func FromAPICreateRequest(in api.CreateRequestRequest) (model.NewRequest, error) {
	price, err := ParseMoney("offer_price", in.OfferPrice)
	if err != nil {
		return model.NewRequest{}, err
	}
	return model.NewRequest{
		ItemDescription: in.ItemDescription,
		OfferPrice:      price,
		Urgency:         model.Urgency(in.Urgency),
		RadiusMeters:    in.RadiusMeters,
		Location:        model.Location{Latitude: in.Location.Latitude, Longitude: in.Location.Longitude},
		DurationHours:   in.DurationHours,
	}, nil
}

// ToAPIRequest converts a request; status is the effective status at now's evaluation.
func ToAPIRequest(r model.Request, status model.RequestStatus) api.Request {
	return api.Request{
		ID:              r.ID.String(),
		RequesterID:     r.RequesterID.String(),
		ItemDescription: r.ItemDescription,
		OfferPrice:      Money(r.OfferPrice),
		Urgency:         string(r.Urgency),
		RadiusMeters:    r.RadiusMeters,
		Location:        api.Location{Latitude: r.Location.Latitude, Longitude: r.Location.Longitude},
		Status:          string(status),
		FulfillerID:     optID(r.FulfillerID),
		CreatedAt:       r.CreatedAt,
		DurationHours:   r.DurationHours,
		ExpiresAt:       r.ExpiresAt,
	}
}

// --- offers ---

// ToAPIOffer converts an offer.
func ToAPIOffer(o model.Offer) api.Offer {
	return api.Offer{
		ID:            o.ID.String(),
		RequestID:     o.RequestID.String(),
		UserID:        o.UserID.String(),
		Amount:        Money(o.Amount),
		Status:        string(o.Status),
		ParentOfferID: optID(o.ParentOfferID),
		CreatedAt:     o.CreatedAt,
	}
}

// ToAPIOffers converts a slice of offers.
func ToAPIOffers(in []model.Offer) []api.Offer {
	out := make([]api.Offer, 0, len(in))
	for _, o := range in {
		out = append(out, ToAPIOffer(o))
	}
	return out
}

// --- transactions ---

// ToAPITransaction converts a transaction.
func ToAPITransaction(t model.Transaction) api.Transaction {
	return api.Transaction{
		ID:                   t.ID.String(),
		RequestID:            t.RequestID.String(),
		RequesterID:          t.RequesterID.String(),
		FulfillerID:          t.FulfillerID.String(),
		ItemPrice:            Money(t.ItemPrice),
		PlatformFee:          Money(t.PlatformFee),
		TotalCharged:         Money(t.TotalCharged),
		Status:               string(t.Status),
		RequesterConfirmed:   t.RequesterConfirmed,
		FulfillerConfirmed:   t.FulfillerConfirmed,
		CreatedAt:            t.CreatedAt,
		CompletedAt:          t.CompletedAt,
		PaymentStatus:        string(t.PaymentStatus),
		PaidAt:               t.PaidAt,
		PaymentFailureReason: t.PaymentFailureReason,
	}
}

// ToAPITransactions converts a slice of transactions.
func ToAPITransactions(in []model.Transaction) []api.Transaction {
	out := make([]api.Transaction, 0, len(in))
	for _, t := range in {
		out = append(out, ToAPITransaction(t))
	}
	return out
}

// --- messages ---

// ToAPIMessage converts a message.
func ToAPIMessage(m model.Message) api.Message {
	return api.Message{
		ID:            m.ID.String(),
		TransactionID: m.TransactionID.String(),
		SenderID:      m.SenderID.String(),
		Content:       m.Content,
		CreatedAt:     m.CreatedAt,
		IsRead:        m.IsRead,
	}
}

// ToAPIMessages converts a slice of messages.
func ToAPIMessages(in []model.Message) []api.Message {
	out := make([]api.Message, 0, len(in))
	for _, m := range in {
		out = append(out, ToAPIMessage(m))
	}
	return out
}

// ToAPIConversation converts a conversation with its unread count.
func ToAPIConversation(c model.Conversation, unread int) api.Conversation {
	out := api.Conversation{
		Transaction:  ToAPITransaction(c.Transaction),
		LastActivity: c.LastActivity(),
		UnreadCount:  unread,
	}
	if c.LastMessage != nil {
		m := ToAPIMessage(*c.LastMessage)
		out.LastMessage = &m
	}
	return out
}

// FromAPILocation validates and converts a location.
func FromAPILocation(in *api.Location) (model.Location, error) {
	if in == nil {
		return model.Location{}, fmt.Errorf("%w: location is required", errs.ErrValidation)
	}
	loc := model.Location{Latitude: in.Latitude, Longitude: in.Longitude}
	if !loc.Valid() {
		return model.Location{}, errs.Validationf("location (%f, %f) out of range", in.Latitude, in.Longitude)
	}
	return loc, nil
}
