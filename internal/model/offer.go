package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// OfferStatus is the negotiation state of an offer.
type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferDeclined  OfferStatus = "declined"
	OfferCountered OfferStatus = "countered"
)

// ParseOfferStatus validates a raw status value.
func ParseOfferStatus(s string) (OfferStatus, bool) {
	switch OfferStatus(s) {
	case OfferPending, OfferAccepted, OfferDeclined, OfferCountered:
		return OfferStatus(s), true
	default:
		return "", false
	}
}

// Offer is a proposed price for fulfilling a request. Offers of one request
// form a forest through ParentOfferID.
type Offer struct {
	ID            uuid.UUID
	RequestID     uuid.UUID
	UserID        uuid.UUID // proposer; may be the requester when countering
	Amount        decimal.Decimal
	Status        OfferStatus
	ParentOfferID *uuid.UUID
	CreatedAt     time.Time
}

// IsPending reports status == pending.
func (o Offer) IsPending() bool { return o.Status == OfferPending }

// IsCounterOffer reports whether the offer answers another one.
func (o Offer) IsCounterOffer() bool { return o.ParentOfferID != nil }
