package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// Urgency is the requester-chosen priority tier.
type Urgency string

const (
	UrgencyASAP          Urgency = "ASAP"
	UrgencyThirtyMinutes Urgency = "30 min"
	UrgencyOneHour       Urgency = "1 hour"
	UrgencyFlexible      Urgency = "Flexible"
)

// ParseUrgency validates a raw urgency value.
func ParseUrgency(s string) (Urgency, bool) {
	switch Urgency(s) {
	case UrgencyASAP, UrgencyThirtyMinutes, UrgencyOneHour, UrgencyFlexible:
		return Urgency(s), true
	default:
		return "", false
	}
}

// Priority orders feeds; lower sorts first.
func (u Urgency) Priority() int {
	switch u {
	case UrgencyASAP:
		return 0
	case UrgencyThirtyMinutes:
		return 1
	case UrgencyOneHour:
		return 2
	default:
		return 3
	}
}

// RequestStatus is the stored lifecycle state of a request.
type RequestStatus string

const (
	RequestOpen        RequestStatus = "open"
	RequestNegotiating RequestStatus = "negotiating"
	RequestMatched     RequestStatus = "matched"
	RequestCompleted   RequestStatus = "completed"
	RequestCancelled   RequestStatus = "cancelled"
	// RequestExpired is never stored; see Request.EffectiveStatus.
	RequestExpired RequestStatus = "expired"
)

// ParseRequestStatus validates a raw status value.
func ParseRequestStatus(s string) (RequestStatus, bool) {
	switch RequestStatus(s) {
	case RequestOpen, RequestNegotiating, RequestMatched, RequestCompleted, RequestCancelled, RequestExpired:
		return RequestStatus(s), true
	default:
		return "", false
	}
}

// Terminal reports statuses no operation may leave.
func (s RequestStatus) Terminal() bool {
	return s == RequestCompleted || s == RequestCancelled
}

// Location is a WGS84 coordinate.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the coordinate lies in range.
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// Request is a posted need for an item.
type Request struct {
	ID              uuid.UUID
	RequesterID     uuid.UUID
	ItemDescription string
	OfferPrice      decimal.Decimal
	Urgency         Urgency
	RadiusMeters    float64
	Location        Location
	Status          RequestStatus
	FulfillerID     *uuid.UUID
	CreatedAt       time.Time
	DurationHours   float64
	ExpiresAt       time.Time
}

// ExpiryFor computes created + duration.
func ExpiryFor(createdAt time.Time, durationHours float64) time.Time {
	return createdAt.Add(time.Duration(durationHours * float64(time.Hour)))
}

// IsExpired reports now > ExpiresAt.
func (r Request) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// AcceptsOffers reports whether the stored status allows negotiation.
func (r Request) AcceptsOffers() bool {
	return r.Status == RequestOpen || r.Status == RequestNegotiating
}

// IsActive reports status ∈ {open, negotiating} and not expired.
func (r Request) IsActive(now time.Time) bool {
	return r.AcceptsOffers() && !r.IsExpired(now)
}

// EffectiveStatus is the status readers should display: open or negotiating
// requests past their expiry read as expired.
func (r Request) EffectiveStatus(now time.Time) RequestStatus {
	if r.AcceptsOffers() && r.IsExpired(now) {
		return RequestExpired
	}
	return r.Status
}

// HasMatch reports a matched request with a fulfiller.
func (r Request) HasMatch() bool {
	return r.FulfillerID != nil && r.Status == RequestMatched
}

// TimeRemaining is negative once expired.
func (r Request) TimeRemaining(now time.Time) time.Duration {
	return r.ExpiresAt.Sub(now)
}

// NewRequest is the createRequest input.
type NewRequest struct {
	ItemDescription string
	OfferPrice      decimal.Decimal
	Urgency         Urgency
	RadiusMeters    float64
	Location        Location
	DurationHours   float64 // 0 means Limits.DefaultDurationHours
}
