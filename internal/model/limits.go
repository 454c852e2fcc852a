package model

import "github.com/shopspring/decimal"

// Limits bounds user input accepted by the marketplace.
type Limits struct {
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal

	MinRadiusMeters     float64
	MaxRadiusMeters     float64
	DefaultRadiusMeters float64

	MinDurationHours     float64
	MaxDurationHours     float64
	DefaultDurationHours float64

	MaxItemDescriptionLen int
	MaxMessageLen         int
	MinDisplayNameLen     int
	MaxDisplayNameLen     int
}

// DefaultLimits returns the production bounds.
func DefaultLimits() Limits {
	return Limits{
		MinPrice:              decimal.NewFromInt(1),
		MaxPrice:              decimal.NewFromInt(100),
		MinRadiusMeters:       100,
		MaxRadiusMeters:       1600,
		DefaultRadiusMeters:   800, // ~10 min walk
		MinDurationHours:      0.5,
		MaxDurationHours:      24,
		DefaultDurationHours:  2,
		MaxItemDescriptionLen: 200,
		MaxMessageLen:         500,
		MinDisplayNameLen:     2,
		MaxDisplayNameLen:     30,
	}
}

// PriceInRange reports MinPrice <= p <= MaxPrice.
func (l Limits) PriceInRange(p decimal.Decimal) bool {
	return p.GreaterThanOrEqual(l.MinPrice) && p.LessThanOrEqual(l.MaxPrice)
}
