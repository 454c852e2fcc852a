// Package fee computes the platform fee charged on top of an item price.
package fee

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/and161185/flour/internal/errs"
)

var (
	// Rate is the share of the item price taken by the platform.
	Rate = decimal.RequireFromString("0.10")
	// Cap is the maximum fee per transaction.
	Cap = decimal.RequireFromString("2.00")
)

// places is the currency precision; amounts are rounded half-up to cents.
const places = 2

// Breakdown is the priced view of a single item.
type Breakdown struct {
	ItemPrice   decimal.Decimal
	PlatformFee decimal.Decimal
	Total       decimal.Decimal
}

// PlatformFee returns min(price*Rate, Cap) rounded half-up to cents.
func PlatformFee(itemPrice decimal.Decimal) (decimal.Decimal, error) {
	if itemPrice.IsNegative() {
		return decimal.Zero, fmt.Errorf("fee: negative item price %s: %w", itemPrice, errs.ErrInvalidArgument)
	}
	f := decimal.Min(itemPrice.Mul(Rate), Cap)
	// Round is half away from zero, which is half-up for non-negative input.
	return f.Round(places), nil
}

// Total returns itemPrice + PlatformFee(itemPrice).
func Total(itemPrice decimal.Decimal) (decimal.Decimal, error) {
	f, err := PlatformFee(itemPrice)
	if err != nil {
		return decimal.Zero, err
	}
	return itemPrice.Add(f), nil
}

// Compute returns the full breakdown for an item price.
func Compute(itemPrice decimal.Decimal) (Breakdown, error) {
	f, err := PlatformFee(itemPrice)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{ItemPrice: itemPrice, PlatformFee: f, Total: itemPrice.Add(f)}, nil
}

// ToMinorUnits converts an amount to cents, rounding half-up.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(places).Shift(places).IntPart()
}
