package fee

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/and161185/flour/internal/errs"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPlatformFee_Table(t *testing.T) {
	t.Parallel()

	cases := []struct {
		price string
		want  string
	}{
		{"0", "0"},
		{"10", "1.00"},
		{"15", "1.50"},
		{"20", "2.00"},
		{"19.99", "2.00"},
		{"100", "2.00"},
		{"3.33", "0.33"},
		// half-up pins
		{"0.05", "0.01"},
		{"0.25", "0.03"},
		{"0.15", "0.02"},
	}
	for _, c := range cases {
		got, err := PlatformFee(d(c.price))
		require.NoError(t, err, c.price)
		require.True(t, got.Equal(d(c.want)), "fee(%s)=%s want %s", c.price, got, c.want)
	}
}

func TestPlatformFee_NeverExceedsCap(t *testing.T) {
	t.Parallel()

	for cents := int64(0); cents <= 50000; cents += 37 {
		p := decimal.New(cents, -2)
		got, err := PlatformFee(p)
		require.NoError(t, err)
		require.True(t, got.LessThanOrEqual(Cap), "fee(%s)=%s", p, got)
		want := decimal.Min(p.Mul(Rate), Cap).Round(2)
		require.True(t, got.Equal(want))
	}
}

func TestPlatformFee_Negative(t *testing.T) {
	t.Parallel()

	_, err := PlatformFee(d("-1"))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = Total(d("-0.01"))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestCompute_Scenario(t *testing.T) {
	t.Parallel()

	b, err := Compute(d("15.00"))
	require.NoError(t, err)
	require.True(t, b.PlatformFee.Equal(d("1.50")))
	require.True(t, b.Total.Equal(d("16.50")))

	tot, err := Total(d("100"))
	require.NoError(t, err)
	require.True(t, tot.Equal(d("102")))
}

func TestToMinorUnits(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(1650), ToMinorUnits(d("16.50")))
	require.Equal(t, int64(150), ToMinorUnits(d("1.5")))
	require.Equal(t, int64(1), ToMinorUnits(d("0.005")))
	require.Equal(t, int64(0), ToMinorUnits(decimal.Zero))
}
