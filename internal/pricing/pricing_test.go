package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsledger/partsledger/internal/shared"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPriceMarkup(t *testing.T) {
	line, err := Price(dec("50.00"), dec("10"), 4)
	require.NoError(t, err)
	assert.Equal(t, "55.00", line.EffectiveUnitPrice.StringFixed(2))
	assert.Equal(t, "220.00", line.LineTotal.StringFixed(2))
}

func TestPriceRoundsHalfUp(t *testing.T) {
	cases := []struct {
		base, markup string
		qty          int64
		unit, total  string
	}{
		{"10.05", "50", 3, "15.08", "45.24"},
		{"0.01", "50", 1, "0.02", "0.02"},
		{"19.99", "0", 7, "19.99", "139.93"},
		{"33.33", "12.5", 2, "37.50", "75.00"},
		{"0", "25", 10, "0.00", "0.00"},
	}
	for _, tc := range cases {
		line, err := Price(dec(tc.base), dec(tc.markup), tc.qty)
		require.NoError(t, err)
		assert.Equal(t, tc.unit, line.EffectiveUnitPrice.StringFixed(2), tc.base)
		assert.Equal(t, tc.total, line.LineTotal.StringFixed(2), tc.base)
	}
}

func TestPriceRejectsNegativeInput(t *testing.T) {
	_, err := Price(dec("-1"), dec("0"), 1)
	require.ErrorIs(t, err, ErrNegativeInput)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = Price(dec("1"), dec("-5"), 1)
	require.ErrorIs(t, err, ErrNegativeInput)

	_, err = Price(dec("1"), dec("5"), -1)
	require.ErrorIs(t, err, ErrNegativeInput)
}

func TestPriceRejectsSubCentInput(t *testing.T) {
	_, err := Price(dec("9.995"), dec("100"), 1)
	require.ErrorIs(t, err, ErrSubCent)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = Price(dec("10"), dec("12.345"), 1)
	require.ErrorIs(t, err, ErrSubCent)

	assert.True(t, HasCents(dec("12.50")))
	assert.False(t, HasCents(dec("0.005")))
}

func TestTotals(t *testing.T) {
	total, payable := Totals([]decimal.Decimal{dec("220.00"), dec("15.08"), dec("0.02")}, dec("35.10"))
	assert.Equal(t, "235.10", total.StringFixed(2))
	assert.Equal(t, "200.00", payable.StringFixed(2))

	total, payable = Totals(nil, decimal.Zero)
	assert.True(t, total.IsZero())
	assert.True(t, payable.IsZero())
}
