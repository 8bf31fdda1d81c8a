// Package pricing computes sale line prices and sale totals. Every figure is
// rounded to two decimal places, half away from zero.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/shared"
)

// ErrNegativeInput rejects negative prices, markups or quantities.
var ErrNegativeInput = shared.Classify(shared.ErrValidation, "pricing input must not be negative")

// ErrSubCent rejects prices, markups or discounts with more than two decimals.
var ErrSubCent = shared.Classify(shared.ErrValidation, "pricing input must have at most two decimal places")

var hundred = decimal.NewFromInt(100)

// Line is a priced sale line.
type Line struct {
	EffectiveUnitPrice decimal.Decimal `json:"effective_unit_price"`
	LineTotal          decimal.Decimal `json:"line_total"`
}

// Round applies the ledger's money rounding.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// HasCents reports whether d is already at money precision.
func HasCents(d decimal.Decimal) bool {
	return d.Equal(Round(d))
}

// Price marks up base by markupPercent and multiplies by qty. The line total is
// taken from the already rounded unit price so that the printed unit price
// times quantity always reproduces the printed total.
func Price(base, markupPercent decimal.Decimal, qty int64) (Line, error) {
	switch {
	case base.IsNegative():
		return Line{}, fmt.Errorf("unit base price %s: %w", base, ErrNegativeInput)
	case markupPercent.IsNegative():
		return Line{}, fmt.Errorf("markup %s: %w", markupPercent, ErrNegativeInput)
	case qty < 0:
		return Line{}, fmt.Errorf("quantity %d: %w", qty, ErrNegativeInput)
	case !HasCents(base):
		return Line{}, fmt.Errorf("unit base price %s: %w", base, ErrSubCent)
	case !HasCents(markupPercent):
		return Line{}, fmt.Errorf("markup %s: %w", markupPercent, ErrSubCent)
	}
	effective := Round(base.Mul(hundred.Add(markupPercent)).Div(hundred))
	return Line{
		EffectiveUnitPrice: effective,
		LineTotal:          Round(effective.Mul(decimal.NewFromInt(qty))),
	}, nil
}

// Totals sums line totals and subtracts discount. It does not judge whether
// the discount is acceptable.
func Totals(lineTotals []decimal.Decimal, discount decimal.Decimal) (total, payable decimal.Decimal) {
	total = decimal.Zero
	for _, lt := range lineTotals {
		total = total.Add(lt)
	}
	total = Round(total)
	return total, Round(total.Sub(discount))
}
