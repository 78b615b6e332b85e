// Package money holds the integer minor-unit arithmetic shared by forecasting
// and settlement. All rounding is half-up so estimates and real payments agree.
package money

import (
	"github.com/shopspring/decimal"
)

// DivRound divides amount by n and rounds half-up to whole minor units.
// n must be positive.
func DivRound(amount int64, n int64) int64 {
	if n <= 0 {
		panic("money: division by non-positive count")
	}
	return roundHalfUp(decimal.NewFromInt(amount).Div(decimal.NewFromInt(n)))
}

// Average returns the half-up rounded mean of amounts and false when amounts is empty.
func Average(amounts []int64) (int64, bool) {
	if len(amounts) == 0 {
		return 0, false
	}
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(decimal.NewFromInt(a))
	}
	return roundHalfUp(sum.Div(decimal.NewFromInt(int64(len(amounts))))), true
}

// Format renders minor units as a plain decimal string, e.g. 12345 with 2 digits -> "123.45".
func Format(amount int64, minorDigits int32) string {
	return decimal.New(amount, -minorDigits).StringFixed(minorDigits)
}

// Parse converts a decimal string into minor units, rounding half-up.
func Parse(s string, minorDigits int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return roundHalfUp(d.Shift(minorDigits)), nil
}

// roundHalfUp rounds toward +inf on exact halves, so -2.5 becomes -2.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Add(decimal.NewFromFloat(0.5)).Floor().IntPart()
}
