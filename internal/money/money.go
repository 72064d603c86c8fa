// Package money converts between decimal amounts and the integer minor units
// (satang) the store keeps, so the store can add amounts atomically.
package money

import "github.com/shopspring/decimal"

func ToMinor(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Split divides total evenly across n shares, rounded to the minor unit.
func Split(total decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(n))).Round(2)
}
