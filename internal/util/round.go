package util

import "github.com/shopspring/decimal"

// Round2 rounds v to two decimal places, half away from zero, using decimal
// arithmetic so that values like 1.005 round as written.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Money returns round2(pct * price * qty / 100) computed in decimal.
func Money(pct, price float64, qty int64) float64 {
	v := decimal.NewFromFloat(pct).
		Mul(decimal.NewFromFloat(price)).
		Mul(decimal.NewFromInt(qty)).
		Div(decimal.NewFromInt(100))
	f, _ := v.Round(2).Float64()
	return f
}
