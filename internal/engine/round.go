package engine

import "github.com/shopspring/decimal"

// round rounds half away from zero at the given number of decimals. Money
// and liters are rounded through decimal so 783.36 stays 783.36.
func round(v float64, places int32) float64 {
	if !finite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// known returns a rounded pointer to v, or nil when v is not a finite
// number. It is the only way numbers enter the optional result fields.
func known(v float64, places int32) *float64 {
	if !finite(v) {
		return nil
	}
	r := round(v, places)
	return &r
}
