package util

import "github.com/shopspring/decimal"

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// MeanRounded returns the arithmetic mean of values rounded to places. Empty input yields 0.
func MeanRounded(values []float64, places int32) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	f, _ := sum.Div(decimal.NewFromInt(int64(len(values)))).Round(places).Float64()
	return f
}
