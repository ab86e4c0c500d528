package calculator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// SMASeries computes a simple moving average aligned with values. Slots
// without a full window of valid inputs are NaN.
func SMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(values) < period {
		return out
	}
	if !hasGap(values) {
		sma := talib.Sma(values, period)
		copy(out[period-1:], sma[period-1:])
		return out
	}
	// talib keeps a running total, so a single NaN would poison every later
	// slot. Gapped series are averaged window by window instead.
	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		ok := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				ok = false
				break
			}
			sum += values[j]
		}
		if ok {
			out[i] = sum / float64(period)
		}
	}
	return out
}

func hasGap(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
