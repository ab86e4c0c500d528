package calculator

import (
	"math"

	"SignalScanner/internal/model"
)

// Envelope returns the highest High and lowest Low over bars[from..to]
// inclusive. Missing values propagate as NaN.
func Envelope(bars []model.Bar, from, to int) (high, low float64) {
	if from < 0 || to >= len(bars) || from > to {
		return math.NaN(), math.NaN()
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := from; i <= to; i++ {
		if math.IsNaN(bars[i].High) || math.IsNaN(bars[i].Low) {
			return math.NaN(), math.NaN()
		}
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return high, low
}

// Ranges returns High-Low per bar.
func Ranges(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Range()
	}
	return out
}

// WindowMin returns the minimum of values[from..to], or NaN if any slot in
// the window is missing.
func WindowMin(values []float64, from, to int) float64 {
	if from < 0 || to >= len(values) || from > to {
		return math.NaN()
	}
	m := math.Inf(1)
	for i := from; i <= to; i++ {
		if math.IsNaN(values[i]) {
			return math.NaN()
		}
		if values[i] < m {
			m = values[i]
		}
	}
	return m
}
