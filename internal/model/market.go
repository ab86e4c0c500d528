package model

import (
	"math"
	"time"
)

// DateLayout is the wire and storage format for bar and event dates.
const DateLayout = "2006-01-02"

// Bar is one daily OHLCV row. Missing or non-numeric fields are NaN.
type Bar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Complete reports whether every price field carries a value.
func (b Bar) Complete() bool {
	return !math.IsNaN(b.Open) && !math.IsNaN(b.High) && !math.IsNaN(b.Low) && !math.IsNaN(b.Close)
}

// Range returns High-Low, or NaN when either side is missing.
func (b Bar) Range() float64 {
	if math.IsNaN(b.High) || math.IsNaN(b.Low) {
		return math.NaN()
	}
	return b.High - b.Low
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a DateLayout string into a UTC day.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDay renders t using DateLayout.
func FormatDay(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Closes extracts the close series.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
