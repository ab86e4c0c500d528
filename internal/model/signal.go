package model

import (
	"math"
	"time"
)

// Polarity distinguishes swing highs from swing lows.
type Polarity string

const (
	PolarityHigh Polarity = "HIGH" // bearish fractal
	PolarityLow  Polarity = "LOW"  // bullish fractal
)

// CrossType names the band a cross entered.
type CrossType string

const (
	CrossAboveUpper CrossType = "ABOVE_UPPER"
	CrossBelowLower CrossType = "BELOW_LOWER"
)

// DivergenceType names the hidden divergence flavour.
type DivergenceType string

const (
	HiddenBullish DivergenceType = "HIDDEN_BULLISH"
	HiddenBearish DivergenceType = "HIDDEN_BEARISH"
)

// FractalEvent is a 3-candle swing point. RangeHigh and RangeLow span the
// whole window, not just the center candle.
type FractalEvent struct {
	Symbol      string
	Date        time.Time
	Polarity    Polarity
	RangeHigh   float64
	RangeLow    float64
	CenterRSI   *float64
	CenterClose float64
}

// NarrowRangeEvent marks a bar whose range is the smallest of its window.
type NarrowRangeEvent struct {
	Symbol     string
	Date       time.Time
	WindowSize int
	RangeValue float64
	Rank       int
}

// CrossEvent is a strict RSI band entry.
type CrossEvent struct {
	Symbol        string
	Date          time.Time
	Period        int
	Type          CrossType
	Threshold     float64
	PrevRSI       float64
	CurrRSI       float64
	ReferenceHigh float64
}

// DivergenceSignal pairs a fractal with an earlier one of the same polarity.
// Rank 1 is the most recent qualifying compared fractal.
type DivergenceSignal struct {
	Symbol              string
	SignalDate          time.Time
	Type                DivergenceType
	CurrentFractalDate  time.Time
	CurrentClose        float64
	CurrentRSI          float64
	ComparedFractalDate time.Time
	ComparedClose       float64
	ComparedRSI         float64
	BuyAboveLevel       float64
	SellBelowLevel      float64
	Rank                int
}

// Float returns a pointer to v, or nil when v is NaN.
func Float(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
