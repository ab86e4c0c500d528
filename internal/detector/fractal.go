package detector

import (
	"math"

	"SignalScanner/internal/calculator"
	"SignalScanner/internal/model"
)

// RSILookup returns the RSI value already known for bar i. ok is false when
// no value exists; the detector never recomputes one itself.
type RSILookup func(i int) (value float64, ok bool)

// SeriesLookup adapts an aligned RSI series to an RSILookup.
func SeriesLookup(series []float64) RSILookup {
	return func(i int) (float64, bool) {
		if i < 0 || i >= len(series) || math.IsNaN(series[i]) {
			return 0, false
		}
		return series[i], true
	}
}

// Fractals scans a 3-candle window over bars sorted ascending by date and
// returns swing highs and swing lows. An index may emit both. The first and
// last bar are never centers, and any window with a missing high, low or
// center close is skipped.
func Fractals(bars []model.Bar, rsi RSILookup) []model.FractalEvent {
	if len(bars) < 3 {
		return nil
	}
	var out []model.FractalEvent
	for i := 1; i < len(bars)-1; i++ {
		prev, cur, next := bars[i-1], bars[i], bars[i+1]
		if math.IsNaN(cur.Close) {
			continue
		}
		rangeHigh, rangeLow := calculator.Envelope(bars, i-1, i+1)
		if math.IsNaN(rangeHigh) {
			continue
		}

		var centerRSI *float64
		if rsi != nil {
			if v, ok := rsi(i); ok {
				centerRSI = model.Float(v)
			}
		}
		event := func(p model.Polarity) model.FractalEvent {
			return model.FractalEvent{
				Symbol:      cur.Symbol,
				Date:        cur.Date,
				Polarity:    p,
				RangeHigh:   rangeHigh,
				RangeLow:    rangeLow,
				CenterRSI:   centerRSI,
				CenterClose: cur.Close,
			}
		}

		if cur.High > prev.High && cur.High > next.High {
			out = append(out, event(model.PolarityHigh))
		}
		if cur.Low < prev.Low && cur.Low < next.Low {
			out = append(out, event(model.PolarityLow))
		}
	}
	return out
}
