package detector

import (
	"math"

	"SignalScanner/internal/model"
)

// Bands are the RSI thresholds a cross is measured against.
type Bands struct {
	Upper float64
	Lower float64
}

// DefaultBands is the classic 80/20 pair.
var DefaultBands = Bands{Upper: 80, Lower: 20}

// Crosses emits a band entry when the prior RSI fails the band test and the
// current one satisfies it. rsi must be aligned with bars. Both bands are
// tested at every index.
func Crosses(bars []model.Bar, rsi []float64, period int, bands Bands) []model.CrossEvent {
	n := len(bars)
	if len(rsi) < n {
		n = len(rsi)
	}
	var out []model.CrossEvent
	for i := 1; i < n; i++ {
		prev, curr := rsi[i-1], rsi[i]
		if math.IsNaN(prev) || math.IsNaN(curr) || math.IsNaN(bars[i].High) {
			continue
		}
		event := func(t model.CrossType, threshold float64) model.CrossEvent {
			return model.CrossEvent{
				Symbol:        bars[i].Symbol,
				Date:          bars[i].Date,
				Period:        period,
				Type:          t,
				Threshold:     threshold,
				PrevRSI:       prev,
				CurrRSI:       curr,
				ReferenceHigh: bars[i].High,
			}
		}
		if prev < bands.Upper && curr >= bands.Upper {
			out = append(out, event(model.CrossAboveUpper, bands.Upper))
		}
		if prev > bands.Lower && curr <= bands.Lower {
			out = append(out, event(model.CrossBelowLower, bands.Lower))
		}
	}
	return out
}
