package calculator

import "math"

// RSISeries computes a Wilder-smoothed RSI aligned 1:1 with closes.
//
// The averages are seeded with the simple mean of the first period changes,
// so the first defined value sits at index period. NaN closes are skipped:
// their slot stays NaN and the next valid close is diffed against the last
// valid one. A flat series yields 0, a series with no losses yields 100.
func RSISeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 {
		return out
	}

	var (
		prev             float64
		seen             int // valid closes consumed so far
		avgGain, avgLoss float64
	)
	for i, c := range closes {
		if math.IsNaN(c) {
			continue
		}
		if seen == 0 {
			prev = c
			seen++
			continue
		}
		change := c - prev
		prev = c
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		switch {
		case seen < period:
			avgGain += gain
			avgLoss += loss
		case seen == period:
			avgGain = (avgGain + gain) / float64(period)
			avgLoss = (avgLoss + loss) / float64(period)
			out[i] = rsiValue(avgGain, avgLoss)
		default:
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
			out[i] = rsiValue(avgGain, avgLoss)
		}
		seen++
	}
	return out
}

// ValidCount reports how many non-NaN values precede and include index i.
// The scan engine uses it to decide whether a locally computed RSI has had
// enough warmup to match a full-history computation.
func ValidCount(values []float64, i int) int {
	n := 0
	for j := 0; j <= i && j < len(values); j++ {
		if !math.IsNaN(values[j]) {
			n++
		}
	}
	return n
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain > 0 {
			return 100
		}
		return 0
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
