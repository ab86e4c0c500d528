package detector

import (
	"math"
	"time"

	"SignalScanner/internal/model"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dayN(i int) time.Time { return day0.AddDate(0, 0, i) }

// barsFromCloses gives every bar a half-point wick on each side.
func barsFromCloses(symbol string, closes []float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			Symbol: symbol, Date: dayN(i),
			Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000,
		}
	}
	return bars
}

func barsFromHL(highs, lows []float64) []model.Bar {
	bars := make([]model.Bar, len(highs))
	for i := range highs {
		mid := (highs[i] + lows[i]) / 2
		bars[i] = model.Bar{
			Symbol: "X", Date: dayN(i),
			Open: mid, High: highs[i], Low: lows[i], Close: mid, Volume: 1000,
		}
	}
	return bars
}

func zigzag(n int) []float64 {
	out := make([]float64, n)
	p := 50.0
	for i := range out {
		p += math.Sin(float64(i)*0.9)*3 + math.Cos(float64(i)*0.23)
		out[i] = p
	}
	return out
}

func ptr(v float64) *float64 { return &v }

func indexOf(bars []model.Bar, d time.Time) int {
	for i, b := range bars {
		if b.Date.Equal(d) {
			return i
		}
	}
	return -1
}
