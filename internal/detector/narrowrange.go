package detector

import (
	"math"
	"sort"

	"SignalScanner/internal/calculator"
	"SignalScanner/internal/model"
)

// NarrowRanges emits an NR-N event for every bar whose high-low range is
// less than or equal to every range in the window of itself plus the N-1
// bars before it. Equal minima all qualify. Windows containing a missing
// range are skipped.
func NarrowRanges(bars []model.Bar, window int) []model.NarrowRangeEvent {
	if window < 1 || len(bars) < window {
		return nil
	}
	ranges := calculator.Ranges(bars)
	var out []model.NarrowRangeEvent
	for i := window - 1; i < len(bars); i++ {
		low := calculator.WindowMin(ranges, i-window+1, i)
		if math.IsNaN(low) {
			continue
		}
		if ranges[i] <= low {
			out = append(out, model.NarrowRangeEvent{
				Symbol:     bars[i].Symbol,
				Date:       bars[i].Date,
				WindowSize: window,
				RangeValue: ranges[i],
				Rank:       1,
			})
		}
	}
	return out
}

// NarrowRangesMulti runs NarrowRanges for every window and orders the result
// by date, then window size.
func NarrowRangesMulti(bars []model.Bar, windows []int) []model.NarrowRangeEvent {
	var out []model.NarrowRangeEvent
	for _, w := range windows {
		out = append(out, NarrowRanges(bars, w)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].WindowSize < out[j].WindowSize
	})
	return out
}
