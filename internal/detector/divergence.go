package detector

import (
	"sort"
	"time"

	"SignalScanner/internal/model"
)

// SMALookup supplies simple moving average values maintained outside the
// matcher. A value for date must be computed from closes up to and including
// that date. When ok is false the value is treated as unavailable and any
// signal gated on it is suppressed rather than emitted unfiltered.
type SMALookup interface {
	SMA(period int, date time.Time) (value float64, ok bool)
}

// DivergenceOptions configures MatchDivergences.
type DivergenceOptions struct {
	Lookback   int   // prior same-polarity fractals to compare against
	SMAFilters []int // SMA periods the current close must sit on the right side of
	SMA        SMALookup
}

// MatchDivergences compares current against the Lookback most recent earlier
// fractals of the same polarity found in history and returns one signal per
// qualifying pair, most recent compared fractal first.
//
// Swing lows: a higher close with a lower RSI is hidden bullish.
// Swing highs: a lower close with a higher RSI is hidden bearish.
func MatchDivergences(history []model.FractalEvent, current model.FractalEvent, opts DivergenceOptions) []model.DivergenceSignal {
	if opts.Lookback <= 0 || current.CenterRSI == nil {
		return nil
	}
	prior := priorSamePolarity(history, current, opts.Lookback)
	if len(prior) == 0 {
		return nil
	}

	sigType := model.HiddenBullish
	if current.Polarity == model.PolarityHigh {
		sigType = model.HiddenBearish
	}
	if !passesSMAFilters(current, sigType, opts) {
		return nil
	}

	var out []model.DivergenceSignal
	for i := len(prior) - 1; i >= 0; i-- {
		prev := prior[i]
		if prev.CenterRSI == nil {
			continue
		}
		currRSI, prevRSI := *current.CenterRSI, *prev.CenterRSI
		var hit bool
		switch sigType {
		case model.HiddenBullish:
			hit = current.CenterClose > prev.CenterClose && currRSI < prevRSI
		case model.HiddenBearish:
			hit = current.CenterClose < prev.CenterClose && currRSI > prevRSI
		}
		if !hit {
			continue
		}
		out = append(out, model.DivergenceSignal{
			Symbol:              current.Symbol,
			SignalDate:          current.Date,
			Type:                sigType,
			CurrentFractalDate:  current.Date,
			CurrentClose:        current.CenterClose,
			CurrentRSI:          currRSI,
			ComparedFractalDate: prev.Date,
			ComparedClose:       prev.CenterClose,
			ComparedRSI:         prevRSI,
			BuyAboveLevel:       current.RangeHigh,
			SellBelowLevel:      current.RangeLow,
			Rank:                len(out) + 1,
		})
	}
	return out
}

// Divergences runs MatchDivergences for every target fractal against the
// combined history. history does not need to be sorted.
func Divergences(history, targets []model.FractalEvent, opts DivergenceOptions) []model.DivergenceSignal {
	sorted := make([]model.FractalEvent, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var out []model.DivergenceSignal
	for _, f := range targets {
		out = append(out, MatchDivergences(sorted, f, opts)...)
	}
	return out
}

// priorSamePolarity returns up to k fractals of current's polarity dated
// strictly before it, oldest first. history must be sorted by date.
func priorSamePolarity(history []model.FractalEvent, current model.FractalEvent, k int) []model.FractalEvent {
	var prior []model.FractalEvent
	for _, f := range history {
		if f.Polarity != current.Polarity || f.Symbol != current.Symbol {
			continue
		}
		if !f.Date.Before(current.Date) {
			break
		}
		prior = append(prior, f)
	}
	if len(prior) > k {
		prior = prior[len(prior)-k:]
	}
	return prior
}

func passesSMAFilters(current model.FractalEvent, t model.DivergenceType, opts DivergenceOptions) bool {
	for _, p := range opts.SMAFilters {
		if opts.SMA == nil {
			return false
		}
		v, ok := opts.SMA.SMA(p, current.Date)
		if !ok {
			return false
		}
		if t == model.HiddenBullish && current.CenterClose <= v {
			return false
		}
		if t == model.HiddenBearish && current.CenterClose >= v {
			return false
		}
	}
	return true
}
