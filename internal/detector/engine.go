package detector

import (
	"math"
	"time"

	"SignalScanner/internal/calculator"
	"SignalScanner/internal/model"
)

// Config gathers the detector parameters shared by every symbol in a scan.
type Config struct {
	RSIPeriod          int
	Bands              Bands
	NarrowRangeWindows []int
	DivergenceLookback int
	SMAFilters         []int
}

// DefaultConfig returns RSI(14), 80/20 bands, NR4/7/13/21 and K=3.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:          14,
		Bands:              DefaultBands,
		NarrowRangeWindows: []int{4, 7, 13, 21},
		DivergenceLookback: 3,
	}
}

// MaxWindow is the widest narrow-range window.
func (c Config) MaxWindow() int {
	m := 0
	for _, w := range c.NarrowRangeWindows {
		if w > m {
			m = w
		}
	}
	return m
}

// MaxSMAFilter is the longest SMA filter period.
func (c Config) MaxSMAFilter() int {
	m := 0
	for _, p := range c.SMAFilters {
		if p > m {
			m = p
		}
	}
	return m
}

// Margin is how many candles before a bookmark a detector must re-derive so
// that events on the boundary come out the same as in a full pass.
func (c Config) Margin(kind model.DetectorKind) int {
	switch kind {
	case model.KindFractal, model.KindDivergence:
		return 2
	case model.KindNarrowRange:
		if w := c.MaxWindow(); w > 1 {
			return w - 1
		}
		return 1
	case model.KindCross:
		return 1
	}
	return 0
}

// Input is one symbol's material for Evaluate.
type Input struct {
	Symbol string
	Bars   []model.Bar // sorted ascending by date
	RSI    []float64   // aligned with Bars
	// PriorFractals are stored fractals dated before the first bar that can
	// centre a fractal, used as divergence history.
	PriorFractals []model.FractalEvent
	SMA           SMALookup
	// From is the first event date kept per kind. A zero time keeps all.
	From map[model.DetectorKind]time.Time
	// To is the last event date kept. A zero time keeps all.
	To time.Time
}

// Evaluate runs every detector over one symbol and returns the batch the
// persistence sink should apply.
func Evaluate(in Input, cfg Config) model.EventBatch {
	batch := model.EventBatch{Symbol: in.Symbol, Period: cfg.RSIPeriod}
	if len(in.Bars) == 0 {
		return batch
	}

	keep := func(kind model.DetectorKind, d time.Time) bool {
		if from := in.From[kind]; !from.IsZero() && d.Before(from) {
			return false
		}
		return in.To.IsZero() || !d.After(in.To)
	}

	// Fractals found before the window still count as divergence history.
	var detected []model.FractalEvent
	for _, f := range Fractals(in.Bars, SeriesLookup(in.RSI)) {
		if !in.To.IsZero() && f.Date.After(in.To) {
			continue
		}
		detected = append(detected, f)
		if keep(model.KindFractal, f.Date) {
			batch.Fractals = append(batch.Fractals, f)
		}
	}
	for _, e := range NarrowRangesMulti(in.Bars, cfg.NarrowRangeWindows) {
		if keep(model.KindNarrowRange, e.Date) {
			batch.NarrowRanges = append(batch.NarrowRanges, e)
		}
	}
	for _, e := range Crosses(in.Bars, in.RSI, cfg.RSIPeriod, cfg.Bands) {
		if keep(model.KindCross, e.Date) {
			batch.Crosses = append(batch.Crosses, e)
		}
	}

	history := make([]model.FractalEvent, 0, len(in.PriorFractals)+len(detected))
	firstCenter := FirstCenter(in.Bars)
	for _, f := range in.PriorFractals {
		if f.Date.Before(firstCenter) {
			history = append(history, f)
		}
	}
	history = append(history, detected...)
	batch.Divergences = Divergences(history, batch.Fractals, DivergenceOptions{
		Lookback:   cfg.DivergenceLookback,
		SMAFilters: cfg.SMAFilters,
		SMA:        in.SMA,
	})
	batch.RegenerateDivergences = true
	batch.DivergenceFrom = in.From[model.KindFractal]

	last := in.Bars[len(in.Bars)-1].Date
	if !in.To.IsZero() && last.After(in.To) {
		last = in.To
	}
	batch.Bookmarks = make(map[model.DetectorKind]time.Time, len(model.BookmarkKinds))
	for _, k := range model.BookmarkKinds {
		batch.Bookmarks[k] = last
	}
	return batch
}

// FirstCenter is the earliest date Fractals can report for bars. Stored
// fractals before it are not re-derived from bars.
func FirstCenter(bars []model.Bar) time.Time {
	switch len(bars) {
	case 0:
		return time.Time{}
	case 1:
		return bars[0].Date
	}
	return bars[1].Date
}

// SeriesSMA serves SMA values computed from the same bars the detectors
// see, so its values are never older than the fractal being filtered.
type SeriesSMA struct {
	index  map[time.Time]int
	series map[int][]float64
}

// NewSeriesSMA computes one close SMA series per period over bars.
func NewSeriesSMA(bars []model.Bar, periods []int) *SeriesSMA {
	idx := make(map[time.Time]int, len(bars))
	for i, b := range bars {
		idx[model.Day(b.Date)] = i
	}
	closes := model.Closes(bars)
	series := make(map[int][]float64, len(periods))
	for _, p := range periods {
		series[p] = calculator.SMASeries(closes, p)
	}
	return &SeriesSMA{index: idx, series: series}
}

// SMA implements SMALookup.
func (s *SeriesSMA) SMA(period int, date time.Time) (float64, bool) {
	i, ok := s.index[model.Day(date)]
	if !ok {
		return 0, false
	}
	v, ok := s.series[period]
	if !ok || i >= len(v) || math.IsNaN(v[i]) {
		return 0, false
	}
	return v[i], true
}
