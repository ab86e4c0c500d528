package model

import (
	"strconv"
	"time"
)

// EventBatch is everything one symbol produced in one scan. It is written
// atomically by the persistence sink.
type EventBatch struct {
	Symbol       string
	Fractals     []FractalEvent
	NarrowRanges []NarrowRangeEvent
	Crosses      []CrossEvent
	Divergences  []DivergenceSignal

	// RegenerateDivergences drops stored divergences whose current fractal
	// is on or after DivergenceFrom before the new ones are written.
	RegenerateDivergences bool
	DivergenceFrom        time.Time

	// Bookmarks advance the explicit cursor per kind to the last bar seen.
	Bookmarks map[DetectorKind]time.Time
	// Period is the RSI period the batch was computed with.
	Period int
}

// Len counts the events in the batch.
func (b *EventBatch) Len() int {
	return len(b.Fractals) + len(b.NarrowRanges) + len(b.Crosses) + len(b.Divergences)
}

// Dedupe collapses repeated natural keys, keeping the last value and the
// first position of each key.
func (b *EventBatch) Dedupe() {
	b.Fractals = dedupe(b.Fractals, func(e FractalEvent) string {
		return e.Symbol + "|" + FormatDay(e.Date) + "|" + string(e.Polarity)
	})
	b.NarrowRanges = dedupe(b.NarrowRanges, func(e NarrowRangeEvent) string {
		return e.Symbol + "|" + FormatDay(e.Date) + "|" + strconv.Itoa(e.WindowSize)
	})
	b.Crosses = dedupe(b.Crosses, func(e CrossEvent) string {
		return e.Symbol + "|" + FormatDay(e.Date) + "|" + strconv.Itoa(e.Period) + "|" + string(e.Type)
	})
	b.Divergences = dedupe(b.Divergences, func(e DivergenceSignal) string {
		return e.Symbol + "|" + FormatDay(e.CurrentFractalDate) + "|" + string(e.Type) + "|" + FormatDay(e.ComparedFractalDate)
	})
}

func dedupe[T any](rows []T, key func(T) string) []T {
	if len(rows) < 2 {
		return rows
	}
	pos := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := key(r)
		if i, ok := pos[k]; ok {
			out[i] = r
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out
}
