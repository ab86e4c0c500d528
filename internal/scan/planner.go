package scan

import (
	"context"
	"time"

	"SignalScanner/internal/detector"
	"SignalScanner/internal/model"
	"SignalScanner/internal/store"
)

// window is one symbol's read and keep plan.
type window struct {
	// fetchStart is the first bar date to read. Zero reads all history.
	fetchStart time.Time
	// full marks kinds with nothing stored yet.
	full map[model.DetectorKind]bool
	// bookmarks are the last processed dates of the incremental kinds.
	bookmarks map[model.DetectorKind]time.Time
	// lookbackFrom, when set, fixes every kind's first kept date.
	lookbackFrom time.Time
}

// Incremental reports whether every kind resumes from a bookmark.
func (w window) Incremental() bool {
	return len(w.full) == 0 && w.lookbackFrom.IsZero()
}

// historyCandles is how many candles before the first kept event the fetch
// must include so RSI, SMA filters and the widest detector window are warm.
func historyCandles(cfg detector.Config, warmup int) int {
	margin := 0
	for _, k := range model.BookmarkKinds {
		if m := cfg.Margin(k); m > margin {
			margin = m
		}
	}
	return margin + warmup + cfg.MaxSMAFilter() + cfg.MaxWindow()
}

// calendarDays converts trading candles to a calendar span with slack for
// weekends and holidays.
func calendarDays(candles int) int {
	return candles*7/5 + 10
}

// planIncremental reads each kind's bookmark. A missing bookmark puts that
// kind in full mode, which forces a full-history read.
func planIncremental(ctx context.Context, r store.BookmarkReader, symbol string, period int, cfg detector.Config, warmup int) (window, error) {
	w := window{
		full:      make(map[model.DetectorKind]bool),
		bookmarks: make(map[model.DetectorKind]time.Time),
	}
	for _, kind := range model.BookmarkKinds {
		if r == nil {
			w.full[kind] = true
			continue
		}
		last, ok, err := r.Bookmark(ctx, symbol, kind, period)
		if err != nil {
			return w, err
		}
		if !ok {
			w.full[kind] = true
			continue
		}
		w.bookmarks[kind] = last
	}
	if len(w.full) > 0 {
		return w, nil
	}

	var earliest time.Time
	for _, last := range w.bookmarks {
		if earliest.IsZero() || last.Before(earliest) {
			earliest = last
		}
	}
	w.fetchStart = earliest.AddDate(0, 0, -calendarDays(historyCandles(cfg, warmup)))
	return w, nil
}

// planLookback keeps events from asOf-lookbackDays. Zero days reads and
// keeps the whole history.
func planLookback(asOf time.Time, lookbackDays int, cfg detector.Config, warmup int) window {
	if lookbackDays <= 0 {
		return window{}
	}
	from := asOf.AddDate(0, 0, -lookbackDays)
	return window{
		lookbackFrom: from,
		fetchStart:   from.AddDate(0, 0, -calendarDays(historyCandles(cfg, warmup))),
	}
}

// eventStarts picks the first date each kind keeps. For a resumed kind that
// is the first bar after its bookmark, moved back by the kind's margin so
// boundary events are re-derived and overwritten in place.
func (w window) eventStarts(bars []model.Bar, cfg detector.Config) map[model.DetectorKind]time.Time {
	from := make(map[model.DetectorKind]time.Time, len(model.BookmarkKinds))
	for _, kind := range model.BookmarkKinds {
		if !w.lookbackFrom.IsZero() {
			from[kind] = w.lookbackFrom
			continue
		}
		last, ok := w.bookmarks[kind]
		if !ok || w.full[kind] || len(bars) == 0 {
			continue
		}
		idx := len(bars)
		for i, b := range bars {
			if b.Date.After(last) {
				idx = i
				break
			}
		}
		start := idx - cfg.Margin(kind)
		if start < 0 {
			start = 0
		}
		if start >= len(bars) {
			start = len(bars) - 1
		}
		from[kind] = bars[start].Date
	}
	return from
}
