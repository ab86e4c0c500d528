package store

import (
	"context"
	"time"

	"SignalScanner/internal/model"
	"SignalScanner/internal/provider"
)

// Bookmark modes.
const (
	// BookmarkInferred derives the cursor from MAX(date) of the event table.
	BookmarkInferred = "inferred"
	// BookmarkExplicit reads the scan_bookmarks table, which every SaveBatch
	// advances to the last bar it processed.
	BookmarkExplicit = "explicit"
)

// Query filters reporting reads. Zero values leave a filter off.
type Query struct {
	Symbol string
	From   time.Time
	To     time.Time
	Limit  int
	// Latest keeps only each symbol's newest event.
	Latest bool
}

// Sink persists one symbol's events atomically. Rows are upserted by natural
// key so re-running a scan never duplicates them.
type Sink interface {
	SaveBatch(ctx context.Context, batch model.EventBatch) error
}

// BookmarkReader answers where a symbol's last scan stopped.
type BookmarkReader interface {
	// Bookmark returns the last processed date for (symbol, kind). ok is
	// false when nothing is stored yet. period only matters for RSI crosses.
	Bookmark(ctx context.Context, symbol string, kind model.DetectorKind, period int) (last time.Time, ok bool, err error)
	// PriorFractals returns up to perPolarity stored fractals of each
	// polarity dated before before, oldest first.
	PriorFractals(ctx context.Context, symbol string, before time.Time, perPolarity int) ([]model.FractalEvent, error)
}

// RSICache is a keyed store of (symbol, date, period) -> RSI. A miss is
// never an error.
type RSICache interface {
	// GetRSI returns cached values keyed by model.FormatDay(date).
	GetRSI(ctx context.Context, symbol string, period int, from, to time.Time) (map[string]float64, error)
	PutRSI(ctx context.Context, points []model.RSIPoint) error
}

// RunRecorder keeps the scan run log.
type RunRecorder interface {
	RecordRun(ctx context.Context, run model.RunSummary) error
}

// Reader serves the event tables to reporting collaborators.
type Reader interface {
	Fractals(ctx context.Context, q Query) ([]model.FractalEvent, error)
	NarrowRanges(ctx context.Context, q Query) ([]model.NarrowRangeEvent, error)
	Crosses(ctx context.Context, q Query) ([]model.CrossEvent, error)
	Divergences(ctx context.Context, q Query) ([]model.DivergenceSignal, error)
	Runs(ctx context.Context, limit int) ([]model.RunSummary, error)
}

// BarWriter loads bars, replacing rows with the same (symbol, date).
type BarWriter interface {
	PutBars(ctx context.Context, bars []model.Bar) error
}

// Store is everything a backend offers.
type Store interface {
	provider.BarProvider
	BarWriter
	Sink
	BookmarkReader
	RSICache
	RunRecorder
	Reader
	Close() error
}

// Options tune a backend.
type Options struct {
	BookmarkMode string
}

func (o Options) withDefaults() Options {
	if o.BookmarkMode == "" {
		o.BookmarkMode = BookmarkInferred
	}
	return o
}

func checkBookmarkMode(mode string) error {
	switch mode {
	case BookmarkInferred, BookmarkExplicit:
		return nil
	}
	return NewValidationError("bookmark_mode", "must be inferred or explicit", mode)
}

// bookmarkPeriod collapses the period for kinds whose rows do not carry one.
func bookmarkPeriod(kind model.DetectorKind, period int) int {
	if kind == model.KindCross {
		return period
	}
	return 0
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Postgres)(nil)
)
