package model

import "time"

// RSIPoint is one cached RSI value keyed by (symbol, date, period).
type RSIPoint struct {
	Symbol string
	Date   time.Time
	Period int
	Value  float64
}

// DetectorKind identifies an event table and its bookmark.
type DetectorKind string

const (
	KindFractal     DetectorKind = "fractal"
	KindNarrowRange DetectorKind = "narrow_range"
	KindCross       DetectorKind = "rsi_cross"
	KindDivergence  DetectorKind = "divergence"
)

// BookmarkKinds are the detectors that carry their own incremental cursor.
// Divergences are regenerated from the fractal window.
var BookmarkKinds = []DetectorKind{KindFractal, KindNarrowRange, KindCross}

// Valid reports whether k is a known kind.
func (k DetectorKind) Valid() bool {
	switch k {
	case KindFractal, KindNarrowRange, KindCross, KindDivergence:
		return true
	}
	return false
}

// ScanMode is how a scan treats existing rows.
type ScanMode string

const (
	ModeFull        ScanMode = "full"
	ModeIncremental ScanMode = "incremental"
)

// RunSummary is the final tally of one scan invocation.
type RunSummary struct {
	RunID      string
	Mode       ScanMode
	StartedAt  time.Time
	FinishedAt time.Time
	Attempted  int
	Succeeded  int
	Failed     int
	Degraded   int
	Cancelled  bool
}
