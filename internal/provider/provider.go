package provider

import (
	"context"
	"time"

	"SignalScanner/internal/model"
)

// BarProvider reads daily bars from an upstream store.
type BarProvider interface {
	// FetchBars returns rows for symbols (nil means every symbol) between
	// start and end inclusive, sorted by (date, symbol) with no repeated
	// (symbol, date). A zero start or end leaves that side open.
	FetchBars(ctx context.Context, symbols []string, start, end time.Time) ([]model.Bar, error)
	// Symbols lists every symbol the provider knows, sorted.
	Symbols(ctx context.Context) ([]string, error)
	Name() string
}
