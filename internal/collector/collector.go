// Package collector pulls daily bars from upstream sources into the local
// store so scans can run against it.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"SignalScanner/internal/model"
	"SignalScanner/internal/provider"
)

// BarWriter stores bars keyed by (symbol, date).
type BarWriter interface {
	PutBars(ctx context.Context, bars []model.Bar) error
}

// Summary is the outcome of one Collect call.
type Summary struct {
	Symbols int
	Failed  []string
	Bars    int
}

// Collector copies bars from a source into a store, one symbol at a time.
type Collector struct {
	Source provider.BarProvider
	Dest   BarWriter
	log    zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(src provider.BarProvider, dst BarWriter, log zerolog.Logger) *Collector {
	return &Collector{Source: src, Dest: dst, log: log.With().Str("component", "collector").Logger()}
}

// Collect fetches [start, end] for each symbol (nil means every symbol the
// source knows) and writes it. A failing symbol is logged and skipped.
func (c *Collector) Collect(ctx context.Context, symbols []string, start, end time.Time) (Summary, error) {
	var sum Summary
	if symbols == nil {
		all, err := c.Source.Symbols(ctx)
		if err != nil {
			return sum, fmt.Errorf("list symbols: %w", err)
		}
		symbols = all
	}

	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Symbols++
		n, err := c.collectOne(ctx, sym, start, end)
		if err != nil {
			c.log.Error().Err(err).Str("symbol", sym).Msg("collect failed")
			sum.Failed = append(sum.Failed, sym)
			continue
		}
		sum.Bars += n
		c.log.Debug().Str("symbol", sym).Int("bars", n).Msg("collected")
	}
	c.log.Info().Str("source", c.Source.Name()).Int("symbols", sum.Symbols).Int("failed", len(sum.Failed)).
		Int("bars", sum.Bars).Msg("collect finished")
	return sum, nil
}

func (c *Collector) collectOne(ctx context.Context, symbol string, start, end time.Time) (int, error) {
	bars, err := c.Source.FetchBars(ctx, []string{symbol}, start, end)
	if err != nil {
		return 0, fmt.Errorf("fetch bars: %w", err)
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := c.Dest.PutBars(ctx, bars); err != nil {
		return 0, fmt.Errorf("store bars: %w", err)
	}
	return len(bars), nil
}
