package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"SignalScanner/internal/model"
)

// MemoryProvider returns controllable fixed data for development and testing.
type MemoryProvider struct {
	mu   sync.RWMutex
	bars map[string][]model.Bar

	// Errors makes FetchBars fail for the listed symbols.
	Errors map[string]error
}

// NewMemoryProvider creates a provider holding bars.
func NewMemoryProvider(bars ...model.Bar) *MemoryProvider {
	m := &MemoryProvider{bars: make(map[string][]model.Bar)}
	m.Add(bars...)
	return m
}

func (m *MemoryProvider) Name() string { return "memory" }

// Add appends bars; later bars win over earlier ones for the same date.
func (m *MemoryProvider) Add(bars ...model.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		m.bars[b.Symbol] = append(m.bars[b.Symbol], b)
	}
}

func (m *MemoryProvider) Symbols(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.bars))
	for s := range m.bars {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryProvider) FetchBars(ctx context.Context, symbols []string, start, end time.Time) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if symbols == nil {
		all, _ := m.Symbols(ctx)
		symbols = all
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Bar
	for _, s := range symbols {
		if err, ok := m.Errors[s]; ok {
			return nil, fmt.Errorf("fetch %s: %w", s, err)
		}
		for _, b := range m.bars[s] {
			d := model.Day(b.Date)
			if !start.IsZero() && d.Before(model.Day(start)) {
				continue
			}
			if !end.IsZero() && d.After(model.Day(end)) {
				continue
			}
			out = append(out, b)
		}
	}
	return Normalize(out), nil
}

// GenerateBars builds count weekday bars starting at start. The path is a
// deterministic blend of waves seeded by the symbol, so it produces swings,
// contractions and RSI extremes without randomness.
func GenerateBars(symbol string, start time.Time, count int, basePrice float64) []model.Bar {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	phase := float64(h.Sum32()%1000) / 100

	bars := make([]model.Bar, 0, count)
	d := model.Day(start)
	for len(bars) < count {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		x := float64(len(bars))
		p := basePrice * (1 + 0.08*math.Sin(x*0.21+phase) + 0.03*math.Sin(x*0.83+phase/2) + 0.0004*x)
		spread := basePrice * (0.004 + 0.003*math.Abs(math.Sin(x*0.37+phase)))
		bars = append(bars, model.Bar{
			Symbol: symbol,
			Date:   d,
			Open:   p - spread/3,
			High:   p + spread,
			Low:    p - spread,
			Close:  p,
			Volume: 1_000_000 + 1000*x,
		})
		d = d.AddDate(0, 0, 1)
	}
	return bars
}
