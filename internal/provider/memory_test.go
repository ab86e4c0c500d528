package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalScanner/internal/model"
)

func TestMemoryProvider_Window(t *testing.T) {
	start := d("2024-01-01")
	m := NewMemoryProvider(GenerateBars("AAA", start, 30, 100)...)
	m.Add(GenerateBars("BBB", start, 10, 50)...)

	syms, err := m.Symbols(context.Background())
	if err != nil || len(syms) != 2 || syms[0] != "AAA" {
		t.Fatalf("unexpected symbols %v (%v)", syms, err)
	}

	got, err := m.FetchBars(context.Background(), []string{"AAA"}, d("2024-01-08"), d("2024-01-12"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected one trading week, got %d bars", len(got))
	}
	for _, b := range got {
		if b.Date.Weekday() == time.Saturday || b.Date.Weekday() == time.Sunday {
			t.Errorf("generated a weekend bar on %s", model.FormatDay(b.Date))
		}
		if !b.Complete() || b.High < b.Low {
			t.Errorf("malformed generated bar %+v", b)
		}
	}

	all, _ := m.FetchBars(context.Background(), nil, time.Time{}, time.Time{})
	if len(all) != 40 {
		t.Errorf("expected 40 bars across symbols, got %d", len(all))
	}
}

func TestMemoryProvider_Errors(t *testing.T) {
	m := NewMemoryProvider(GenerateBars("AAA", d("2024-01-01"), 5, 100)...)
	boom := errors.New("connection refused")
	m.Errors = map[string]error{"AAA": boom}
	if _, err := m.FetchBars(context.Background(), []string{"AAA"}, time.Time{}, time.Time{}); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
}

func TestGenerateBars_Deterministic(t *testing.T) {
	a := GenerateBars("AAA", d("2024-01-01"), 50, 100)
	b := GenerateBars("AAA", d("2024-01-01"), 50, 100)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("bar %d differs", i)
		}
	}
	c := GenerateBars("BBB", d("2024-01-01"), 50, 100)
	if a[10].Close == c[10].Close {
		t.Errorf("expected different paths per symbol")
	}
}
