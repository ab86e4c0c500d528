package collector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"SignalScanner/internal/provider"
	"SignalScanner/internal/store"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestCollector_Collect(t *testing.T) {
	src := provider.NewMemoryProvider()
	src.Add(provider.GenerateBars("AAA", start, 30, 100)...)
	src.Add(provider.GenerateBars("BBB", start, 30, 50)...)
	src.Add(provider.GenerateBars("CCC", start, 30, 20)...)
	src.Errors = map[string]error{"BBB": errors.New("upstream timeout")}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "scanner.db"), store.Options{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	c := NewCollector(src, st, zerolog.Nop())
	sum, err := c.Collect(context.Background(), nil, start, start.AddDate(0, 0, 13))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if sum.Symbols != 3 || len(sum.Failed) != 1 || sum.Failed[0] != "BBB" {
		t.Errorf("unexpected summary %+v", sum)
	}
	// Two weeks of weekdays per symbol.
	if sum.Bars != 20 {
		t.Errorf("expected 20 bars, got %d", sum.Bars)
	}

	syms, err := st.Symbols(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 2 || syms[0] != "AAA" || syms[1] != "CCC" {
		t.Errorf("expected AAA and CCC stored, got %v", syms)
	}

	// Re-collecting overwrites by key.
	if _, err := c.Collect(context.Background(), []string{"AAA"}, start, start.AddDate(0, 0, 13)); err != nil {
		t.Fatal(err)
	}
	bars, err := st.FetchBars(context.Background(), []string{"AAA"}, time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 10 {
		t.Errorf("expected 10 stored bars after re-collect, got %d", len(bars))
	}
}

func TestCollector_Cancelled(t *testing.T) {
	src := provider.NewMemoryProvider(provider.GenerateBars("AAA", start, 5, 100)...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCollector(src, nil, zerolog.Nop())
	if _, err := c.Collect(ctx, []string{"AAA"}, time.Time{}, time.Time{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
