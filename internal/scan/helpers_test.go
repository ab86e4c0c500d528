package scan

import (
	"context"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"SignalScanner/internal/model"
	"SignalScanner/internal/provider"
	"SignalScanner/internal/store"
)

var start = time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T, mode string) *store.SQLite {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "scan.db"), store.Options{BookmarkMode: mode}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newProvider(count int, symbols ...string) (*provider.MemoryProvider, map[string][]model.Bar) {
	m := provider.NewMemoryProvider()
	all := make(map[string][]model.Bar, len(symbols))
	for i, sym := range symbols {
		bars := provider.GenerateBars(sym, start, count, 100+float64(i)*25)
		all[sym] = bars
		m.Add(bars...)
	}
	return m, all
}

func newOrchestrator(t *testing.T, bars provider.BarProvider, s *store.SQLite, workers int) *Orchestrator {
	t.Helper()
	o := New(Deps{Bars: bars, Sink: s, Bookmarks: s, Cache: s, Runs: s}, Options{Workers: workers}, zerolog.Nop())
	t.Cleanup(func() { o.Close() })
	return o
}

type progressEvent struct {
	processed, total int
	message          string
}

type progressLog struct {
	events []progressEvent
}

func (p *progressLog) record(processed, total int, message string) {
	p.events = append(p.events, progressEvent{processed, total, message})
}

// snapshot renders every stored event as key -> comparable values.
func snapshot(t *testing.T, s *store.SQLite) map[string][]float64 {
	t.Helper()
	ctx := context.Background()
	out := make(map[string][]float64)

	fr, err := s.Fractals(ctx, store.Query{})
	if err != nil {
		t.Fatalf("Fractals: %v", err)
	}
	for _, e := range fr {
		rsi := math.NaN()
		if e.CenterRSI != nil {
			rsi = *e.CenterRSI
		}
		out["F|"+e.Symbol+"|"+model.FormatDay(e.Date)+"|"+string(e.Polarity)] = []float64{e.RangeHigh, e.RangeLow, rsi, e.CenterClose}
	}
	nr, err := s.NarrowRanges(ctx, store.Query{})
	if err != nil {
		t.Fatalf("NarrowRanges: %v", err)
	}
	for _, e := range nr {
		out["N|"+e.Symbol+"|"+model.FormatDay(e.Date)+"|"+strconv.Itoa(e.WindowSize)] = []float64{e.RangeValue, float64(e.Rank)}
	}
	cr, err := s.Crosses(ctx, store.Query{})
	if err != nil {
		t.Fatalf("Crosses: %v", err)
	}
	for _, e := range cr {
		out["C|"+e.Symbol+"|"+model.FormatDay(e.Date)+"|"+string(e.Type)] = []float64{e.PrevRSI, e.CurrRSI, e.ReferenceHigh}
	}
	dv, err := s.Divergences(ctx, store.Query{})
	if err != nil {
		t.Fatalf("Divergences: %v", err)
	}
	for _, e := range dv {
		k := "D|" + e.Symbol + "|" + model.FormatDay(e.CurrentFractalDate) + "|" + string(e.Type) + "|" + model.FormatDay(e.ComparedFractalDate)
		out[k] = []float64{e.CurrentRSI, e.ComparedRSI, e.BuyAboveLevel, e.SellBelowLevel, float64(e.Rank)}
	}
	return out
}

func countPrefix(snap map[string][]float64, prefix string) int {
	n := 0
	for k := range snap {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

func compareSnapshots(t *testing.T, want, got map[string][]float64, tol float64) {
	t.Helper()
	var missing, extra []string
	for k := range want {
		if _, ok := got[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range got {
		if _, ok := want[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	if len(missing) > 0 || len(extra) > 0 {
		t.Fatalf("event sets differ: missing %v, extra %v", missing, extra)
	}
	for k, w := range want {
		g := got[k]
		for i := range w {
			if math.IsNaN(w[i]) && math.IsNaN(g[i]) {
				continue
			}
			if math.Abs(w[i]-g[i]) > tol {
				t.Errorf("%s field %d: expected %v, got %v", k, i, w[i], g[i])
			}
		}
	}
}
