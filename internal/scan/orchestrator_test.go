package scan

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"SignalScanner/internal/model"
	"SignalScanner/internal/store"
)

func TestScanIncremental_MatchesFullScan(t *testing.T) {
	for _, mode := range []string{store.BookmarkInferred, store.BookmarkExplicit} {
		t.Run(mode, func(t *testing.T) {
			bars, series := newProvider(600, "AAA", "BBB", "CCC")
			ctx := context.Background()
			mid := series["AAA"][499].Date
			end := series["AAA"][599].Date

			full := newStore(t, mode)
			if _, err := newOrchestrator(t, bars, full, 3).Scan(ctx, ScanRequest{AsOf: end}, nil); err != nil {
				t.Fatalf("full Scan: %v", err)
			}

			inc := newStore(t, mode)
			o := newOrchestrator(t, bars, inc, 3)
			if _, err := o.ScanIncremental(ctx, IncrementalRequest{AsOf: mid}, nil); err != nil {
				t.Fatalf("first ScanIncremental: %v", err)
			}
			var progress progressLog
			sum, err := o.ScanIncremental(ctx, IncrementalRequest{AsOf: end}, progress.record)
			if err != nil {
				t.Fatalf("second ScanIncremental: %v", err)
			}
			if sum.Succeeded != 3 || sum.Failed != 0 {
				t.Fatalf("second pass: expected 3 succeeded, got %+v", sum)
			}

			want := snapshot(t, full)
			if countPrefix(want, "F|") == 0 || countPrefix(want, "N|") == 0 {
				t.Fatalf("fixture produced no fractals or narrow ranges: %d events", len(want))
			}
			compareSnapshots(t, want, snapshot(t, inc), 1e-6)

			if mode == store.BookmarkExplicit {
				for _, e := range progress.events[1 : len(progress.events)-1] {
					if !strings.Contains(e.message, "(incremental)") {
						t.Errorf("explicit bookmarks: expected incremental pass, got %q", e.message)
					}
				}
			}
		})
	}
}

func TestScan_IsIdempotent(t *testing.T) {
	bars, _ := newProvider(300, "AAA", "BBB")
	s := newStore(t, store.BookmarkInferred)
	o := newOrchestrator(t, bars, s, 2)
	ctx := context.Background()

	if _, err := o.Scan(ctx, ScanRequest{}, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	first := snapshot(t, s)
	if _, err := o.Scan(ctx, ScanRequest{}, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	compareSnapshots(t, first, snapshot(t, s), 0)
}

func TestScan_LookbackOnlyRewritesWindow(t *testing.T) {
	bars, series := newProvider(300, "AAA")
	s := newStore(t, store.BookmarkInferred)
	o := newOrchestrator(t, bars, s, 1)
	ctx := context.Background()

	asOf := series["AAA"][299].Date
	if _, err := o.Scan(ctx, ScanRequest{AsOf: asOf, LookbackDays: 60}, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	from := asOf.AddDate(0, 0, -60)
	frs, _ := s.Fractals(ctx, store.Query{})
	if len(frs) == 0 {
		t.Fatal("expected fractals inside the lookback window")
	}
	for _, f := range frs {
		if f.Date.Before(from) || f.Date.After(asOf) {
			t.Errorf("fractal on %v outside [%v, %v]", f.Date, from, asOf)
		}
	}
}

func TestScan_LookbackMatchesFullScanDivergences(t *testing.T) {
	bars, series := newProvider(400, "AAA")
	ctx := context.Background()
	asOf := series["AAA"][399].Date
	from := asOf.AddDate(0, 0, -60)

	full := newStore(t, store.BookmarkInferred)
	if _, err := newOrchestrator(t, bars, full, 1).Scan(ctx, ScanRequest{AsOf: asOf}, nil); err != nil {
		t.Fatalf("full Scan: %v", err)
	}
	bounded := newStore(t, store.BookmarkInferred)
	if _, err := newOrchestrator(t, bars, bounded, 1).Scan(ctx, ScanRequest{AsOf: asOf, LookbackDays: 60}, nil); err != nil {
		t.Fatalf("lookback Scan: %v", err)
	}

	inWindow := func(s *store.SQLite) map[string][]float64 {
		out := make(map[string][]float64)
		for k, v := range snapshot(t, s) {
			if !strings.HasPrefix(k, "D|") {
				continue
			}
			d, err := model.ParseDay(strings.Split(k, "|")[2])
			if err != nil {
				t.Fatalf("parse %s: %v", k, err)
			}
			if !d.Before(from) {
				out[k] = v
			}
		}
		return out
	}
	want := inWindow(full)
	if len(want) == 0 {
		t.Fatal("fixture produced no divergences inside the lookback window")
	}
	compareSnapshots(t, want, inWindow(bounded), 1e-6)
}

func TestScan_FailureIsolation(t *testing.T) {
	bars, _ := newProvider(120, "AAA", "BBB", "CCC")
	bars.Errors = map[string]error{"BBB": errors.New("connection reset")}
	s := newStore(t, store.BookmarkInferred)
	o := newOrchestrator(t, bars, s, 2)

	var progress progressLog
	sum, err := o.Scan(context.Background(), ScanRequest{}, progress.record)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if sum.Attempted != 3 || sum.Succeeded != 2 || sum.Failed != 1 {
		t.Errorf("summary: expected 3/2/1, got %d/%d/%d", sum.Attempted, sum.Succeeded, sum.Failed)
	}

	failed := false
	for _, e := range progress.events {
		if strings.HasPrefix(e.message, "BBB failed:") && strings.Contains(e.message, "connection reset") {
			failed = true
		}
	}
	if !failed {
		t.Errorf("expected a BBB failure message in progress, got %+v", progress.events)
	}

	for _, sym := range []string{"AAA", "CCC"} {
		if frs, _ := s.Fractals(context.Background(), store.Query{Symbol: sym}); len(frs) == 0 {
			t.Errorf("%s: expected persisted fractals", sym)
		}
	}
	if frs, _ := s.Fractals(context.Background(), store.Query{Symbol: "BBB"}); len(frs) != 0 {
		t.Errorf("BBB: expected no fractals, got %d", len(frs))
	}
}

func TestScan_ProgressSequence(t *testing.T) {
	bars, _ := newProvider(60, "AAA", "BBB", "CCC")
	o := newOrchestrator(t, bars, newStore(t, store.BookmarkInferred), 2)

	var progress progressLog
	if _, err := o.Scan(context.Background(), ScanRequest{}, progress.record); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	ev := progress.events
	if len(ev) != 5 {
		t.Fatalf("expected 5 progress events, got %d: %+v", len(ev), ev)
	}
	if ev[0].processed != 0 || ev[0].total != 3 {
		t.Errorf("start: expected (0, 3), got (%d, %d)", ev[0].processed, ev[0].total)
	}
	for i := 1; i <= 3; i++ {
		if ev[i].processed != i || ev[i].total != 3 {
			t.Errorf("event %d: expected (%d, 3), got (%d, %d)", i, i, ev[i].processed, ev[i].total)
		}
	}
	if ev[4].processed != 3 || ev[4].total != 3 || !strings.HasPrefix(ev[4].message, "scan finished") {
		t.Errorf("end: expected (3, 3, scan finished...), got %+v", ev[4])
	}
}

func TestScan_NoData(t *testing.T) {
	bars, _ := newProvider(0)
	s := newStore(t, store.BookmarkInferred)
	o := newOrchestrator(t, bars, s, 2)

	var progress progressLog
	sum, err := o.ScanIncremental(context.Background(), IncrementalRequest{}, progress.record)
	if err != nil {
		t.Fatalf("ScanIncremental: %v", err)
	}
	if len(progress.events) != 1 || progress.events[0] != (progressEvent{0, 0, "no data"}) {
		t.Errorf("expected a single (0, 0, no data), got %+v", progress.events)
	}
	if sum.Attempted != 0 || sum.RunID == "" {
		t.Errorf("summary: expected zero attempts with a run id, got %+v", sum)
	}
	runs, _ := s.Runs(context.Background(), 5)
	if len(runs) != 1 || runs[0].RunID != sum.RunID {
		t.Errorf("run log: expected the empty run recorded, got %+v", runs)
	}
}

// cancelSink cancels the scan from inside the first symbol's write.
type cancelSink struct {
	store.Sink
	cancel context.CancelFunc
}

func (c *cancelSink) SaveBatch(ctx context.Context, b model.EventBatch) error {
	c.cancel()
	return c.Sink.SaveBatch(ctx, b)
}

func TestScan_CancellationStopsNewSymbols(t *testing.T) {
	bars, _ := newProvider(60, "A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8")
	s := newStore(t, store.BookmarkInferred)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := New(Deps{Bars: bars, Sink: &cancelSink{Sink: s, cancel: cancel}, Bookmarks: s, Cache: s, Runs: s},
		Options{Workers: 1}, zerolog.Nop())
	defer o.Close()

	sum, err := o.Scan(ctx, ScanRequest{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !sum.Cancelled {
		t.Errorf("summary should be marked cancelled")
	}
	if sum.Attempted < 1 || sum.Attempted > 2 {
		t.Errorf("attempted: expected 1 or 2 symbols before stopping, got %d", sum.Attempted)
	}
	if sum.Succeeded != sum.Attempted {
		t.Errorf("in-flight symbols should finish: attempted %d, succeeded %d", sum.Attempted, sum.Succeeded)
	}
	if frs, _ := s.Fractals(context.Background(), store.Query{Symbol: "A1"}); len(frs) == 0 {
		t.Errorf("first symbol should be persisted despite cancellation")
	}
}

func TestOrchestrator_ReusesPoolAcrossScans(t *testing.T) {
	bars, _ := newProvider(60, "AAA", "BBB")
	s := newStore(t, store.BookmarkInferred)
	o := New(Deps{Bars: bars, Sink: s, Bookmarks: s, Cache: s, Runs: s}, Options{Workers: 2}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		sum, err := o.ScanIncremental(context.Background(), IncrementalRequest{}, nil)
		if err != nil || sum.Succeeded != 2 {
			t.Fatalf("scan %d: expected 2 succeeded, got %+v (err=%v)", i, sum, err)
		}
	}
	if err := o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := o.Scan(context.Background(), ScanRequest{}, nil); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("scan after Close: expected ErrPoolClosed, got %v", err)
	}

	runs, _ := s.Runs(context.Background(), 10)
	if len(runs) != 4 {
		t.Errorf("run log: expected 4 runs, got %d", len(runs))
	}
}

func TestScan_DegradedSymbolsStillSucceed(t *testing.T) {
	bars, series := newProvider(60, "AAA", "BBB")
	bad := series["BBB"][30]
	bad.High = math.NaN()
	bars.Add(bad)

	o := newOrchestrator(t, bars, newStore(t, store.BookmarkInferred), 2)
	sum, err := o.Scan(context.Background(), ScanRequest{}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if sum.Succeeded != 2 || sum.Degraded != 1 || sum.Failed != 0 {
		t.Errorf("expected 2 succeeded with 1 degraded, got %+v", sum)
	}
}

func TestScan_SymbolLimit(t *testing.T) {
	bars, _ := newProvider(40, "CCC", "AAA", "BBB")
	s := newStore(t, store.BookmarkInferred)
	o := newOrchestrator(t, bars, s, 2)

	sum, err := o.Scan(context.Background(), ScanRequest{SymbolLimit: 2}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if sum.Attempted != 2 {
		t.Errorf("attempted: expected 2, got %d", sum.Attempted)
	}
	if frs, _ := s.NarrowRanges(context.Background(), store.Query{Symbol: "CCC"}); len(frs) != 0 {
		t.Errorf("CCC is past the limit and should not be scanned")
	}
}

type brokenCache struct{}

func (brokenCache) GetRSI(context.Context, string, int, time.Time, time.Time) (map[string]float64, error) {
	return nil, errors.New("cache down")
}
func (brokenCache) PutRSI(context.Context, []model.RSIPoint) error { return errors.New("cache down") }

func TestScan_CacheFailureFallsBackToLocalRSI(t *testing.T) {
	bars, _ := newProvider(120, "AAA")
	withCache := newStore(t, store.BookmarkInferred)
	if _, err := newOrchestrator(t, bars, withCache, 1).Scan(context.Background(), ScanRequest{}, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	s := newStore(t, store.BookmarkInferred)
	o := New(Deps{Bars: bars, Sink: s, Bookmarks: s, Cache: brokenCache{}}, Options{Workers: 1}, zerolog.Nop())
	defer o.Close()
	sum, err := o.Scan(context.Background(), ScanRequest{}, nil)
	if err != nil || sum.Succeeded != 1 {
		t.Fatalf("expected success without cache, got %+v (err=%v)", sum, err)
	}
	compareSnapshots(t, snapshot(t, withCache), snapshot(t, s), 0)
}

func TestScan_PopulatesRSICache(t *testing.T) {
	bars, series := newProvider(100, "AAA")
	s := newStore(t, store.BookmarkInferred)
	o := newOrchestrator(t, bars, s, 1)
	if _, err := o.Scan(context.Background(), ScanRequest{}, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	got, err := s.GetRSI(context.Background(), "AAA", 14, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetRSI: %v", err)
	}
	if len(got) != 100-14 {
		t.Errorf("cached points: expected %d, got %d", 100-14, len(got))
	}
	if _, ok := got[model.FormatDay(series["AAA"][13].Date)]; ok {
		t.Errorf("index 13 has no RSI yet and should not be cached")
	}
}
