// Package scan runs the detectors over every symbol on a shared worker
// pool, resuming each (symbol, detector) pair from its bookmark.
package scan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"SignalScanner/internal/calculator"
	"SignalScanner/internal/detector"
	"SignalScanner/internal/model"
	"SignalScanner/internal/provider"
	"SignalScanner/internal/store"
)

// DefaultRSIWarmup is how many valid closes a locally computed RSI needs
// before it is trusted enough to write back to the cache.
const DefaultRSIWarmup = 250

// ProgressFunc receives (processed, total, message). Calls for one scan are
// never concurrent.
type ProgressFunc func(processed, total int, message string)

// ScanRequest is a full scan, optionally bounded to the last LookbackDays.
type ScanRequest struct {
	Period       int
	LookbackDays int
	AsOf         time.Time
	SymbolLimit  int
}

// IncrementalRequest resumes every symbol from its bookmarks.
type IncrementalRequest struct {
	Period      int
	AsOf        time.Time
	SymbolLimit int
}

// Deps are the collaborators a scan reads from and writes to. Bookmarks,
// Cache and Runs are optional.
type Deps struct {
	Bars      provider.BarProvider
	Sink      store.Sink
	Bookmarks store.BookmarkReader
	Cache     store.RSICache
	Runs      store.RunRecorder
}

// Options tune the orchestrator.
type Options struct {
	Workers   int
	Detector  detector.Config
	RSIWarmup int
}

// Orchestrator owns the worker pool and runs scans on it.
type Orchestrator struct {
	deps Deps
	opts Options
	pool *Pool
	log  zerolog.Logger
	now  func() time.Time
}

// New builds an orchestrator and starts its workers.
func New(deps Deps, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.RSIWarmup <= 0 {
		opts.RSIWarmup = DefaultRSIWarmup
	}
	if opts.Detector.RSIPeriod <= 0 {
		opts.Detector = detector.DefaultConfig()
	}
	if deps.Cache == nil {
		deps.Cache = store.NoopCache{}
	}
	if deps.Runs == nil {
		deps.Runs = store.NoopRecorder{}
	}
	return &Orchestrator{
		deps: deps,
		opts: opts,
		pool: NewPool(opts.Workers),
		log:  log.With().Str("component", "scan").Logger(),
		now:  time.Now,
	}
}

// Close stops the worker pool after in-flight symbols finish.
func (o *Orchestrator) Close() error {
	return o.pool.Close()
}

// Workers is the pool size.
func (o *Orchestrator) Workers() int { return o.pool.Size() }

// Scan evaluates every symbol in full mode. With LookbackDays set, only
// events dated on or after AsOf-LookbackDays are rewritten.
func (o *Orchestrator) Scan(ctx context.Context, req ScanRequest, progress ProgressFunc) (model.RunSummary, error) {
	asOf := o.asOf(req.AsOf)
	plan := func(context.Context, string, int) (window, error) {
		return planLookback(asOf, req.LookbackDays, o.opts.Detector, o.opts.RSIWarmup), nil
	}
	return o.run(ctx, model.ModeFull, req.Period, asOf, req.SymbolLimit, plan, progress)
}

// ScanIncremental resumes each symbol from its stored bookmarks. Kinds with
// no bookmark yet are scanned in full.
func (o *Orchestrator) ScanIncremental(ctx context.Context, req IncrementalRequest, progress ProgressFunc) (model.RunSummary, error) {
	asOf := o.asOf(req.AsOf)
	plan := func(ctx context.Context, symbol string, period int) (window, error) {
		return planIncremental(ctx, o.deps.Bookmarks, symbol, period, o.opts.Detector, o.opts.RSIWarmup)
	}
	return o.run(ctx, model.ModeIncremental, req.Period, asOf, req.SymbolLimit, plan, progress)
}

func (o *Orchestrator) asOf(t time.Time) time.Time {
	if t.IsZero() {
		return model.Day(o.now())
	}
	return model.Day(t)
}

type planFunc func(ctx context.Context, symbol string, period int) (window, error)

// symbolResult is sent by workers for fan-in.
type symbolResult struct {
	symbol      string
	err         error
	events      int
	bars        int
	degraded    bool
	incremental bool
}

func (r symbolResult) message() string {
	if r.err != nil {
		return fmt.Sprintf("%s failed: %v", r.symbol, r.err)
	}
	mode := "full"
	if r.incremental {
		mode = "incremental"
	}
	msg := fmt.Sprintf("%s ok: %d events from %d bars (%s)", r.symbol, r.events, r.bars, mode)
	if r.degraded {
		msg += ", degraded"
	}
	return msg
}

func (o *Orchestrator) run(ctx context.Context, mode model.ScanMode, period int, asOf time.Time, limit int, plan planFunc, progress ProgressFunc) (model.RunSummary, error) {
	if progress == nil {
		progress = func(int, int, string) {}
	}
	if period <= 0 {
		period = o.opts.Detector.RSIPeriod
	}
	summary := model.RunSummary{RunID: uuid.NewString(), Mode: mode, StartedAt: o.now().UTC()}
	log := o.log.With().Str("run_id", summary.RunID).Str("mode", string(mode)).Logger()

	symbols, err := o.symbols(ctx, limit)
	if err != nil {
		return summary, fmt.Errorf("list symbols: %w", err)
	}
	total := len(symbols)
	if total == 0 {
		progress(0, 0, "no data")
		summary.FinishedAt = o.now().UTC()
		o.record(ctx, log, summary)
		return summary, nil
	}

	log.Info().Int("symbols", total).Int("period", period).Str("as_of", model.FormatDay(asOf)).Int("workers", o.pool.Size()).Msg("scan started")
	progress(0, total, fmt.Sprintf("scan started: %d symbols", total))

	results := make(chan symbolResult)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		processed := 0
		for r := range results {
			processed++
			if r.err != nil {
				summary.Failed++
				log.Error().Err(r.err).Str("symbol", r.symbol).Msg("symbol failed")
			} else {
				summary.Succeeded++
				if r.degraded {
					summary.Degraded++
				}
				log.Debug().Str("symbol", r.symbol).Int("events", r.events).Bool("degraded", r.degraded).Msg("symbol done")
			}
			progress(processed, total, r.message())
		}
	}()

	// Started symbols finish even if ctx is cancelled mid-write.
	workCtx := context.WithoutCancel(ctx)
	var (
		wg      sync.WaitGroup
		poolErr error
	)
	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := o.pool.Submit(ctx, func() {
			defer wg.Done()
			results <- o.scanSymbol(workCtx, sym, period, asOf, plan)
		})
		if err != nil {
			wg.Done()
			if errors.Is(err, ErrPoolClosed) {
				poolErr = err
				log.Error().Err(err).Msg("stopping scan")
			}
			break
		}
		summary.Attempted++
	}
	wg.Wait()
	close(results)
	<-collected

	summary.FinishedAt = o.now().UTC()
	summary.Cancelled = ctx.Err() != nil
	o.record(ctx, log, summary)

	final := fmt.Sprintf("scan finished: %d attempted, %d succeeded, %d failed, %d degraded",
		summary.Attempted, summary.Succeeded, summary.Failed, summary.Degraded)
	if summary.Cancelled {
		final = fmt.Sprintf("scan cancelled: %d of %d symbols attempted, %d succeeded, %d failed",
			summary.Attempted, total, summary.Succeeded, summary.Failed)
	}
	log.Info().Int("attempted", summary.Attempted).Int("succeeded", summary.Succeeded).Int("failed", summary.Failed).
		Int("degraded", summary.Degraded).Bool("cancelled", summary.Cancelled).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).Msg("scan finished")
	progress(summary.Succeeded+summary.Failed, total, final)

	if summary.Cancelled {
		return summary, ctx.Err()
	}
	return summary, poolErr
}

func (o *Orchestrator) record(ctx context.Context, log zerolog.Logger, summary model.RunSummary) {
	if err := o.deps.Runs.RecordRun(context.WithoutCancel(ctx), summary); err != nil {
		log.Warn().Err(err).Msg("could not record run")
	}
}

func (o *Orchestrator) symbols(ctx context.Context, limit int) ([]string, error) {
	symbols, err := o.deps.Bars.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	symbols = append([]string(nil), symbols...)
	sort.Strings(symbols)
	if limit > 0 && len(symbols) > limit {
		symbols = symbols[:limit]
	}
	return symbols, nil
}

// scanSymbol reads, evaluates and persists one symbol. Any error, including
// a panic in a detector, fails only this symbol.
func (o *Orchestrator) scanSymbol(ctx context.Context, symbol string, period int, asOf time.Time, plan planFunc) (res symbolResult) {
	res.symbol = symbol
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("panic: %v", r)
		}
	}()

	w, err := plan(ctx, symbol, period)
	if err != nil {
		res.err = fmt.Errorf("read bookmarks: %w", err)
		return res
	}
	res.incremental = w.Incremental()

	fetched, err := o.deps.Bars.FetchBars(ctx, []string{symbol}, w.fetchStart, asOf)
	if err != nil {
		res.err = fmt.Errorf("fetch bars: %w", err)
		return res
	}
	bars := provider.BySymbol(provider.Normalize(fetched))[symbol]
	res.bars = len(bars)
	if len(bars) == 0 {
		return res
	}
	for _, b := range bars {
		if !b.Complete() {
			res.degraded = true
			break
		}
	}

	cfg := o.opts.Detector
	cfg.RSIPeriod = period
	from := w.eventStarts(bars, cfg)

	in := detector.Input{
		Symbol: symbol,
		Bars:   bars,
		RSI:    o.rsi(ctx, symbol, bars, period, w.fetchStart.IsZero()),
		From:   from,
		To:     asOf,
	}
	if !from[model.KindFractal].IsZero() && o.deps.Bookmarks != nil {
		prior, err := o.deps.Bookmarks.PriorFractals(ctx, symbol, detector.FirstCenter(bars), cfg.DivergenceLookback)
		if err != nil {
			res.err = fmt.Errorf("read prior fractals: %w", err)
			return res
		}
		in.PriorFractals = prior
	}
	if len(cfg.SMAFilters) > 0 {
		in.SMA = detector.NewSeriesSMA(bars, cfg.SMAFilters)
	}

	batch := detector.Evaluate(in, cfg)
	if err := o.deps.Sink.SaveBatch(ctx, batch); err != nil {
		res.err = fmt.Errorf("save events: %w", err)
		return res
	}
	res.events = batch.Len()
	return res
}

// rsi serves the RSI series for bars, preferring cached values. Locally
// computed values are written back only when they match what a
// full-history computation would give.
func (o *Orchestrator) rsi(ctx context.Context, symbol string, bars []model.Bar, period int, fullHistory bool) []float64 {
	closes := model.Closes(bars)
	local := calculator.RSISeries(closes, period)

	cached, err := o.deps.Cache.GetRSI(ctx, symbol, period, bars[0].Date, bars[len(bars)-1].Date)
	if err != nil {
		o.log.Warn().Err(err).Str("symbol", symbol).Msg("rsi cache read failed, recomputing")
		cached = nil
	}

	out := make([]float64, len(bars))
	var fresh []model.RSIPoint
	valid := 0
	for i, b := range bars {
		if !math.IsNaN(closes[i]) {
			valid++
		}
		if v, ok := cached[model.FormatDay(b.Date)]; ok {
			out[i] = v
			continue
		}
		out[i] = local[i]
		if math.IsNaN(local[i]) || (!fullHistory && valid < o.opts.RSIWarmup) {
			continue
		}
		fresh = append(fresh, model.RSIPoint{Symbol: symbol, Date: b.Date, Period: period, Value: local[i]})
	}

	if len(fresh) > 0 {
		if err := o.deps.Cache.PutRSI(ctx, fresh); err != nil {
			o.log.Warn().Err(err).Str("symbol", symbol).Int("points", len(fresh)).Msg("rsi cache write failed")
		}
	}
	return out
}
