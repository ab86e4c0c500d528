package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"SignalScanner/internal/api"
	"SignalScanner/internal/app"
	"SignalScanner/internal/collector"
	"SignalScanner/internal/export"
	"SignalScanner/internal/model"
	"SignalScanner/internal/notifier"
	"SignalScanner/internal/scan"
	"SignalScanner/internal/scheduler"
	"SignalScanner/internal/store"
)

// dayFlag parses YYYY-MM-DD.
type dayFlag struct{ t time.Time }

func (d *dayFlag) String() string {
	if d.t.IsZero() {
		return ""
	}
	return model.FormatDay(d.t)
}

func (d *dayFlag) Set(s string) error {
	t, err := model.ParseDay(s)
	if err != nil {
		return fmt.Errorf("expected YYYY-MM-DD: %w", err)
	}
	d.t = t
	return nil
}

func progressLogger(a *app.App) scan.ProgressFunc {
	return func(processed, total int, msg string) {
		a.Log.Info().Int("processed", processed).Int("total", total).Msg(msg)
	}
}

func report(ctx context.Context, a *app.App, sum model.RunSummary) {
	fmt.Println(notifier.RenderSummaryTable([]model.RunSummary{sum}))
	if a.Notifier == nil {
		return
	}
	if err := a.Notifier.SendWithRetry(context.WithoutCancel(ctx), notifier.FormatSummary(sum), 3); err != nil {
		a.Log.Error().Err(err).Msg("send summary")
	}
}

func runScan(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	period := fs.Int("period", a.Config.Scan.RSIPeriod, "RSI period")
	lookback := fs.Int("lookback", a.Config.Scan.LookbackDays, "only rewrite events from the last N days (0 = all)")
	limit := fs.Int("limit", a.Config.Scan.SymbolLimit, "scan at most N symbols (0 = all)")
	var asOf dayFlag
	fs.Var(&asOf, "asof", "last day to scan (default today)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sum, err := a.Orchestrator.Scan(ctx, scan.ScanRequest{
		Period:       *period,
		LookbackDays: *lookback,
		AsOf:         asOf.t,
		SymbolLimit:  *limit,
	}, progressLogger(a))
	if sum.RunID != "" {
		report(ctx, a, sum)
	}
	return err
}

func runIncremental(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("incremental", flag.ContinueOnError)
	period := fs.Int("period", a.Config.Scan.RSIPeriod, "RSI period")
	limit := fs.Int("limit", a.Config.Scan.SymbolLimit, "scan at most N symbols (0 = all)")
	var asOf dayFlag
	fs.Var(&asOf, "asof", "last day to scan (default today)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sum, err := a.Orchestrator.ScanIncremental(ctx, scan.IncrementalRequest{
		Period:      *period,
		AsOf:        asOf.t,
		SymbolLimit: *limit,
	}, progressLogger(a))
	if sum.RunID != "" {
		report(ctx, a, sum)
	}
	return err
}

func newScheduler(ctx context.Context, a *app.App) (*scheduler.Scheduler, error) {
	var n scheduler.Notifier
	if a.Notifier != nil {
		n = a.Notifier
	}
	sched := scheduler.NewScheduler(ctx, a.Orchestrator, a.Store, n, scan.IncrementalRequest{
		Period:      a.Config.Scan.RSIPeriod,
		SymbolLimit: a.Config.Scan.SymbolLimit,
	}, a.Log)
	if err := sched.Register(a.Config.Schedule.IncrementalCron); err != nil {
		return nil, err
	}
	return sched, nil
}

func startSchedule(ctx context.Context, a *app.App, runNow bool) (*scheduler.Scheduler, error) {
	sched, err := newScheduler(ctx, a)
	if err != nil {
		return nil, err
	}
	sched.Start()
	if a.Notifier != nil {
		go a.Notifier.StartPolling(ctx, sched.HandleCommand)
		a.Log.Info().Msg("telegram polling started")
	}
	if runNow {
		go sched.RunNow()
	}
	return sched, nil
}

func runSchedule(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	runNow := fs.Bool("run-now", os.Getenv("RUN_ON_START") == "true", "run one incremental scan at startup")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sched, err := startSchedule(ctx, a, *runNow)
	if err != nil {
		return err
	}
	a.Log.Info().Str("cron", a.Config.Schedule.IncrementalCron).Msg("scheduler running, press Ctrl+C to stop")
	<-ctx.Done()
	a.Log.Info().Msg("shutdown signal received, stopping")
	sched.Stop()
	return nil
}

func runServe(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.Config.HTTP.Addr, "listen address")
	withSchedule := fs.Bool("schedule", false, "also run the incremental cron")
	if err := fs.Parse(args); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if *withSchedule {
		sched, err := startSchedule(ctx, a, false)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			sched.Stop()
			return nil
		})
	}
	srv := api.NewServer(*addr, a.Store, a.Orchestrator, a.Log)
	g.Go(func() error { return srv.Start(ctx) })
	return g.Wait()
}

func runExport(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", a.Config.Export.Format, "csv, json or parquet")
	dir := fs.String("dir", a.Config.Export.Dir, "output directory")
	symbol := fs.String("symbol", "", "only this symbol")
	latest := fs.Bool("latest", false, "only each symbol's newest event")
	var from, to dayFlag
	fs.Var(&from, "from", "first day (inclusive)")
	fs.Var(&to, "to", "last day (inclusive)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ex, err := export.NewExporter(a.Store, *format, *dir, a.Log)
	if err != nil {
		return err
	}
	files, err := ex.Export(ctx, store.Query{Symbol: *symbol, From: from.t, To: to.t, Latest: *latest})
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Printf("%-14s %7d rows  %s\n", f.Kind, f.Rows, f.Path)
	}
	return nil
}

func runRuns(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 10, "how many runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	runs, err := a.Store.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No scans recorded yet.")
		return nil
	}
	fmt.Println(notifier.RenderSummaryTable(runs))
	return nil
}

func runIngest(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	symbols := fs.String("symbols", "", "comma-separated symbols (default: every symbol the source lists)")
	var from, to dayFlag
	fs.Var(&from, "from", "first day (default: full history)")
	fs.Var(&to, "to", "last day (default today)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	src, ok := app.RemoteBarSource(a.Config, a.Log)
	if !ok {
		return errors.New("bar_source.kind is store, set it to http or yahoo to ingest")
	}
	var list []string
	if *symbols != "" {
		for _, s := range strings.Split(*symbols, ",") {
			if s = strings.TrimSpace(s); s != "" {
				list = append(list, s)
			}
		}
	}

	sum, err := collector.NewCollector(src, a.Store, a.Log).Collect(ctx, list, from.t, to.t)
	if err != nil {
		return err
	}
	fmt.Printf("ingested %d bars for %d symbols from %s\n", sum.Bars, sum.Symbols-len(sum.Failed), src.Name())
	if len(sum.Failed) > 0 {
		return fmt.Errorf("%d symbols failed: %s", len(sum.Failed), strings.Join(sum.Failed, ", "))
	}
	return nil
}
